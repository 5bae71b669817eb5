package pgx

import (
	"context"
	"errors"
	"strings"
	"testing"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/maintkg/maintkg/pkg/store"
)

type execCall struct {
	sql  string
	args []any
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if i >= len(r.values) {
			break
		}
		switch v := d.(type) {
		case *string:
			*v = r.values[i].(string)
		case *[]byte:
			*v = r.values[i].([]byte)
		case **pgvector.Vector:
			if r.values[i] != nil {
				vec := r.values[i].(pgvector.Vector)
				*v = &vec
			}
		}
	}
	return nil
}

type fakeConn struct {
	execs []execCall
	row   fakeRow
}

func (c *fakeConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, execCall{sql: sql, args: arguments})
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row {
	return c.row
}

func strPtr(s string) *string { return &s }

func TestPutNodeSanitizesText(t *testing.T) {
	conn := &fakeConn{}
	s := NewWithConnection(conn)

	err := s.PutNode(context.Background(), &store.Node{
		ID:    "n1",
		Label: "Machine",
		Key:   store.NodeKey("Machine", "Presse Fette 12"),
		Name:  "Presse\x00 Fette 12",
		Properties: map[string]*string{
			"site":      strPtr("atelier\x00 B"),
			"reference": nil,
		},
	})
	if err != nil {
		t.Fatalf("PutNode: %v", err)
	}
	if len(conn.execs) != 1 {
		t.Fatalf("execs = %d, want 1", len(conn.execs))
	}

	call := conn.execs[0]
	if name := call.args[3].(string); name != "Presse Fette 12" {
		t.Errorf("name = %q, NUL byte not stripped", name)
	}
	props := string(call.args[4].([]byte))
	if strings.Contains(props, "\x00") {
		t.Errorf("properties still carry NUL: %s", props)
	}
	if !strings.Contains(props, `"site":"atelier B"`) {
		t.Errorf("sanitized site missing: %s", props)
	}
	if !strings.Contains(props, `"reference":null`) {
		t.Errorf("nil property lost: %s", props)
	}
	if call.args[5] != (*pgvector.Vector)(nil) {
		t.Errorf("embedding arg = %v, want nil for unembedded node", call.args[5])
	}
}

func TestPutNodeWithEmbedding(t *testing.T) {
	conn := &fakeConn{}
	s := NewWithConnection(conn)

	err := s.PutNode(context.Background(), &store.Node{
		ID:        "n1",
		Label:     "Machine",
		Key:       "machine/presse",
		Name:      "presse",
		Embedding: []float32{0.1, 0.2},
	})
	if err != nil {
		t.Fatalf("PutNode: %v", err)
	}

	vec, ok := conn.execs[0].args[5].(*pgvector.Vector)
	if !ok || vec == nil {
		t.Fatalf("embedding arg = %v, want vector", conn.execs[0].args[5])
	}
	if got := vec.Slice(); len(got) != 2 || got[0] != 0.1 {
		t.Errorf("embedding = %v", got)
	}
}

func TestPutRelationshipStripsNulls(t *testing.T) {
	conn := &fakeConn{}
	s := NewWithConnection(conn)

	err := s.PutRelationship(context.Background(), &store.Relationship{
		Type:     "CONTIENT",
		StartKey: "machine/presse",
		EndKey:   "composant/roulement",
	})
	if err != nil {
		t.Fatalf("PutRelationship: %v", err)
	}

	call := conn.execs[0]
	if !strings.Contains(call.sql, "jsonb_strip_nulls") {
		t.Errorf("merge does not strip nulls:\n%s", call.sql)
	}
	if call.args[0] != "CONTIENT" || call.args[1] != "machine/presse" || call.args[2] != "composant/roulement" {
		t.Errorf("args = %v", call.args[:3])
	}
}

func TestGetNodeByKeyNotFound(t *testing.T) {
	conn := &fakeConn{row: fakeRow{err: pgxv5.ErrNoRows}}
	s := NewWithConnection(conn)

	_, err := s.GetNodeByKey(context.Background(), "machine/missing")
	if !errors.Is(err, store.ErrNodeNotFound) {
		t.Fatalf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestGetNodeByKeyScansRow(t *testing.T) {
	conn := &fakeConn{row: fakeRow{values: []any{
		"n1", "Machine", "machine/presse fette 12", "Presse Fette 12",
		[]byte(`{"site":"atelier B"}`),
		pgvector.NewVector([]float32{0.5}),
	}}}
	s := NewWithConnection(conn)

	node, err := s.GetNodeByKey(context.Background(), "machine/presse fette 12")
	if err != nil {
		t.Fatalf("GetNodeByKey: %v", err)
	}
	if node.Name != "Presse Fette 12" || node.Label != "Machine" {
		t.Errorf("node = %+v", node)
	}
	if v := node.Properties["site"]; v == nil || *v != "atelier B" {
		t.Errorf("site = %v", v)
	}
	if len(node.Embedding) != 1 || node.Embedding[0] != 0.5 {
		t.Errorf("embedding = %v", node.Embedding)
	}
}

func TestMigrateURLScheme(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/maintkg", "pgx5://u:p@localhost:5432/maintkg"},
		{"postgresql://u:p@localhost:5432/maintkg", "pgx5://u:p@localhost:5432/maintkg"},
		{"pgx5://u:p@localhost:5432/maintkg", "pgx5://u:p@localhost:5432/maintkg"},
	}
	for _, tt := range tests {
		if got := migrateURL(tt.in); got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
