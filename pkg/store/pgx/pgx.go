// Package pgx implements the GraphStore on PostgreSQL with pgvector for
// similarity search. Node identity maps to a primary key on the node key,
// edge identity to a composite primary key, so upserts are plain ON
// CONFLICT clauses.
package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/maintkg/maintkg/internal/util"
	"github.com/maintkg/maintkg/pkg/store"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// Store wraps a pgx connection behind the GraphStore interface.
type Store struct {
	conn pgxIConn
	pool *pgxpool.Pool
}

// New connects a pool to databaseURL, registers the pgvector types, and
// applies pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgxv5.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{conn: pool, pool: pool}, nil
}

// NewWithConnection creates a Store on an existing connection, leaving
// migrations and lifecycle to the caller.
func NewWithConnection(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

// Pool exposes the underlying pool for components that need raw SQL, such
// as the ingestion lease lock. Nil when the Store was built on an existing
// connection.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Close(ctx context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) GetNodeByKey(ctx context.Context, key string) (*store.Node, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, label, key, name, properties, embedding
		FROM nodes WHERE key = $1
	`, key)

	node, err := scanNode(row)
	if err == pgxv5.ErrNoRows {
		return nil, store.ErrNodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *Store) PutNode(ctx context.Context, node *store.Node) error {
	// Model-derived strings can carry NUL bytes, which Postgres TEXT
	// rejects.
	name := util.SanitizePostgresText(node.Name)
	sanitized := make(map[string]*string, len(node.Properties))
	for k, v := range node.Properties {
		if v == nil {
			sanitized[k] = nil
			continue
		}
		clean := util.SanitizePostgresText(*v)
		sanitized[k] = &clean
	}

	props, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("marshaling node properties: %w", err)
	}

	var embedding *pgvector.Vector
	if len(node.Embedding) > 0 {
		v := pgvector.NewVector(node.Embedding)
		embedding = &v
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO nodes (key, id, label, name, properties, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			label = excluded.label,
			name = excluded.name,
			properties = excluded.properties,
			embedding = COALESCE(excluded.embedding, nodes.embedding)
	`, node.Key, node.ID, node.Label, name, props, embedding)
	return err
}

func (s *Store) PutRelationship(ctx context.Context, rel *store.Relationship) error {
	props, err := json.Marshal(rel.Properties)
	if err != nil {
		return fmt.Errorf("marshaling relationship properties: %w", err)
	}

	// Incoming nulls are stripped before the merge so a null never
	// overwrites a stored value.
	_, err = s.conn.Exec(ctx, `
		INSERT INTO edges (type, start_key, end_key, properties)
		VALUES ($1, $2, $3, jsonb_strip_nulls($4))
		ON CONFLICT (type, start_key, end_key) DO UPDATE SET
			properties = edges.properties || jsonb_strip_nulls(excluded.properties)
	`, rel.Type, rel.StartKey, rel.EndKey, props)
	return err
}

func (s *Store) SimilarNodes(ctx context.Context, embedding []float32, topK int) ([]store.Node, error) {
	if topK <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, label, key, name, properties, embedding
		FROM nodes
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNodes(rows)
}

func (s *Store) Neighborhood(ctx context.Context, keys []string) (*store.Subgraph, error) {
	sub := &store.Subgraph{}

	rows, err := s.conn.Query(ctx, `
		SELECT type, start_key, end_key, properties
		FROM edges
		WHERE start_key = ANY($1) OR end_key = ANY($1)
	`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reach := make([]string, 0, len(keys))
	reach = append(reach, keys...)
	for rows.Next() {
		var rel store.Relationship
		var props []byte
		if err := rows.Scan(&rel.Type, &rel.StartKey, &rel.EndKey, &props); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(props, &rel.Properties); err != nil {
			return nil, fmt.Errorf("unmarshaling relationship properties: %w", err)
		}
		sub.Relationships = append(sub.Relationships, rel)
		reach = append(reach, rel.StartKey, rel.EndKey)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nodeRows, err := s.conn.Query(ctx, `
		SELECT id, label, key, name, properties, embedding
		FROM nodes
		WHERE key = ANY($1)
		ORDER BY key
	`, store.DedupeStrings(reach))
	if err != nil {
		return nil, err
	}
	defer nodeRows.Close()

	nodes, err := collectNodes(nodeRows)
	if err != nil {
		return nil, err
	}
	sub.Nodes = nodes
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*store.Node, error) {
	var node store.Node
	var props []byte
	var embedding *pgvector.Vector

	if err := row.Scan(&node.ID, &node.Label, &node.Key, &node.Name, &props, &embedding); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(props, &node.Properties); err != nil {
		return nil, fmt.Errorf("unmarshaling node properties: %w", err)
	}
	if embedding != nil {
		node.Embedding = embedding.Slice()
	}
	return &node, nil
}

func collectNodes(rows pgxv5.Rows) ([]store.Node, error) {
	var nodes []store.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}
