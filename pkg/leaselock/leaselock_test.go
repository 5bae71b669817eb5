package leaselock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubRow struct {
	key string
	err error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if s, ok := dest[0].(*string); ok {
			*s = r.key
		}
	}
	return nil
}

type stubDB struct {
	rows      []stubRow
	queryArgs [][]any
	execSQL   []string
}

func (db *stubDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (db *stubDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.queryArgs = append(db.queryArgs, args)
	if len(db.rows) == 0 {
		return stubRow{err: pgx.ErrNoRows}
	}
	row := db.rows[0]
	db.rows = db.rows[1:]
	return row
}

func TestAcquireAndRelease(t *testing.T) {
	db := &stubDB{rows: []stubRow{{key: "ingest:a.csv"}}}
	c := &Client{db: db}

	lease, err := c.Acquire(context.Background(), "ingest:a.csv", Options{TokenPrefix: "worker1_"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease.Key != "ingest:a.csv" {
		t.Errorf("lease key = %q", lease.Key)
	}
	if !strings.HasPrefix(lease.Token, "worker1_") {
		t.Errorf("token %q missing prefix", lease.Token)
	}
	if lease.Context.Err() != nil {
		t.Errorf("lease context done before release: %v", lease.Context.Err())
	}

	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if lease.Context.Err() == nil {
		t.Error("lease context still live after release")
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "DELETE FROM ingest_locks") {
		t.Errorf("release exec = %v", db.execSQL)
	}
}

func TestAcquireBusyWithoutWait(t *testing.T) {
	db := &stubDB{}
	c := &Client{db: db}

	_, err := c.Acquire(context.Background(), "ingest:a.csv", Options{})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	// First probe finds the lock held, second succeeds.
	db := &stubDB{rows: []stubRow{{err: pgx.ErrNoRows}, {key: "k"}}}
	c := &Client{db: db}

	lease, err := c.Acquire(context.Background(), "k", Options{
		Wait:         true,
		WaitInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release(context.Background())

	if len(db.queryArgs) != 2 {
		t.Errorf("acquire attempts = %d, want 2", len(db.queryArgs))
	}
}

func TestAcquireEmptyKey(t *testing.T) {
	c := &Client{db: &stubDB{}}
	if _, err := c.Acquire(context.Background(), "", Options{}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestWithLeaseReleasesAfterFn(t *testing.T) {
	db := &stubDB{rows: []stubRow{{key: "k"}}}
	c := &Client{db: db}

	ran := false
	err := c.WithLease(context.Background(), "k", Options{}, func(ctx context.Context) error {
		ran = true
		if ctx.Err() != nil {
			t.Errorf("lease context done during fn: %v", ctx.Err())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLease: %v", err)
	}
	if !ran {
		t.Error("fn not called")
	}
	if len(db.execSQL) != 1 {
		t.Errorf("release not issued, execs = %v", db.execSQL)
	}
}

func TestRenewOnceLostLease(t *testing.T) {
	db := &stubDB{}
	c := &Client{db: db}
	lease := &Lease{
		Key:     "k",
		Token:   "tok",
		Context: context.Background(),
		client:  c,
	}

	if err := lease.renewOnce(5000); !errors.Is(err, ErrLost) {
		t.Fatalf("err = %v, want ErrLost", err)
	}
}
