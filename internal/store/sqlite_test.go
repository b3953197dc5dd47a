package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/sebas-inf/venice/internal/errors"
)

type nopMetrics struct{}

func (nopMetrics) IncStoreWrites(string, int32, string)      {}
func (nopMetrics) ObserveStoreWriteDuration(string, float64) {}
func (nopMetrics) IncStoreErrors(string)                     {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path, testLogger(), nopMetrics{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPutGet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Put(ctx, "orders", 0, []byte("k1"), []byte("v1"), 10); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := st.Get(ctx, "orders", 0, []byte("k1"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("Get() = %q, want %q", got, "v1")
	}
}

func TestPutUpsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Put(ctx, "orders", 0, []byte("k1"), []byte("v1"), 10); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := st.Put(ctx, "orders", 0, []byte("k1"), []byte("v2"), 11); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	got, err := st.Get(ctx, "orders", 0, []byte("k1"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get() = %q, want %q", got, "v2")
	}

	n, err := st.Count(ctx, "orders", 0)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Put(ctx, "orders", 0, []byte("k1"), []byte("v1"), 10); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := st.Delete(ctx, "orders", 0, []byte("k1")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := st.Get(ctx, "orders", 0, []byte("k1"))
	if !stderrors.Is(err, sql.ErrNoRows) {
		t.Errorf("Get() error = %v, want sql.ErrNoRows", err)
	}
}

func TestPartitionIsolation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// The same key on different partitions maps to different rows.
	if err := st.Put(ctx, "orders", 0, []byte("k"), []byte("p0"), 1); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := st.Put(ctx, "orders", 1, []byte("k"), []byte("p1"), 1); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := st.Get(ctx, "orders", 0, []byte("k"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "p0" {
		t.Errorf("Get(partition 0) = %q, want %q", got, "p0")
	}
}

func TestClosedStore(t *testing.T) {
	st := openTestStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctx := context.Background()
	if err := st.Put(ctx, "orders", 0, []byte("k"), []byte("v"), 1); !stderrors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("Put() after Close error = %v, want ErrStoreClosed", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}
