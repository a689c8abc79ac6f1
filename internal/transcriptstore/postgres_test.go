package transcriptstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers — mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

func (r *mockRows) Values() ([]any, error) { return nil, nil }

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
				if !strings.Contains(sql, "CREATE TABLE") {
					t.Errorf("Migrate SQL should contain CREATE TABLE, got: %s", sql)
				}
				return pgconn.CommandTag{}, nil
			},
		}
		store := NewPostgresStore(db)
		if err := store.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate() unexpected error: %v", err)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("connection refused")
			},
		}
		store := NewPostgresStore(db)
		err := store.Migrate(context.Background())
		if err == nil {
			t.Fatal("Migrate() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "transcriptstore: migrate:") {
			t.Errorf("error = %q, want prefix 'transcriptstore: migrate:'", err.Error())
		}
	})
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var capturedSQL string
		var capturedArgs []any

		db := &mockDB{
			queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
				capturedSQL = sql
				capturedArgs = args
				return &mockRow{
					scanFunc: func(dest ...any) error {
						*(dest[0].(*time.Time)) = fixedTime
						return nil
					},
				}
			},
		}

		store := NewPostgresStore(db)
		tr := &Transcription{
			ID:              "tr-1",
			OwnerID:         "mgr-1",
			Text:            "山田さん、最近の調子はいかがですか。",
			SourceAudioName: "visit-0310.m4a",
		}

		if err := store.Save(context.Background(), tr); err != nil {
			t.Fatalf("Save() unexpected error: %v", err)
		}

		if !strings.Contains(capturedSQL, "INSERT INTO transcriptions") {
			t.Errorf("SQL should contain INSERT, got: %s", capturedSQL)
		}
		if len(capturedArgs) != 4 {
			t.Errorf("expected 4 args, got %d", len(capturedArgs))
		}
		if capturedArgs[0] != "tr-1" {
			t.Errorf("first arg = %v, want 'tr-1'", capturedArgs[0])
		}
		if tr.CreatedAt != fixedTime {
			t.Errorf("CreatedAt = %v, want %v", tr.CreatedAt, fixedTime)
		}
	})

	t.Run("empty text accepted", func(t *testing.T) {
		t.Parallel()

		var capturedArgs []any
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
				capturedArgs = args
				return &mockRow{
					scanFunc: func(dest ...any) error {
						*(dest[0].(*time.Time)) = fixedTime
						return nil
					},
				}
			},
		}
		store := NewPostgresStore(db)
		tr := &Transcription{ID: "tr-2", OwnerID: "mgr-1"}
		if err := store.Save(context.Background(), tr); err != nil {
			t.Fatalf("Save() unexpected error: %v", err)
		}
		if capturedArgs[2] != "" {
			t.Errorf("text arg = %v, want empty string", capturedArgs[2])
		}
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		err := store.Save(context.Background(), &Transcription{OwnerID: "mgr-1"})
		if err == nil || !strings.Contains(err.Error(), "id must not be empty") {
			t.Errorf("Save() error = %v, want 'id must not be empty'", err)
		}
	})

	t.Run("missing owner", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		err := store.Save(context.Background(), &Transcription{ID: "tr-3"})
		if err == nil || !strings.Contains(err.Error(), "owner_id must not be empty") {
			t.Errorf("Save() error = %v, want 'owner_id must not be empty'", err)
		}
	})

	t.Run("duplicate key", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{
					scanFunc: func(_ ...any) error {
						return &pgconn.PgError{Code: "23505"}
					},
				}
			},
		}
		store := NewPostgresStore(db)
		err := store.Save(context.Background(), &Transcription{ID: "dup", OwnerID: "mgr-1"})
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("Save() error = %v, want 'already exists'", err)
		}
	})
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		var capturedArgs []any
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
				capturedArgs = args
				return &mockRow{
					scanFunc: func(dest ...any) error {
						*(dest[0].(*string)) = "tr-1"
						*(dest[1].(*string)) = "mgr-1"
						*(dest[2].(*string)) = "text"
						*(dest[3].(*string)) = "a.m4a"
						*(dest[4].(*time.Time)) = fixedTime
						return nil
					},
				}
			},
		}
		store := NewPostgresStore(db)

		tr, err := store.Get(context.Background(), "mgr-1", "tr-1")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if tr == nil {
			t.Fatal("Get() = nil, want transcription")
		}
		if tr.ID != "tr-1" || tr.OwnerID != "mgr-1" || tr.Text != "text" {
			t.Errorf("Get() = %+v", tr)
		}
		// WHERE clause binds id first, owner second.
		if capturedArgs[0] != "tr-1" || capturedArgs[1] != "mgr-1" {
			t.Errorf("args = %v", capturedArgs)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		tr, err := store.Get(context.Background(), "mgr-1", "missing")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if tr != nil {
			t.Errorf("Get() = %+v, want nil", tr)
		}
	})

	t.Run("db error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(_ ...any) error { return errors.New("connection lost") }}
			},
		}
		store := NewPostgresStore(db)
		_, err := store.Get(context.Background(), "mgr-1", "tr-1")
		if err == nil || !strings.Contains(err.Error(), "transcriptstore: get") {
			t.Errorf("Get() error = %v, want wrapped store error", err)
		}
	})
}

func TestPostgresStore_ListByOwner(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var capturedSQL string
		db := &mockDB{
			queryFunc: func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
				capturedSQL = sql
				return &mockRows{data: [][]any{
					{"tr-2", "mgr-1", "newer", "", t1},
					{"tr-1", "mgr-1", "older", "", t2},
				}}, nil
			},
		}
		store := NewPostgresStore(db)

		trs, err := store.ListByOwner(context.Background(), "mgr-1")
		if err != nil {
			t.Fatalf("ListByOwner() unexpected error: %v", err)
		}
		if len(trs) != 2 {
			t.Fatalf("ListByOwner() length = %d, want 2", len(trs))
		}
		if trs[0].ID != "tr-2" || trs[1].ID != "tr-1" {
			t.Errorf("order = [%s, %s], want newest first", trs[0].ID, trs[1].ID)
		}
		if !strings.Contains(capturedSQL, "ORDER BY created_at DESC") {
			t.Errorf("SQL should order newest first, got: %s", capturedSQL)
		}
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		trs, err := store.ListByOwner(context.Background(), "mgr-1")
		if err != nil {
			t.Fatalf("ListByOwner() unexpected error: %v", err)
		}
		if len(trs) != 0 {
			t.Errorf("ListByOwner() length = %d, want 0", len(trs))
		}
	})

	t.Run("query error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryFunc: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
				return nil, errors.New("connection lost")
			},
		}
		store := NewPostgresStore(db)
		_, err := store.ListByOwner(context.Background(), "mgr-1")
		if err == nil || !strings.Contains(err.Error(), "transcriptstore: list:") {
			t.Errorf("ListByOwner() error = %v, want wrapped store error", err)
		}
	})
}
