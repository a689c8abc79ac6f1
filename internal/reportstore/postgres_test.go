package reportstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carescribe/carescribe/pkg/careplan"
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
	return assign(r.data[r.idx-1], dest)
}

func (r *mockRows) Values() ([]any, error) { return nil, nil }

// assign copies a row of test values into scan destinations, handling the
// pointer-typed link columns.
func assign(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case **string:
			if v == nil {
				*d = nil
			} else {
				s := v.(string)
				*d = &s
			}
		case **int:
			if v == nil {
				*d = nil
			} else {
				n := v.(int)
				*d = &n
			}
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

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

// reportRow builds a full scan row in reportColumns order.
func reportRow(id, owner string, trID, clientID any, needsJSON, servicesJSON []byte, created time.Time) []any {
	return []any{
		id, owner, trID, clientID, "山田太郎",
		nil, "要介護2", "", "在宅生活の継続", "1年",
		needsJSON, servicesJSON, "", "", created, created,
	}
}

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Create(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var capturedSQL string
		var capturedArgs []any
		db := &mockDB{
			queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
				capturedSQL = sql
				capturedArgs = args
				return &mockRow{scanFunc: func(dest ...any) error {
					*(dest[0].(*time.Time)) = fixedTime
					*(dest[1].(*time.Time)) = fixedTime
					return nil
				}}
			},
		}
		store := NewPostgresStore(db)
		trID := "tr-1"
		r := &Report{
			ID:              "rep-1",
			OwnerID:         "mgr-1",
			TranscriptionID: &trID,
			SubjectName:     "山田太郎",
			LongTermGoal:    "在宅生活の継続",
			ShortTermNeeds: []careplan.Need{
				{Content: "入浴の確保", Period: "6ヶ月"},
			},
		}

		if err := store.Create(context.Background(), r); err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}
		if !strings.Contains(capturedSQL, "INSERT INTO care_plan_reports") {
			t.Errorf("SQL should contain INSERT, got: %s", capturedSQL)
		}
		if len(capturedArgs) != 14 {
			t.Fatalf("expected 14 args, got %d", len(capturedArgs))
		}
		if r.CreatedAt != fixedTime {
			t.Errorf("CreatedAt = %v, want %v", r.CreatedAt, fixedTime)
		}
	})

	t.Run("nil lists stored as empty arrays", func(t *testing.T) {
		t.Parallel()

		var capturedArgs []any
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
				capturedArgs = args
				return &mockRow{scanFunc: func(dest ...any) error {
					*(dest[0].(*time.Time)) = fixedTime
					*(dest[1].(*time.Time)) = fixedTime
					return nil
				}}
			},
		}
		store := NewPostgresStore(db)
		r := &Report{ID: "rep-2", OwnerID: "mgr-1", LongTermGoal: "g"}
		if err := store.Create(context.Background(), r); err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}
		// short_term_needs is arg index 10, services index 11.
		if got := string(capturedArgs[10].([]byte)); got != "[]" {
			t.Errorf("short_term_needs JSON = %s, want []", got)
		}
		if got := string(capturedArgs[11].([]byte)); got != "[]" {
			t.Errorf("services JSON = %s, want []", got)
		}
	})

	t.Run("missing owner rejected", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		err := store.Create(context.Background(), &Report{ID: "rep-3"})
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("Create() error = %v, want ErrInvalid", err)
		}
		if err == nil || !strings.Contains(err.Error(), "owner_id must not be empty") {
			t.Errorf("Create() error = %v, want owner_id message", err)
		}
	})

	t.Run("empty long-term goal accepted", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(dest ...any) error {
					*(dest[0].(*time.Time)) = fixedTime
					*(dest[1].(*time.Time)) = fixedTime
					return nil
				}}
			},
		}
		store := NewPostgresStore(db)
		// The store is a pure mapping write: a report without a goal is a
		// legal row, required-ness of extracted fields lives upstream.
		r := &Report{ID: "rep-4", OwnerID: "mgr-1"}
		if err := store.Create(context.Background(), r); err != nil {
			t.Errorf("Create() unexpected error: %v", err)
		}
	})

	t.Run("same transcription twice inserts two rows", func(t *testing.T) {
		t.Parallel()
		var inserts int
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				inserts++
				return &mockRow{scanFunc: func(dest ...any) error {
					*(dest[0].(*time.Time)) = fixedTime
					*(dest[1].(*time.Time)) = fixedTime
					return nil
				}}
			},
		}
		store := NewPostgresStore(db)
		// Re-running extraction over the same transcript yields a second,
		// independent report. The store does not deduplicate on
		// transcription_id.
		trID := "tr-9"
		for _, id := range []string{"rep-5", "rep-6"} {
			r := &Report{ID: id, OwnerID: "mgr-1", TranscriptionID: &trID, LongTermGoal: "在宅生活の継続"}
			if err := store.Create(context.Background(), r); err != nil {
				t.Fatalf("Create(%s) unexpected error: %v", id, err)
			}
		}
		if inserts != 2 {
			t.Errorf("insert count = %d, want 2", inserts)
		}
	})

	t.Run("duplicate key", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(_ ...any) error {
					return &pgconn.PgError{Code: "23505"}
				}}
			},
		}
		store := NewPostgresStore(db)
		err := store.Create(context.Background(), &Report{ID: "dup", OwnerID: "mgr-1", LongTermGoal: "g"})
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("Create() error = %v, want 'already exists'", err)
		}
	})
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	t.Run("found with ordered lists", func(t *testing.T) {
		t.Parallel()

		needs := []careplan.Need{
			{Content: "first", Period: "3ヶ月"},
			{Content: "second", Period: "6ヶ月"},
			{Content: "third", Period: "1年"},
		}
		services := []careplan.Service{
			{ServiceType: "訪問介護", Frequency: "週3回"},
			{ServiceType: "通所介護", Frequency: "週2回"},
		}
		needsJSON, _ := json.Marshal(needs)
		servicesJSON, _ := json.Marshal(services)

		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(dest ...any) error {
					return assign(reportRow("rep-1", "mgr-1", "tr-1", "c-1", needsJSON, servicesJSON, created), dest)
				}}
			},
		}
		store := NewPostgresStore(db)

		r, err := store.Get(context.Background(), "mgr-1", "rep-1")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if r == nil {
			t.Fatal("Get() = nil, want report")
		}
		if r.TranscriptionID == nil || *r.TranscriptionID != "tr-1" {
			t.Errorf("TranscriptionID = %v, want tr-1", r.TranscriptionID)
		}
		if r.ClientID == nil || *r.ClientID != "c-1" {
			t.Errorf("ClientID = %v, want c-1", r.ClientID)
		}
		for i, want := range needs {
			if r.ShortTermNeeds[i] != want {
				t.Errorf("ShortTermNeeds[%d] = %+v, want %+v", i, r.ShortTermNeeds[i], want)
			}
		}
		for i, want := range services {
			if r.Services[i] != want {
				t.Errorf("Services[%d] = %+v, want %+v", i, r.Services[i], want)
			}
		}
	})

	t.Run("nil links", func(t *testing.T) {
		t.Parallel()

		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(dest ...any) error {
					return assign(reportRow("rep-2", "mgr-1", nil, nil, []byte("[]"), []byte("[]"), created), dest)
				}}
			},
		}
		store := NewPostgresStore(db)

		r, err := store.Get(context.Background(), "mgr-1", "rep-2")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if r.TranscriptionID != nil || r.ClientID != nil {
			t.Errorf("links = (%v, %v), want both nil", r.TranscriptionID, r.ClientID)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		r, err := store.Get(context.Background(), "mgr-1", "missing")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if r != nil {
			t.Errorf("Get() = %+v, want nil", r)
		}
	})
}

func TestPostgresStore_ListByOwner(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("newest first", func(t *testing.T) {
		t.Parallel()

		var capturedSQL string
		db := &mockDB{
			queryFunc: func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
				capturedSQL = sql
				return &mockRows{data: [][]any{
					reportRow("rep-2", "mgr-1", nil, nil, []byte("[]"), []byte("[]"), t1),
					reportRow("rep-1", "mgr-1", nil, nil, []byte("[]"), []byte("[]"), t2),
				}}, nil
			},
		}
		store := NewPostgresStore(db)

		reports, err := store.ListByOwner(context.Background(), "mgr-1")
		if err != nil {
			t.Fatalf("ListByOwner() unexpected error: %v", err)
		}
		if len(reports) != 2 {
			t.Fatalf("ListByOwner() length = %d, want 2", len(reports))
		}
		if reports[0].ID != "rep-2" || reports[1].ID != "rep-1" {
			t.Errorf("order = [%s, %s], want newest first", reports[0].ID, reports[1].ID)
		}
		if !strings.Contains(capturedSQL, "ORDER BY created_at DESC") {
			t.Errorf("SQL should order newest first, got: %s", capturedSQL)
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
		if err == nil || !strings.Contains(err.Error(), "reportstore: list:") {
			t.Errorf("ListByOwner() error = %v, want wrapped store error", err)
		}
	})
}

func TestPostgresStore_Update(t *testing.T) {
	t.Parallel()

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		r := &Report{ID: "missing", OwnerID: "mgr-1", LongTermGoal: "g"}
		err := store.Update(context.Background(), r)
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("Update() error = %v, want not found", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		fixedTime := time.Date(2026, 4, 3, 15, 0, 0, 0, time.UTC)
		db := &mockDB{
			queryRowFunc: func(_ context.Context, sql string, _ ...any) pgx.Row {
				if !strings.Contains(sql, "UPDATE care_plan_reports SET") {
					t.Errorf("SQL should contain UPDATE, got: %s", sql)
				}
				return &mockRow{scanFunc: func(dest ...any) error {
					*(dest[0].(*time.Time)) = fixedTime
					return nil
				}}
			},
		}
		store := NewPostgresStore(db)
		r := &Report{ID: "rep-1", OwnerID: "mgr-1", LongTermGoal: "修正後の目標"}
		if err := store.Update(context.Background(), r); err != nil {
			t.Fatalf("Update() unexpected error: %v", err)
		}
		if r.UpdatedAt != fixedTime {
			t.Errorf("UpdatedAt = %v, want %v", r.UpdatedAt, fixedTime)
		}
	})
}

func TestPostgresStore_Delete(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var capturedArgs []any
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				if !strings.Contains(sql, "DELETE FROM care_plan_reports") {
					t.Errorf("SQL should contain DELETE, got: %s", sql)
				}
				capturedArgs = args
				return pgconn.NewCommandTag("DELETE 1"), nil
			},
		}
		store := NewPostgresStore(db)
		if err := store.Delete(context.Background(), "mgr-1", "rep-1"); err != nil {
			t.Fatalf("Delete() unexpected error: %v", err)
		}
		if capturedArgs[0] != "rep-1" || capturedArgs[1] != "mgr-1" {
			t.Errorf("args = %v", capturedArgs)
		}
	})

	t.Run("non-existent is not an error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.NewCommandTag("DELETE 0"), nil
			},
		}
		store := NewPostgresStore(db)
		if err := store.Delete(context.Background(), "mgr-1", "missing"); err != nil {
			t.Fatalf("Delete() unexpected error: %v", err)
		}
	})
}
