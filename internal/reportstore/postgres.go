package reportstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carescribe/carescribe/pkg/careplan"
)

// Schema is the SQL DDL for the care_plan_reports table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
//
// short_term_needs and services are JSONB arrays; JSON arrays preserve
// element order, so extraction order survives a round trip.
const Schema = `
CREATE TABLE IF NOT EXISTS care_plan_reports (
    id                    TEXT PRIMARY KEY,
    owner_id              TEXT NOT NULL,
    transcription_id      TEXT,
    client_id             TEXT,
    subject_name          TEXT NOT NULL DEFAULT '',
    subject_age           INTEGER,
    care_level            TEXT NOT NULL DEFAULT '',
    life_issues           TEXT NOT NULL DEFAULT '',
    long_term_goal        TEXT NOT NULL DEFAULT '',
    long_term_goal_period TEXT NOT NULL DEFAULT '',
    short_term_needs      JSONB NOT NULL DEFAULT '[]',
    services              JSONB NOT NULL DEFAULT '[]',
    equipment             TEXT NOT NULL DEFAULT '',
    remarks               TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_care_plan_reports_owner ON care_plan_reports(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_care_plan_reports_client ON care_plan_reports(client_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
// It serialises the needs and services lists as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// care_plan_reports table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("reportstore: migrate: %w", err)
	}
	return nil
}

const reportColumns = `id, owner_id, transcription_id, client_id, subject_name,
       subject_age, care_level, life_issues, long_term_goal, long_term_goal_period,
       short_term_needs, services, equipment, remarks, created_at, updated_at`

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, r *Report) error {
	if err := validate(r); err != nil {
		return err
	}

	needsJSON, servicesJSON, err := marshalLists(r)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO care_plan_reports (
			id, owner_id, transcription_id, client_id, subject_name,
			subject_age, care_level, life_issues, long_term_goal, long_term_goal_period,
			short_term_needs, services, equipment, remarks
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		r.ID, r.OwnerID, r.TranscriptionID, r.ClientID, r.SubjectName,
		r.SubjectAge, r.CareLevel, r.LifeIssues, r.LongTermGoal, r.LongTermGoalPeriod,
		needsJSON, servicesJSON, r.Equipment, r.Remarks,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("reportstore: report with id %q already exists", r.ID)
		}
		return fmt.Errorf("reportstore: create: %w", err)
	}
	return nil
}

// Get implements [Store]. It returns (nil, nil) if no report with the given
// ID exists for the owner.
func (s *PostgresStore) Get(ctx context.Context, ownerID, id string) (*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM care_plan_reports WHERE id = $1 AND owner_id = $2`

	var r Report
	var needsJSON, servicesJSON []byte
	err := s.db.QueryRow(ctx, query, id, ownerID).Scan(scanDests(&r, &needsJSON, &servicesJSON)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reportstore: get %q: %w", id, err)
	}

	if err := unmarshalLists(&r, needsJSON, servicesJSON); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListByOwner implements [Store].
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Report, error) {
	query := `SELECT ` + reportColumns + `
		FROM care_plan_reports
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("reportstore: list: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		var needsJSON, servicesJSON []byte
		if err := rows.Scan(scanDests(&r, &needsJSON, &servicesJSON)...); err != nil {
			return nil, fmt.Errorf("reportstore: list scan: %w", err)
		}
		if err := unmarshalLists(&r, needsJSON, servicesJSON); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reportstore: list: %w", err)
	}
	return reports, nil
}

// Update implements [Store]. Link columns (transcription_id, client_id) are
// content too: clearing a stale client link is a legitimate edit.
func (s *PostgresStore) Update(ctx context.Context, r *Report) error {
	if err := validate(r); err != nil {
		return err
	}

	needsJSON, servicesJSON, err := marshalLists(r)
	if err != nil {
		return err
	}

	const query = `
		UPDATE care_plan_reports SET
			transcription_id = $3, client_id = $4, subject_name = $5,
			subject_age = $6, care_level = $7, life_issues = $8,
			long_term_goal = $9, long_term_goal_period = $10,
			short_term_needs = $11, services = $12, equipment = $13,
			remarks = $14, updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at`

	err = s.db.QueryRow(ctx, query,
		r.ID, r.OwnerID, r.TranscriptionID, r.ClientID, r.SubjectName,
		r.SubjectAge, r.CareLevel, r.LifeIssues, r.LongTermGoal, r.LongTermGoalPeriod,
		needsJSON, servicesJSON, r.Equipment, r.Remarks,
	).Scan(&r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reportstore: report with id %q not found", r.ID)
		}
		return fmt.Errorf("reportstore: update: %w", err)
	}
	return nil
}

// Delete implements [Store]. Deleting a non-existent report is not an error.
func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) error {
	const query = `DELETE FROM care_plan_reports WHERE id = $1 AND owner_id = $2`
	_, err := s.db.Exec(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("reportstore: delete %q: %w", id, err)
	}
	return nil
}

// scanDests returns the scan destinations in reportColumns order.
func scanDests(r *Report, needsJSON, servicesJSON *[]byte) []any {
	return []any{
		&r.ID, &r.OwnerID, &r.TranscriptionID, &r.ClientID, &r.SubjectName,
		&r.SubjectAge, &r.CareLevel, &r.LifeIssues, &r.LongTermGoal, &r.LongTermGoalPeriod,
		needsJSON, servicesJSON, &r.Equipment, &r.Remarks, &r.CreatedAt, &r.UpdatedAt,
	}
}

// marshalLists serialises the needs and services lists, substituting empty
// arrays for nil so the JSONB columns hold "[]" instead of "null".
func marshalLists(r *Report) (needsJSON, servicesJSON []byte, err error) {
	needs := r.ShortTermNeeds
	if needs == nil {
		needs = []careplan.Need{}
	}
	needsJSON, err = json.Marshal(needs)
	if err != nil {
		return nil, nil, fmt.Errorf("reportstore: marshal short_term_needs: %w", err)
	}
	services := r.Services
	if services == nil {
		services = []careplan.Service{}
	}
	servicesJSON, err = json.Marshal(services)
	if err != nil {
		return nil, nil, fmt.Errorf("reportstore: marshal services: %w", err)
	}
	return needsJSON, servicesJSON, nil
}

// unmarshalLists deserialises the JSONB columns into the corresponding
// [Report] fields.
func unmarshalLists(r *Report, needsJSON, servicesJSON []byte) error {
	if err := json.Unmarshal(needsJSON, &r.ShortTermNeeds); err != nil {
		return fmt.Errorf("reportstore: unmarshal short_term_needs: %w", err)
	}
	if err := json.Unmarshal(servicesJSON, &r.Services); err != nil {
		return fmt.Errorf("reportstore: unmarshal services: %w", err)
	}
	return nil
}

func validate(r *Report) error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if r.OwnerID == "" {
		errs = append(errs, errors.New("owner_id must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
