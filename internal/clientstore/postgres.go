package clientstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the clients table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
//
// There is deliberately no uniqueness constraint on (owner_id, name):
// distinct clients may share a name, and concurrent find-or-create runs may
// briefly produce duplicates that surface later as an ambiguity flag rather
// than a failed insert.
const Schema = `
CREATE TABLE IF NOT EXISTS clients (
    id               TEXT PRIMARY KEY,
    owner_id         TEXT NOT NULL,
    name             TEXT NOT NULL,
    name_reading     TEXT NOT NULL DEFAULT '',
    birth_date       DATE NOT NULL DEFAULT '1900-01-01',
    gender           TEXT NOT NULL DEFAULT '',
    contact_info     TEXT NOT NULL DEFAULT '',
    care_level       TEXT NOT NULL DEFAULT '',
    insurance_number TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'active',
    notes            TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_clients_owner ON clients(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_clients_owner_name ON clients(owner_id, name);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
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
// clients table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("clientstore: migrate: %w", err)
	}
	return nil
}

const clientColumns = `id, owner_id, name, name_reading, birth_date, gender,
       contact_info, care_level, insurance_number, status, notes,
       created_at, updated_at`

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, c *Client) error {
	if err := validate(c); err != nil {
		return err
	}

	const query = `
		INSERT INTO clients (
			id, owner_id, name, name_reading, birth_date, gender,
			contact_info, care_level, insurance_number, status, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		c.ID, c.OwnerID, c.Name, c.NameReading, birthDateOrSentinel(c), c.Gender,
		c.ContactInfo, c.CareLevel, c.InsuranceNumber, defaultStatus(c.Status), c.Notes,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("clientstore: client with id %q already exists", c.ID)
		}
		return fmt.Errorf("clientstore: create: %w", err)
	}
	return nil
}

// Get implements [Store]. It returns (nil, nil) if no client with the given
// ID exists for the owner.
func (s *PostgresStore) Get(ctx context.Context, ownerID, id string) (*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 AND owner_id = $2`

	var c Client
	err := s.db.QueryRow(ctx, query, id, ownerID).Scan(scanDests(&c)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("clientstore: get %q: %w", id, err)
	}
	return &c, nil
}

// FindByName implements [Store]. Matching is exact on the stored name;
// callers normalise (trim) before looking up. Newest first, so a caller
// picking the first entry of a multi-match gets the most recently created
// record.
func (s *PostgresStore) FindByName(ctx context.Context, ownerID, name string) ([]Client, error) {
	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE owner_id = $1 AND name = $2
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, ownerID, name)
	if err != nil {
		return nil, fmt.Errorf("clientstore: find by name: %w", err)
	}
	return collect(rows, "find by name")
}

// ListByOwner implements [Store].
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Client, error) {
	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("clientstore: list: %w", err)
	}
	return collect(rows, "list")
}

// Update implements [Store].
func (s *PostgresStore) Update(ctx context.Context, c *Client) error {
	if err := validate(c); err != nil {
		return err
	}

	const query = `
		UPDATE clients SET
			name = $3, name_reading = $4, birth_date = $5, gender = $6,
			contact_info = $7, care_level = $8, insurance_number = $9,
			status = $10, notes = $11, updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at`

	err := s.db.QueryRow(ctx, query,
		c.ID, c.OwnerID, c.Name, c.NameReading, birthDateOrSentinel(c), c.Gender,
		c.ContactInfo, c.CareLevel, c.InsuranceNumber, defaultStatus(c.Status), c.Notes,
	).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("clientstore: client with id %q not found", c.ID)
		}
		return fmt.Errorf("clientstore: update: %w", err)
	}
	return nil
}

// UpdateStatus implements [Store].
func (s *PostgresStore) UpdateStatus(ctx context.Context, ownerID, id, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("clientstore: invalid status %q", status)
	}

	const query = `
		UPDATE clients SET status = $3, updated_at = now()
		WHERE id = $1 AND owner_id = $2`

	tag, err := s.db.Exec(ctx, query, id, ownerID, status)
	if err != nil {
		return fmt.Errorf("clientstore: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("clientstore: client with id %q not found", id)
	}
	return nil
}

func collect(rows pgx.Rows, op string) ([]Client, error) {
	defer rows.Close()

	var cs []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(scanDests(&c)...); err != nil {
			return nil, fmt.Errorf("clientstore: %s scan: %w", op, err)
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clientstore: %s: %w", op, err)
	}
	return cs, nil
}

// scanDests returns the scan destinations in clientColumns order.
func scanDests(c *Client) []any {
	return []any{
		&c.ID, &c.OwnerID, &c.Name, &c.NameReading, &c.BirthDate, &c.Gender,
		&c.ContactInfo, &c.CareLevel, &c.InsuranceNumber, &c.Status, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt,
	}
}

func validate(c *Client) error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if c.OwnerID == "" {
		errs = append(errs, errors.New("owner_id must not be empty"))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if c.Status != "" && !ValidStatus(c.Status) {
		errs = append(errs, fmt.Errorf("invalid status %q", c.Status))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// defaultStatus returns the status value, defaulting to [StatusActive] if empty.
func defaultStatus(s string) string {
	if s == "" {
		return StatusActive
	}
	return s
}

// birthDateOrSentinel substitutes [UnknownBirthDate] for a zero birth date.
func birthDateOrSentinel(c *Client) any {
	if c.BirthDate.IsZero() {
		return UnknownBirthDate
	}
	return c.BirthDate
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
