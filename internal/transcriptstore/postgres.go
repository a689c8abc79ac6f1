package transcriptstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the transcriptions table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
    id                TEXT PRIMARY KEY,
    owner_id          TEXT NOT NULL,
    text              TEXT NOT NULL DEFAULT '',
    source_audio_name TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_owner ON transcriptions(owner_id, created_at DESC);
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
// transcriptions table and index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("transcriptstore: migrate: %w", err)
	}
	return nil
}

// Save implements [Store]. Empty text is accepted: a conversation with no
// recognisable speech still leaves an auditable record.
func (s *PostgresStore) Save(ctx context.Context, tr *Transcription) error {
	if tr.ID == "" {
		return errors.New("transcriptstore: id must not be empty")
	}
	if tr.OwnerID == "" {
		return errors.New("transcriptstore: owner_id must not be empty")
	}

	const query = `
		INSERT INTO transcriptions (id, owner_id, text, source_audio_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		tr.ID, tr.OwnerID, tr.Text, tr.SourceAudioName,
	).Scan(&tr.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("transcriptstore: transcription with id %q already exists", tr.ID)
		}
		return fmt.Errorf("transcriptstore: save: %w", err)
	}
	return nil
}

// Get implements [Store]. It returns (nil, nil) if no transcription with the
// given ID exists for the owner.
func (s *PostgresStore) Get(ctx context.Context, ownerID, id string) (*Transcription, error) {
	const query = `
		SELECT id, owner_id, text, source_audio_name, created_at
		FROM transcriptions
		WHERE id = $1 AND owner_id = $2`

	var tr Transcription
	err := s.db.QueryRow(ctx, query, id, ownerID).Scan(
		&tr.ID, &tr.OwnerID, &tr.Text, &tr.SourceAudioName, &tr.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("transcriptstore: get %q: %w", id, err)
	}
	return &tr, nil
}

// ListByOwner implements [Store].
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Transcription, error) {
	const query = `
		SELECT id, owner_id, text, source_audio_name, created_at
		FROM transcriptions
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("transcriptstore: list: %w", err)
	}
	defer rows.Close()

	var trs []Transcription
	for rows.Next() {
		var tr Transcription
		if err := rows.Scan(
			&tr.ID, &tr.OwnerID, &tr.Text, &tr.SourceAudioName, &tr.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("transcriptstore: list scan: %w", err)
		}
		trs = append(trs, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcriptstore: list: %w", err)
	}
	return trs, nil
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
