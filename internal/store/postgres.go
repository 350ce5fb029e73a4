package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sixwire/sixwire/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS identities (
		code TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		last_active_at TIMESTAMPTZ NOT NULL,
		marked_for_deletion BOOLEAN NOT NULL DEFAULT FALSE,
		marked_at TIMESTAMPTZ,
		delete_reason TEXT
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		content TEXT NOT NULL,
		sender_fingerprint TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_identities_last_active ON identities(last_active_at);
	CREATE INDEX IF NOT EXISTS idx_identities_marked ON identities(marked_for_deletion, marked_at);
	CREATE INDEX IF NOT EXISTS idx_messages_recipient_time ON messages(recipient_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_recipient_unread ON messages(recipient_id, is_read);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateIdentity inserts a new identity row. Returns ErrDuplicateCode when
// the code is already present.
func (s *PostgresStore) CreateIdentity(ctx context.Context, ident *models.Identity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identities (code, created_at, last_active_at)
		VALUES ($1, $2, $3)
	`, ident.Code, ident.CreatedAt, ident.LastActiveAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

// GetIdentity retrieves an identity by code.
func (s *PostgresStore) GetIdentity(ctx context.Context, code string) (*models.Identity, error) {
	ident := &models.Identity{}
	var reason *string
	err := s.pool.QueryRow(ctx, `
		SELECT code, created_at, last_active_at, marked_for_deletion, marked_at, delete_reason
		FROM identities WHERE code = $1
	`, code).Scan(
		&ident.Code,
		&ident.CreatedAt,
		&ident.LastActiveAt,
		&ident.MarkedForDeletion,
		&ident.MarkedAt,
		&reason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if reason != nil {
		ident.DeleteReason = *reason
	}
	return ident, nil
}

// IdentityExists reports whether an identity holds the given code.
func (s *PostgresStore) IdentityExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM identities WHERE code = $1)
	`, code).Scan(&exists)
	return exists, err
}

// TouchIdentity refreshes last_active_at. Returns false if the identity is absent.
func (s *PostgresStore) TouchIdentity(ctx context.Context, code string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE identities SET last_active_at = $1 WHERE code = $2
	`, at, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkIdentity flags an identity for deletion. Already-marked identities keep
// their original marked_at so the grace window is not extended.
func (s *PostgresStore) MarkIdentity(ctx context.Context, code, reason string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE identities
		SET marked_for_deletion = TRUE, marked_at = $1, delete_reason = $2
		WHERE code = $3 AND marked_for_deletion = FALSE
	`, at, reason, code)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return s.IdentityExists(ctx, code)
}

// DeleteIdentity removes an identity row. Returns false when it was already gone.
func (s *PostgresStore) DeleteIdentity(ctx context.Context, code string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE code = $1`, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListMarkedBefore returns identities marked for deletion at or before cutoff.
func (s *PostgresStore) ListMarkedBefore(ctx context.Context, cutoff time.Time) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, created_at, last_active_at, marked_for_deletion, marked_at, delete_reason
		FROM identities
		WHERE marked_for_deletion = TRUE AND marked_at <= $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgIdentities(rows)
}

// ListInactiveBefore returns unmarked identities whose last activity is at or
// before cutoff.
func (s *PostgresStore) ListInactiveBefore(ctx context.Context, cutoff time.Time) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, created_at, last_active_at, marked_for_deletion, marked_at, delete_reason
		FROM identities
		WHERE marked_for_deletion = FALSE AND last_active_at <= $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgIdentities(rows)
}

func scanPgIdentities(rows pgx.Rows) ([]models.Identity, error) {
	var idents []models.Identity
	for rows.Next() {
		var ident models.Identity
		var reason *string
		err := rows.Scan(
			&ident.Code,
			&ident.CreatedAt,
			&ident.LastActiveAt,
			&ident.MarkedForDeletion,
			&ident.MarkedAt,
			&reason,
		)
		if err != nil {
			return nil, err
		}
		if reason != nil {
			ident.DeleteReason = *reason
		}
		idents = append(idents, ident)
	}
	return idents, rows.Err()
}

// CountIdentities returns the total number of live identities.
func (s *PostgresStore) CountIdentities(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	return count, err
}

// CountMarked returns the number of identities marked for deletion.
func (s *PostgresStore) CountMarked(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities WHERE marked_for_deletion = TRUE`).Scan(&count)
	return count, err
}

// CreateMessage inserts a new message row.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	var fp *string
	if msg.SenderFingerprint != "" {
		fp = &msg.SenderFingerprint
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, content, sender_fingerprint, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.SenderID, msg.RecipientID, msg.Content, fp, msg.CreatedAt, msg.IsRead)
	return err
}

// ListMessages retrieves a recipient's messages newest-first with pagination.
func (s *PostgresStore) ListMessages(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]models.Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, content, sender_fingerprint, created_at, is_read
		FROM messages
		WHERE recipient_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += `
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var fp *string
		err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.RecipientID,
			&msg.Content,
			&fp,
			&msg.CreatedAt,
			&msg.IsRead,
		)
		if err != nil {
			return nil, err
		}
		if fp != nil {
			msg.SenderFingerprint = *fp
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of messages addressed to a recipient.
func (s *PostgresStore) CountMessages(ctx context.Context, recipientID string, unreadOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE recipient_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	var count int64
	err := s.pool.QueryRow(ctx, query, recipientID).Scan(&count)
	return count, err
}

// MarkMessagesRead sets is_read on a recipient's messages, optionally
// restricted to the given ids. Returns the number of rows that flipped
// from unread to read; already-read rows are left untouched.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) > 0 {
		tag, err := s.pool.Exec(ctx, `
			UPDATE messages SET is_read = TRUE
			WHERE recipient_id = $1 AND is_read = FALSE AND id = ANY($2)
		`, recipientID, ids)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE WHERE recipient_id = $1 AND is_read = FALSE
	`, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteMessagesByID removes the given messages. Missing ids are not an error.
func (s *PostgresStore) DeleteMessagesByID(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteMessagesInvolving removes all messages where the code is sender or
// recipient. Used by the purge cascade.
func (s *PostgresStore) DeleteMessagesInvolving(ctx context.Context, code string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM messages WHERE sender_id = $1 OR recipient_id = $1
	`, code)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountAllMessages returns the total number of stored messages.
func (s *PostgresStore) CountAllMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
