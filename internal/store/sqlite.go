package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sixwire/sixwire/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the default store
// when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/sixwire.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/sixwire.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS identities (
		code TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		last_active_at DATETIME NOT NULL,
		marked_for_deletion INTEGER NOT NULL DEFAULT 0,
		marked_at DATETIME,
		delete_reason TEXT
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		content TEXT NOT NULL,
		sender_fingerprint TEXT,
		created_at DATETIME NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_identities_last_active ON identities(last_active_at);
	CREATE INDEX IF NOT EXISTS idx_identities_marked ON identities(marked_for_deletion, marked_at);
	CREATE INDEX IF NOT EXISTS idx_messages_recipient_time ON messages(recipient_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_recipient_unread ON messages(recipient_id, is_read);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateIdentity inserts a new identity row. Returns ErrDuplicateCode when
// the code is already present.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, ident *models.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (code, created_at, last_active_at, marked_for_deletion, marked_at, delete_reason)
		VALUES (?, ?, ?, 0, NULL, NULL)
	`, ident.Code, ident.CreatedAt, ident.LastActiveAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

// GetIdentity retrieves an identity by code.
func (s *SQLiteStore) GetIdentity(ctx context.Context, code string) (*models.Identity, error) {
	ident := &models.Identity{}
	var markedInt int
	var reason sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT code, created_at, last_active_at, marked_for_deletion, marked_at, delete_reason
		FROM identities WHERE code = ?
	`, code).Scan(
		&ident.Code,
		&ident.CreatedAt,
		&ident.LastActiveAt,
		&markedInt,
		&ident.MarkedAt,
		&reason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	ident.MarkedForDeletion = markedInt == 1
	ident.DeleteReason = reason.String
	return ident, nil
}

// IdentityExists reports whether an identity holds the given code.
func (s *SQLiteStore) IdentityExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM identities WHERE code = ?`, code).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TouchIdentity refreshes last_active_at. Returns false if the identity is absent.
func (s *SQLiteStore) TouchIdentity(ctx context.Context, code string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE identities SET last_active_at = ? WHERE code = ?
	`, at, code)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkIdentity flags an identity for deletion. Already-marked identities keep
// their original marked_at so the grace window is not extended.
func (s *SQLiteStore) MarkIdentity(ctx context.Context, code, reason string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET marked_for_deletion = 1, marked_at = ?, delete_reason = ?
		WHERE code = ? AND marked_for_deletion = 0
	`, at, reason, code)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	// Distinguish "absent" from "already marked": both are affected-0.
	return s.IdentityExists(ctx, code)
}

// DeleteIdentity removes an identity row. Returns false when it was already gone.
func (s *SQLiteStore) DeleteIdentity(ctx context.Context, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE code = ?`, code)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListMarkedBefore returns identities marked for deletion at or before cutoff.
func (s *SQLiteStore) ListMarkedBefore(ctx context.Context, cutoff time.Time) ([]models.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, created_at, last_active_at, marked_for_deletion, marked_at, delete_reason
		FROM identities
		WHERE marked_for_deletion = 1 AND marked_at <= ?
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIdentities(rows)
}

// ListInactiveBefore returns unmarked identities whose last activity is at or
// before cutoff.
func (s *SQLiteStore) ListInactiveBefore(ctx context.Context, cutoff time.Time) ([]models.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, created_at, last_active_at, marked_for_deletion, marked_at, delete_reason
		FROM identities
		WHERE marked_for_deletion = 0 AND last_active_at <= ?
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func scanIdentities(rows *sql.Rows) ([]models.Identity, error) {
	var idents []models.Identity
	for rows.Next() {
		var ident models.Identity
		var markedInt int
		var reason sql.NullString
		err := rows.Scan(
			&ident.Code,
			&ident.CreatedAt,
			&ident.LastActiveAt,
			&markedInt,
			&ident.MarkedAt,
			&reason,
		)
		if err != nil {
			return nil, err
		}
		ident.MarkedForDeletion = markedInt == 1
		ident.DeleteReason = reason.String
		idents = append(idents, ident)
	}
	return idents, rows.Err()
}

// CountIdentities returns the total number of live identities.
func (s *SQLiteStore) CountIdentities(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	return count, err
}

// CountMarked returns the number of identities marked for deletion.
func (s *SQLiteStore) CountMarked(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities WHERE marked_for_deletion = 1`).Scan(&count)
	return count, err
}

// CreateMessage inserts a new message row.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	var fp *string
	if msg.SenderFingerprint != "" {
		fp = &msg.SenderFingerprint
	}
	isReadInt := 0
	if msg.IsRead {
		isReadInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, content, sender_fingerprint, created_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, msg.RecipientID, msg.Content, fp, msg.CreatedAt, isReadInt)
	return err
}

// ListMessages retrieves a recipient's messages newest-first with pagination.
func (s *SQLiteStore) ListMessages(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]models.Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, content, sender_fingerprint, created_at, is_read
		FROM messages
		WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var fp sql.NullString
		var isReadInt int
		err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.RecipientID,
			&msg.Content,
			&fp,
			&msg.CreatedAt,
			&isReadInt,
		)
		if err != nil {
			return nil, err
		}
		msg.SenderFingerprint = fp.String
		msg.IsRead = isReadInt == 1
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of messages addressed to a recipient.
func (s *SQLiteStore) CountMessages(ctx context.Context, recipientID string, unreadOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	var count int64
	err := s.db.QueryRowContext(ctx, query, recipientID).Scan(&count)
	return count, err
}

// MarkMessagesRead sets is_read on a recipient's messages, optionally
// restricted to the given ids. Returns the number of rows that flipped
// from unread to read; already-read rows are left untouched.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	query := `UPDATE messages SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`
	args := []interface{}{recipientID}
	if len(ids) > 0 {
		query += fmt.Sprintf(` AND id IN (%s)`, placeholders(len(ids)))
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteMessagesByID removes the given messages. Missing ids are not an error.
func (s *SQLiteStore) DeleteMessagesByID(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM messages WHERE id IN (%s)`, placeholders(len(ids))), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteMessagesInvolving removes all messages where the code is sender or
// recipient. Used by the purge cascade.
func (s *SQLiteStore) DeleteMessagesInvolving(ctx context.Context, code string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE sender_id = ? OR recipient_id = ?
	`, code, code)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountAllMessages returns the total number of stored messages.
func (s *SQLiteStore) CountAllMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
