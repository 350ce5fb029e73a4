package store

import (
	"context"
	"errors"
	"time"

	"github.com/sixwire/sixwire/internal/models"
)

// ErrDuplicateCode is returned by CreateIdentity when the code is already
// taken. The store's uniqueness constraint is the final arbiter for
// allocation races.
var ErrDuplicateCode = errors.New("identity code already exists")

// DataStore defines the interface for persistent storage of identities and
// messages. PostgresStore, SQLiteStore and MemoryStore implement it.
//
// Lookups return (nil, nil) for absent records. All mutations are atomic per
// document; the stores provide no cross-document transactions, which is the
// concurrency model the core is written against.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Identity operations
	CreateIdentity(ctx context.Context, ident *models.Identity) error
	GetIdentity(ctx context.Context, code string) (*models.Identity, error)
	IdentityExists(ctx context.Context, code string) (bool, error)
	TouchIdentity(ctx context.Context, code string, at time.Time) (bool, error)
	MarkIdentity(ctx context.Context, code, reason string, at time.Time) (bool, error)
	DeleteIdentity(ctx context.Context, code string) (bool, error)
	ListMarkedBefore(ctx context.Context, cutoff time.Time) ([]models.Identity, error)
	ListInactiveBefore(ctx context.Context, cutoff time.Time) ([]models.Identity, error)
	CountIdentities(ctx context.Context) (int64, error)
	CountMarked(ctx context.Context) (int64, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]models.Message, error)
	CountMessages(ctx context.Context, recipientID string, unreadOnly bool) (int64, error)
	MarkMessagesRead(ctx context.Context, recipientID string, ids []string) (int64, error)
	DeleteMessagesByID(ctx context.Context, ids []string) (int64, error)
	DeleteMessagesInvolving(ctx context.Context, code string) (int64, error)
	CountAllMessages(ctx context.Context) (int64, error)
}
