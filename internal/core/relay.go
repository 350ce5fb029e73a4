package core

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/sixwire/sixwire/internal/metrics"
	"github.com/sixwire/sixwire/internal/models"
	"github.com/sixwire/sixwire/internal/store"
)

const (
	maxContentLength = 1000
	defaultPageLimit = 20
	maxPageLimit     = 100

	// Ten or more consecutive repeats of one character is treated as spam.
	spamRunLength = 10
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Relay moves messages between identities: validated send, consume-on-read
// receive, and read-state updates.
type Relay struct {
	store store.DataStore
}

// NewRelay creates a relay backed by the given store.
func NewRelay(st store.DataStore) *Relay {
	return &Relay{store: st}
}

// SendReceipt is returned on a successful send.
type SendReceipt struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Pagination describes the inbox state after a receive. Totals reflect the
// post-deletion remaining count, since receiving shrinks the set.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// Inbox is the result of a receive call.
type Inbox struct {
	Messages     []models.Message `json:"messages"`
	Pagination   Pagination       `json:"pagination"`
	UnreadCount  *int64           `json:"unread_count,omitempty"`
	DeletedCount int64            `json:"deleted_count"`
}

// NormalizeContent trims outer whitespace and collapses internal runs of
// whitespace to a single space.
func NormalizeContent(content string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(content), " ")
}

// validateContent normalizes and checks message content, returning the
// normalized form or a validation error with a specific reason.
func validateContent(content string) (string, *Error) {
	normalized := NormalizeContent(content)
	if normalized == "" {
		return "", invalidMessage("message is empty")
	}
	if utf8.RuneCountInString(normalized) > maxContentLength {
		return "", invalidMessage("message too long (max 1000 characters)")
	}
	if hasRepeatedRun(normalized, spamRunLength) {
		return "", invalidMessage("message looks like spam: repeated characters")
	}
	if containsURL(normalized) {
		return "", invalidMessage("message looks like spam: links are not allowed")
	}
	return normalized, nil
}

// hasRepeatedRun reports whether s contains n or more consecutive repeats of
// one character. RE2 has no backreferences, so this is a loop.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

func containsURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "http://") || strings.Contains(lower, "https://")
}

// Send validates and persists a message from senderID to recipientID and
// refreshes the recipient's last_active_at. Exactly one message row is
// created and one identity row touched, on success only.
func (r *Relay) Send(ctx context.Context, senderID, recipientID, content, fingerprint string) (*SendReceipt, error) {
	if !ValidCode(senderID) {
		return nil, ErrInvalidSenderID
	}
	if !ValidCode(recipientID) {
		return nil, ErrInvalidRecipientID
	}
	if senderID == recipientID {
		return nil, ErrSelfSend
	}

	normalized, verr := validateContent(content)
	if verr != nil {
		return nil, verr
	}

	exists, err := r.store.IdentityExists(ctx, senderID)
	if err != nil {
		return nil, storeFailure("check sender", err)
	}
	if !exists {
		return nil, ErrSenderNotFound
	}
	exists, err = r.store.IdentityExists(ctx, recipientID)
	if err != nil {
		return nil, storeFailure("check recipient", err)
	}
	if !exists {
		return nil, ErrRecipientNotFound
	}

	now := time.Now().UTC()
	msg := &models.Message{
		ID:                ulid.Make().String(),
		SenderID:          senderID,
		RecipientID:       recipientID,
		Content:           normalized,
		SenderFingerprint: fingerprint,
		CreatedAt:         now,
	}
	if err := r.store.CreateMessage(ctx, msg); err != nil {
		return nil, storeFailure("create message", err)
	}
	if _, err := r.store.TouchIdentity(ctx, recipientID, now); err != nil {
		return nil, storeFailure("touch recipient", err)
	}

	metrics.MessagesSent.Inc()
	return &SendReceipt{MessageID: msg.ID, Timestamp: now}, nil
}

// Receive returns a page of the recipient's inbox, newest first, and
// permanently deletes every message it returns. Fetched messages cannot be
// fetched twice; the client is responsible for retaining them.
//
// The query-then-delete is two store operations, not one: two concurrent
// receives for the same recipient can select overlapping messages before
// either deletes, double-delivering the overlap. This is an accepted, bounded
// risk for the single-recipient-reads-own-inbox pattern and is deliberately
// not masked here.
func (r *Relay) Receive(ctx context.Context, recipientID string, page, limit int, unreadOnly bool) (*Inbox, error) {
	exists, err := r.store.IdentityExists(ctx, recipientID)
	if err != nil {
		return nil, storeFailure("check recipient", err)
	}
	if !exists {
		return nil, ErrRecipientNotFound
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := (page - 1) * limit

	msgs, err := r.store.ListMessages(ctx, recipientID, unreadOnly, limit, offset)
	if err != nil {
		return nil, storeFailure("list messages", err)
	}

	var deleted int64
	if len(msgs) > 0 {
		ids := make([]string, len(msgs))
		for i, msg := range msgs {
			ids[i] = msg.ID
		}
		deleted, err = r.store.DeleteMessagesByID(ctx, ids)
		if err != nil {
			return nil, storeFailure("consume messages", err)
		}
	}

	// Pagination is computed against what remains after this page's
	// deletions, not the pre-delete total.
	remaining, err := r.store.CountMessages(ctx, recipientID, unreadOnly)
	if err != nil {
		return nil, storeFailure("count messages", err)
	}

	var unreadCount *int64
	if !unreadOnly {
		unread, err := r.store.CountMessages(ctx, recipientID, true)
		if err != nil {
			return nil, storeFailure("count unread", err)
		}
		unreadCount = &unread
	}

	if _, err := r.store.TouchIdentity(ctx, recipientID, time.Now().UTC()); err != nil {
		return nil, storeFailure("touch recipient", err)
	}

	totalPages := remaining / int64(limit)
	if remaining%int64(limit) != 0 {
		totalPages++
	}

	metrics.MessagesDelivered.Add(float64(len(msgs)))

	if msgs == nil {
		msgs = []models.Message{}
	}
	return &Inbox{
		Messages: msgs,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      remaining,
			TotalPages: totalPages,
			HasMore:    remaining > 0,
		},
		UnreadCount:  unreadCount,
		DeletedCount: deleted,
	}, nil
}

// MarkRead flags the user's messages as read, optionally restricted to the
// given ids. Re-marking an already-read message is a no-op, not an error.
// This operates on messages not yet consumed by Receive.
func (r *Relay) MarkRead(ctx context.Context, userID string, messageIDs []string) (int64, error) {
	exists, err := r.store.IdentityExists(ctx, userID)
	if err != nil {
		return 0, storeFailure("check identity", err)
	}
	if !exists {
		return 0, ErrUserNotFound
	}

	updated, err := r.store.MarkMessagesRead(ctx, userID, messageIDs)
	if err != nil {
		return 0, storeFailure("mark read", err)
	}
	return updated, nil
}
