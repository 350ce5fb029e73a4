package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sixwire/sixwire/internal/models"
)

// MemoryStore is a map-backed DataStore used in tests. All operations are
// guarded by a single mutex, which mirrors the per-document atomicity the
// SQL stores provide.
type MemoryStore struct {
	mu         sync.Mutex
	identities map[string]models.Identity
	messages   map[string]models.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]models.Identity),
		messages:   make(map[string]models.Message),
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) CreateIdentity(ctx context.Context, ident *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[ident.Code]; ok {
		return ErrDuplicateCode
	}
	s.identities[ident.Code] = *ident
	return nil
}

func (s *MemoryStore) GetIdentity(ctx context.Context, code string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[code]
	if !ok {
		return nil, nil
	}
	return &ident, nil
}

func (s *MemoryStore) IdentityExists(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.identities[code]
	return ok, nil
}

func (s *MemoryStore) TouchIdentity(ctx context.Context, code string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[code]
	if !ok {
		return false, nil
	}
	ident.LastActiveAt = at
	s.identities[code] = ident
	return true, nil
}

func (s *MemoryStore) MarkIdentity(ctx context.Context, code, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[code]
	if !ok {
		return false, nil
	}
	if !ident.MarkedForDeletion {
		ident.MarkedForDeletion = true
		markedAt := at
		ident.MarkedAt = &markedAt
		ident.DeleteReason = reason
		s.identities[code] = ident
	}
	return true, nil
}

func (s *MemoryStore) DeleteIdentity(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[code]; !ok {
		return false, nil
	}
	delete(s.identities, code)
	return true, nil
}

func (s *MemoryStore) ListMarkedBefore(ctx context.Context, cutoff time.Time) ([]models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idents []models.Identity
	for _, ident := range s.identities {
		if ident.MarkedForDeletion && ident.MarkedAt != nil && !ident.MarkedAt.After(cutoff) {
			idents = append(idents, ident)
		}
	}
	return idents, nil
}

func (s *MemoryStore) ListInactiveBefore(ctx context.Context, cutoff time.Time) ([]models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idents []models.Identity
	for _, ident := range s.identities {
		if !ident.MarkedForDeletion && !ident.LastActiveAt.After(cutoff) {
			idents = append(idents, ident)
		}
	}
	return idents, nil
}

func (s *MemoryStore) CountIdentities(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.identities)), nil
}

func (s *MemoryStore) CountMarked(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, ident := range s.identities {
		if ident.MarkedForDeletion {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = *msg
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []models.Message
	for _, msg := range s.messages {
		if msg.RecipientID != recipientID {
			continue
		}
		if unreadOnly && msg.IsRead {
			continue
		}
		msgs = append(msgs, msg)
	}
	// Newest first; ULIDs break ties within the same timestamp.
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return msgs[i].ID > msgs[j].ID
	})
	if offset >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[offset:]
	if limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *MemoryStore) CountMessages(ctx context.Context, recipientID string, unreadOnly bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, msg := range s.messages {
		if msg.RecipientID != recipientID {
			continue
		}
		if unreadOnly && msg.IsRead {
			continue
		}
		count++
	}
	return count, nil
}

func (s *MemoryStore) MarkMessagesRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	var updated int64
	for id, msg := range s.messages {
		if msg.RecipientID != recipientID {
			continue
		}
		if len(ids) > 0 && !idSet[id] {
			continue
		}
		if !msg.IsRead {
			msg.IsRead = true
			s.messages[id] = msg
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) DeleteMessagesByID(ctx context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if _, ok := s.messages[id]; ok {
			delete(s.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) DeleteMessagesInvolving(ctx context.Context, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, msg := range s.messages {
		if msg.SenderID == code || msg.RecipientID == code {
			delete(s.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) CountAllMessages(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.messages)), nil
}
