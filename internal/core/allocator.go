package core

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"github.com/sixwire/sixwire/internal/models"
	"github.com/sixwire/sixwire/internal/store"
)

const (
	codeMin = 100000
	codeMax = 999999

	// The code space is small (900k values), so collisions are expected
	// under load. Bounded retry needs no shared counter and tolerates
	// concurrent allocators without coordination.
	allocateAttempts = 10
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidCode reports whether code is exactly 6 ASCII digits.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Allocator hands out unique 6-digit identity codes. The store's uniqueness
// constraint is the final arbiter: a collision detected at insert time is
// retried, never surfaced as a crash.
type Allocator struct {
	store store.DataStore

	// genCode is swapped out in tests for deterministic draws.
	genCode func() string
}

// NewAllocator creates an allocator backed by the given store.
func NewAllocator(st store.DataStore) *Allocator {
	return &Allocator{store: st, genCode: randomCode}
}

func randomCode() string {
	return strconv.Itoa(codeMin + rand.Intn(codeMax-codeMin+1))
}

// Allocate draws random codes until one inserts cleanly, then returns it.
// Fails with ErrAllocationExhausted when the attempt budget is spent, which
// upstream maps to a temporarily-unavailable response.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for i := 0; i < allocateAttempts; i++ {
		code := a.genCode()
		now := time.Now().UTC()
		ident := &models.Identity{Code: code, CreatedAt: now, LastActiveAt: now}

		err := a.store.CreateIdentity(ctx, ident)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, store.ErrDuplicateCode) {
			continue
		}
		return "", storeFailure("create identity", err)
	}
	return "", ErrAllocationExhausted
}

// Reserve claims a caller-chosen code. The pre-check gives a clean conflict
// answer, but the insert remains the arbiter: losing the race between check
// and insert is reported as taken, same as an occupied code.
func (a *Allocator) Reserve(ctx context.Context, code string) (*models.Identity, error) {
	if !ValidCode(code) {
		return nil, ErrInvalidFormat
	}

	exists, err := a.store.IdentityExists(ctx, code)
	if err != nil {
		return nil, storeFailure("check identity", err)
	}
	if exists {
		return nil, ErrCodeTaken
	}

	now := time.Now().UTC()
	ident := &models.Identity{Code: code, CreatedAt: now, LastActiveAt: now}
	if err := a.store.CreateIdentity(ctx, ident); err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			return nil, ErrCodeTaken
		}
		return nil, storeFailure("create identity", err)
	}
	return ident, nil
}

// IsAvailable reports whether a code can be reserved. Format-invalid codes
// are unavailable, not an error.
func (a *Allocator) IsAvailable(ctx context.Context, code string) (bool, error) {
	if !ValidCode(code) {
		return false, nil
	}
	exists, err := a.store.IdentityExists(ctx, code)
	if err != nil {
		return false, storeFailure("check identity", err)
	}
	return !exists, nil
}
