package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sixwire/sixwire/internal/store"
)

func TestValidCode(t *testing.T) {
	valid := []string{"100000", "999999", "123456", "012345", "000000"}
	for _, code := range valid {
		require.True(t, ValidCode(code), "expected %q to be valid", code)
	}

	invalid := []string{"", "12345", "1234567", "12345a", "12 456", "12345６", "-12345"}
	for _, code := range invalid {
		require.False(t, ValidCode(code), "expected %q to be invalid", code)
	}
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(store.NewMemoryStore())

	ident, err := alloc.Reserve(ctx, "123456")
	require.NoError(t, err)
	require.Equal(t, "123456", ident.Code)
	require.False(t, ident.MarkedForDeletion)

	// Occupied codes are a conflict
	_, err = alloc.Reserve(ctx, "123456")
	require.ErrorIs(t, err, ErrCodeTaken)

	// Format failures
	_, err = alloc.Reserve(ctx, "12345")
	require.ErrorIs(t, err, ErrInvalidFormat)
	_, err = alloc.Reserve(ctx, "abcdef")
	require.ErrorIs(t, err, ErrInvalidFormat)

	// Leading zeros are a valid 6-digit code
	_, err = alloc.Reserve(ctx, "012345")
	require.NoError(t, err)
}

func TestIsAvailable(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(store.NewMemoryStore())

	available, err := alloc.IsAvailable(ctx, "555555")
	require.NoError(t, err)
	require.True(t, available)

	_, err = alloc.Reserve(ctx, "555555")
	require.NoError(t, err)

	available, err = alloc.IsAvailable(ctx, "555555")
	require.NoError(t, err)
	require.False(t, available)

	// Format-invalid codes are unavailable, not an error
	available, err = alloc.IsAvailable(ctx, "not-a-code")
	require.NoError(t, err)
	require.False(t, available)
}

func TestAllocateUnique(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	alloc := NewAllocator(st)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := alloc.Allocate(ctx)
		require.NoError(t, err)
		require.True(t, ValidCode(code))
		require.False(t, seen[code], "allocate returned duplicate code %s", code)
		seen[code] = true

		exists, err := st.IdentityExists(ctx, code)
		require.NoError(t, err)
		require.True(t, exists)
	}
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(store.NewMemoryStore())

	_, err := alloc.Reserve(ctx, "111111")
	require.NoError(t, err)

	// Collide twice, then draw a free code.
	draws := []string{"111111", "111111", "222222"}
	alloc.genCode = func() string {
		code := draws[0]
		if len(draws) > 1 {
			draws = draws[1:]
		}
		return code
	}

	code, err := alloc.Allocate(ctx)
	require.NoError(t, err)
	require.Equal(t, "222222", code)
}

func TestAllocateExhausted(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(store.NewMemoryStore())

	_, err := alloc.Reserve(ctx, "111111")
	require.NoError(t, err)

	// Every draw collides, so the attempt budget runs out.
	alloc.genCode = func() string { return "111111" }

	_, err = alloc.Allocate(ctx)
	require.ErrorIs(t, err, ErrAllocationExhausted)

	var coreErr *Error
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, KindExhausted, coreErr.Kind)
}
