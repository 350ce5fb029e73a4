package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sixwire/sixwire/internal/models"
	"github.com/sixwire/sixwire/internal/store"
)

func newTestLifecycle(t *testing.T) (*Lifecycle, *Relay, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	alloc := NewAllocator(st)
	ctx := context.Background()
	for _, code := range []string{alice, bob} {
		_, err := alloc.Reserve(ctx, code)
		require.NoError(t, err)
	}
	lc := NewLifecycle(st, zerolog.Nop(), DefaultInactivityThreshold, DefaultGraceWindow)
	return lc, NewRelay(st), st
}

func TestDeleteImmediateCascades(t *testing.T) {
	ctx := context.Background()
	lc, relay, st := newTestLifecycle(t)

	// Three messages involving alice (two sent, one received)
	_, err := relay.Send(ctx, alice, bob, "one", "")
	require.NoError(t, err)
	_, err = relay.Send(ctx, alice, bob, "two", "")
	require.NoError(t, err)
	_, err = relay.Send(ctx, bob, alice, "three", "")
	require.NoError(t, err)

	result, err := lc.Delete(ctx, alice, true, "")
	require.NoError(t, err)
	require.True(t, result.WasDeleted)
	require.Equal(t, int64(3), result.DeletedMessages)
	require.Equal(t, models.ReasonManual, result.Reason)

	exists, err := st.IdentityExists(ctx, alice)
	require.NoError(t, err)
	require.False(t, exists)

	// The purged code is free to reserve again.
	available, err := NewAllocator(st).IsAvailable(ctx, alice)
	require.NoError(t, err)
	require.True(t, available)

	// Deleting an already-purged identity is a successful no-op.
	result, err = lc.Delete(ctx, alice, true, "")
	require.NoError(t, err)
	require.False(t, result.WasDeleted)
	require.Equal(t, int64(0), result.DeletedMessages)
}

func TestDeleteMarksWithoutPurging(t *testing.T) {
	ctx := context.Background()
	lc, _, st := newTestLifecycle(t)

	result, err := lc.Delete(ctx, alice, false, models.ReasonBeacon)
	require.NoError(t, err)
	require.False(t, result.WasDeleted)
	require.Equal(t, models.ReasonBeacon, result.Reason)

	ident, err := st.GetIdentity(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, ident)
	require.True(t, ident.MarkedForDeletion)
	require.NotNil(t, ident.MarkedAt)
	require.Equal(t, models.ReasonBeacon, ident.DeleteReason)

	// Marked identities remain live for lookups until purged.
	exists, err := st.IdentityExists(ctx, alice)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestDeleteUnknownReasonFallsBackToManual(t *testing.T) {
	ctx := context.Background()
	lc, _, _ := newTestLifecycle(t)

	result, err := lc.Delete(ctx, alice, false, "whatever")
	require.NoError(t, err)
	require.Equal(t, models.ReasonManual, result.Reason)
}

func TestDeleteMalformedCodeIsNoOp(t *testing.T) {
	ctx := context.Background()
	lc, _, _ := newTestLifecycle(t)

	result, err := lc.Delete(ctx, "not-a-code", true, "")
	require.NoError(t, err)
	require.False(t, result.WasDeleted)
	require.Equal(t, int64(0), result.DeletedMessages)
}

func TestSweepPurgesAfterGrace(t *testing.T) {
	ctx := context.Background()
	lc, relay, st := newTestLifecycle(t)

	_, err := relay.Send(ctx, bob, alice, "pending", "")
	require.NoError(t, err)

	// Mark alice with a marked_at already past the grace window.
	found, err := st.MarkIdentity(ctx, alice, models.ReasonManual, time.Now().UTC().Add(-3*time.Minute))
	require.NoError(t, err)
	require.True(t, found)

	stats := lc.Sweep(ctx)
	require.Equal(t, 1, stats.Purged)
	require.Equal(t, int64(1), stats.PurgedMessages)
	require.Equal(t, 0, stats.Failures)

	exists, err := st.IdentityExists(ctx, alice)
	require.NoError(t, err)
	require.False(t, exists)

	remaining, err := st.CountAllMessages(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), remaining)
}

func TestSweepLeavesMarkedInsideGrace(t *testing.T) {
	ctx := context.Background()
	lc, _, st := newTestLifecycle(t)

	_, err := lc.Delete(ctx, alice, false, "")
	require.NoError(t, err)

	stats := lc.Sweep(ctx)
	require.Equal(t, 0, stats.Purged)

	exists, err := st.IdentityExists(ctx, alice)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestSweepMarksInactive(t *testing.T) {
	ctx := context.Background()
	lc, _, st := newTestLifecycle(t)

	// Backdate alice past the inactivity threshold; bob stays fresh.
	found, err := st.TouchIdentity(ctx, alice, time.Now().UTC().Add(-20*time.Minute))
	require.NoError(t, err)
	require.True(t, found)

	stats := lc.Sweep(ctx)
	require.Equal(t, 1, stats.Marked)
	require.Equal(t, 0, stats.Purged)

	ident, err := st.GetIdentity(ctx, alice)
	require.NoError(t, err)
	require.True(t, ident.MarkedForDeletion)
	require.Equal(t, models.ReasonInactivity, ident.DeleteReason)

	fresh, err := st.GetIdentity(ctx, bob)
	require.NoError(t, err)
	require.False(t, fresh.MarkedForDeletion)
}

func TestSweepDoesNotPurgeNewlyMarked(t *testing.T) {
	ctx := context.Background()
	lc, _, st := newTestLifecycle(t)

	// alice is long inactive but unmarked; a single pass may mark her, not
	// purge her — purge happens in a later pass once grace elapses.
	_, err := st.TouchIdentity(ctx, alice, time.Now().UTC().Add(-20*time.Minute))
	require.NoError(t, err)

	stats := lc.Sweep(ctx)
	require.Equal(t, 1, stats.Marked)
	require.Equal(t, 0, stats.Purged)

	exists, err := st.IdentityExists(ctx, alice)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestHeartbeatDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	lc, _, st := newTestLifecycle(t)

	_, err := st.MarkIdentity(ctx, alice, models.ReasonManual, time.Now().UTC().Add(-3*time.Minute))
	require.NoError(t, err)

	// Heartbeat succeeds but the mark stays; purge proceeds after grace.
	_, err = lc.Touch(ctx, alice)
	require.NoError(t, err)

	ident, err := st.GetIdentity(ctx, alice)
	require.NoError(t, err)
	require.True(t, ident.MarkedForDeletion)

	stats := lc.Sweep(ctx)
	require.Equal(t, 1, stats.Purged)

	exists, err := st.IdentityExists(ctx, alice)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestTouchUnknown(t *testing.T) {
	ctx := context.Background()
	lc, _, _ := newTestLifecycle(t)

	_, err := lc.Touch(ctx, "999999")
	require.ErrorIs(t, err, ErrUserNotFound)

	lastActive, err := lc.Touch(ctx, alice)
	require.NoError(t, err)
	require.False(t, lastActive.IsZero())
}
