package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sixwire/sixwire/internal/metrics"
	"github.com/sixwire/sixwire/internal/models"
	"github.com/sixwire/sixwire/internal/store"
)

// Default reclamation timings. Overridable through config for tests and
// tuning.
const (
	DefaultInactivityThreshold = 15 * time.Minute
	DefaultGraceWindow         = 2 * time.Minute
	DefaultSweepInterval       = 5 * time.Minute
)

// Lifecycle drives the per-identity state machine:
// ACTIVE -> MARKED_FOR_DELETION -> PURGED.
type Lifecycle struct {
	store      store.DataStore
	logger     zerolog.Logger
	inactivity time.Duration
	grace      time.Duration
}

// NewLifecycle creates a lifecycle manager. Non-positive durations fall back
// to the defaults.
func NewLifecycle(st store.DataStore, logger zerolog.Logger, inactivity, grace time.Duration) *Lifecycle {
	if inactivity <= 0 {
		inactivity = DefaultInactivityThreshold
	}
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Lifecycle{store: st, logger: logger, inactivity: inactivity, grace: grace}
}

// DeleteResult reports what a deletion request actually did.
type DeleteResult struct {
	DeletedMessages int64  `json:"deleted_messages"`
	WasDeleted      bool   `json:"was_deleted"`
	Reason          string `json:"reason"`
}

// Delete handles an explicit deletion request. Immediate requests purge right
// away; otherwise the identity is marked and purged by the sweep after the
// grace window. Deleting an absent identity is a successful no-op: cleanup
// must never fail the caller for state it cannot observe (duplicate beacon
// calls on page unload are the common case).
func (l *Lifecycle) Delete(ctx context.Context, userID string, immediate bool, reason string) (*DeleteResult, error) {
	if reason != models.ReasonBeacon {
		reason = models.ReasonManual
	}

	if !ValidCode(userID) {
		return &DeleteResult{Reason: reason}, nil
	}

	if immediate {
		return l.purge(ctx, userID, reason)
	}

	found, err := l.store.MarkIdentity(ctx, userID, reason, time.Now().UTC())
	if err != nil {
		return nil, storeFailure("mark identity", err)
	}
	if found {
		metrics.IdentitiesMarked.WithLabelValues(reason).Inc()
	}
	return &DeleteResult{Reason: reason}, nil
}

// purge cascades: delete all messages the identity sent or received, then the
// identity row itself. Both deletes are idempotent at the store level, so two
// purges racing resolve as not-found-is-ok.
func (l *Lifecycle) purge(ctx context.Context, code, reason string) (*DeleteResult, error) {
	deletedMsgs, err := l.store.DeleteMessagesInvolving(ctx, code)
	if err != nil {
		return nil, storeFailure("cascade delete messages", err)
	}
	wasDeleted, err := l.store.DeleteIdentity(ctx, code)
	if err != nil {
		return nil, storeFailure("delete identity", err)
	}

	if wasDeleted {
		metrics.IdentitiesPurged.WithLabelValues(reason).Inc()
		metrics.MessagesPurged.Add(float64(deletedMsgs))
	}
	return &DeleteResult{DeletedMessages: deletedMsgs, WasDeleted: wasDeleted, Reason: reason}, nil
}

// Touch refreshes last_active_at (heartbeat) and returns the new timestamp.
// A marked identity is touched but NOT resurrected: it still purges once its
// grace window elapses. Resurrecting on heartbeat was considered and
// rejected to bound worst-case cleanup latency.
func (l *Lifecycle) Touch(ctx context.Context, userID string) (time.Time, error) {
	now := time.Now().UTC()
	found, err := l.store.TouchIdentity(ctx, userID, now)
	if err != nil {
		return time.Time{}, storeFailure("touch identity", err)
	}
	if !found {
		return time.Time{}, ErrUserNotFound
	}
	return now, nil
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Purged         int
	PurgedMessages int64
	Marked         int
	Failures       int
}

// Sweep advances the state machine for all identities: first purge everything
// past its grace window, then mark the newly inactive. Purge-before-mark
// guarantees an identity marked in this pass is not purged in the same pass.
// Each identity's transition is independent; a failing purge is logged and
// does not abort the rest of the pass.
func (l *Lifecycle) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	now := time.Now().UTC()

	marked, err := l.store.ListMarkedBefore(ctx, now.Add(-l.grace))
	if err != nil {
		l.logger.Error().Err(err).Msg("sweep: listing marked identities failed")
		stats.Failures++
	}
	for _, ident := range marked {
		res, err := l.purge(ctx, ident.Code, ident.DeleteReason)
		if err != nil {
			l.logger.Error().Err(err).Str("code", ident.Code).Msg("sweep: purge failed")
			stats.Failures++
			continue
		}
		stats.Purged++
		stats.PurgedMessages += res.DeletedMessages
	}

	inactive, err := l.store.ListInactiveBefore(ctx, now.Add(-l.inactivity))
	if err != nil {
		l.logger.Error().Err(err).Msg("sweep: listing inactive identities failed")
		stats.Failures++
	}
	for _, ident := range inactive {
		if _, err := l.store.MarkIdentity(ctx, ident.Code, models.ReasonInactivity, now); err != nil {
			l.logger.Error().Err(err).Str("code", ident.Code).Msg("sweep: mark failed")
			stats.Failures++
			continue
		}
		metrics.IdentitiesMarked.WithLabelValues(models.ReasonInactivity).Inc()
		stats.Marked++
	}

	return stats
}
