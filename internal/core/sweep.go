package core

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sixwire/sixwire/internal/metrics"
)

// Sweeper runs the lifecycle sweep on a fixed interval.
type Sweeper struct {
	scheduler *gocron.Scheduler
}

// StartSweeper schedules the periodic sweep and starts it asynchronously.
func StartSweeper(lc *Lifecycle, interval time.Duration, logger zerolog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(interval).Do(func() {
		runID := uuid.Must(uuid.NewV7())
		start := time.Now()

		stats := lc.Sweep(context.Background())

		metrics.SweepDuration.Observe(time.Since(start).Seconds())
		logger.Info().
			Str("run_id", runID.String()).
			Int("purged", stats.Purged).
			Int64("purged_messages", stats.PurgedMessages).
			Int("marked", stats.Marked).
			Int("failures", stats.Failures).
			Dur("duration", time.Since(start)).
			Msg("sweep completed")
	})
	if err != nil {
		return nil, err
	}

	scheduler.StartAsync()
	return &Sweeper{scheduler: scheduler}, nil
}

// Stop halts the sweep loop. Safe to call once during shutdown.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}
