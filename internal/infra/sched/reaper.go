package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"media-generation-jobs/internal/usecase"
)

// Reaper periodically fails jobs stuck in 'processing' whose webhook never
// arrived. Optional: a zero reapAfter disables it entirely, matching the
// observed upstream behavior of letting dropped webhooks linger.
type Reaper struct {
	interval    time.Duration
	reapAfter   time.Duration
	reconcileUC usecase.ReconcileUseCase
	log         *zerolog.Logger
}

func NewReaper(interval, reapAfter time.Duration, reconcileUC usecase.ReconcileUseCase, logger *zerolog.Logger) *Reaper {
	l := logger.With().Str("component", "Reaper").Logger()
	return &Reaper{
		interval:    interval,
		reapAfter:   reapAfter,
		reconcileUC: reconcileUC,
		log:         &l,
	}
}

func (r *Reaper) Enabled() bool { return r.reapAfter > 0 }

func (r *Reaper) Run(ctx context.Context) error {
	if !r.Enabled() {
		r.log.Info().Msg("reaper disabled")
		return nil
	}
	r.log.Info().Dur("reap_after", r.reapAfter).Msg("starting reaper")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopping reaper")
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-r.reapAfter)
			n, err := r.reconcileUC.ReapStuck(ctx, cutoff)
			if err != nil {
				r.log.Error().Err(err).Msg("reap pass failed")
			}
			if n > 0 {
				r.log.Info().Int("count", n).Msg("stuck jobs timed out")
			}
		}
	}
}
