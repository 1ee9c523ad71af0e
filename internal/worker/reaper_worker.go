package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepdeck/prepdeck-backend/internal/service"
)

const (
	// ReaperBatchSize caps how many abandoned attempts one sweep handles.
	ReaperBatchSize = 50
	// AbandonGrace is how long an ACTIVE attempt may sit without any
	// persistence activity before the reaper finalizes it. The stored
	// countdown does not advance while the owner is away, so this horizon
	// is deliberately generous.
	AbandonGrace = 24 * time.Hour
)

// ReaperWorker periodically finalizes attempts whose owner disappeared
// without submitting: the server restarted mid-attempt and the user never
// resumed. Whatever was last persisted gets graded, reason TIMEOUT.
type ReaperWorker struct {
	exams    *service.ExamService
	interval time.Duration
	log      zerolog.Logger
}

// NewReaperWorker creates a new ReaperWorker.
func NewReaperWorker(exams *service.ExamService, interval time.Duration, log zerolog.Logger) *ReaperWorker {
	return &ReaperWorker{
		exams:    exams,
		interval: interval,
		log:      log.With().Str("component", "reaper_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *ReaperWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReaperWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-AbandonGrace)
	abandoned, err := w.exams.ListAbandoned(ctx, cutoff, ReaperBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("Sweep query failed")
		return
	}

	expired := 0
	for i := range abandoned {
		if err := w.exams.ForceExpire(ctx, &abandoned[i]); err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", abandoned[i].ID.String()).
				Msg("Force expire failed")
			continue
		}
		expired++
	}

	if expired > 0 {
		w.log.Info().Int("count", expired).Msg("Expired abandoned attempts")
	}
}
