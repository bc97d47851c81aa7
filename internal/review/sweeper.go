package review

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Sweeper expires unreviewed queue items. Any PENDING item whose
// auto-accept deadline has passed transitions to AUTO_ACCEPTED, which keeps
// abandoned alerts from polluting the tuner's feedback sample.
type Sweeper struct {
	queue    *Queue
	interval time.Duration
}

func NewSweeper(queue *Queue, interval time.Duration) *Sweeper {
	return &Sweeper{queue: queue, interval: interval}
}

// SweepOnce expires every overdue PENDING item and returns how many moved.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.queue.now().UnixMilli()

	var overdue []string
	if err := s.queue.scan(ctx, func(item *models.ReviewQueueItem) {
		if item.Status == models.FeedbackPending && item.AutoAcceptDeadline <= now {
			overdue = append(overdue, item.TxnID)
		}
	}); err != nil {
		return 0, err
	}
	if len(overdue) == 0 {
		return 0, nil
	}

	// Re-check under the transition lock: an analyst may have reviewed an
	// item between the scan and here, and their feedback wins.
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()

	swept := 0
	for _, id := range overdue {
		ok, err := s.queue.transition(ctx, id, models.FeedbackAutoAccepted, "system", "auto-accept deadline elapsed")
		if err != nil {
			return swept, err
		}
		if ok {
			swept++
		}
	}
	return swept, nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	logger := log.With().Str("component", "review-sweeper").Logger()
	logger.Info().Dur("interval", s.interval).Msg("auto-accept sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("auto-accept sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("autoAccepted", n).Msg("expired unreviewed items")
			}
		}
	}
}
