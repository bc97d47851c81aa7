package forest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Trainer retrains clients whose sample rings have gathered enough fresh
// vectors, on a fixed cadence. Single-instance: a slow cycle delays the next
// tick rather than overlapping it.
type Trainer struct {
	manager  *Manager
	interval time.Duration
}

// NewTrainer builds the periodic trainer.
func NewTrainer(m *Manager, interval time.Duration) *Trainer {
	return &Trainer{manager: m, interval: interval}
}

// TrainOnce retrains every currently trainable client and returns how many
// models were produced. Per-client failures are logged and skipped.
func (t *Trainer) TrainOnce(ctx context.Context) int {
	trained := 0
	for _, clientID := range t.manager.trainable() {
		if ctx.Err() != nil {
			return trained
		}
		if _, err := t.manager.TrainClient(ctx, clientID); err != nil {
			log.Warn().Str("component", "forest").Str("clientId", clientID).Err(err).
				Msg("model training skipped")
			continue
		}
		trained++
	}
	return trained
}

// Run executes TrainOnce on the configured cadence until ctx is cancelled.
func (t *Trainer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "forest").Msg("stopping model trainer")
			return
		case <-ticker.C:
			if n := t.TrainOnce(ctx); n > 0 {
				log.Info().Str("component", "forest").Int("models", n).Msg("training cycle complete")
			}
		}
	}
}
