package tuning

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/internal/review"
	"github.com/rawblock/txrisk-engine/internal/rules"
	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Tuner moves rule weights toward the analysts' verdicts. Rules whose alerts
// keep coming back TRUE_POSITIVE earn weight; rules the analysts keep marking
// FALSE_POSITIVE lose it. Adjustments are bounded per cycle and clamped into
// the global weight range, so no single tuning pass can swing a verdict on
// its own.
//
// factor = (tpRatio - 0.5) * 2 * maxAdjustmentPct. A perfectly useless rule
// (tpRatio 0) moves -maxAdjustmentPct, a perfect one +maxAdjustmentPct, and
// a coin-flip rule stays put.
type Tuner struct {
	queue *review.Queue
	rules *rules.Registry
	store store.Store

	minSamples       int64
	maxAdjustmentPct float64
	weightFloor      float64
	weightCeiling    float64

	initialDelay time.Duration
	interval     time.Duration

	now func() time.Time
}

type Config struct {
	MinSamples       int64
	MaxAdjustmentPct float64
	WeightFloor      float64
	WeightCeiling    float64
	InitialDelay     time.Duration
	Interval         time.Duration
}

func NewTuner(queue *review.Queue, registry *rules.Registry, s store.Store, cfg Config) *Tuner {
	return &Tuner{
		queue:            queue,
		rules:            registry,
		store:            s,
		minSamples:       cfg.MinSamples,
		maxAdjustmentPct: cfg.MaxAdjustmentPct,
		weightFloor:      cfg.WeightFloor,
		weightCeiling:    cfg.WeightCeiling,
		initialDelay:     cfg.InitialDelay,
		interval:         cfg.Interval,
		now:              time.Now,
	}
}

// SetClock overrides the tuner clock. Test hook.
func (t *Tuner) SetClock(now func() time.Time) { t.now = now }

type tally struct {
	tp int64
	fp int64
}

// TuneOnce runs one full tuning pass and returns the number of weights moved.
func (t *Tuner) TuneOnce(ctx context.Context) (int, error) {
	logger := log.With().Str("component", "tuner").Logger()

	items, err := t.queue.FindAllWithFeedback(ctx)
	if err != nil {
		return 0, err
	}

	tallies := make(map[string]*tally)
	for _, item := range items {
		for _, ruleID := range item.TriggeredRuleIDs {
			tl := tallies[ruleID]
			if tl == nil {
				tl = &tally{}
				tallies[ruleID] = tl
			}
			if item.Status == models.FeedbackTruePositive {
				tl.tp++
			} else {
				tl.fp++
			}
		}
	}

	moved := 0
	for ruleID, tl := range tallies {
		total := tl.tp + tl.fp
		if total < t.minSamples {
			continue
		}
		rule, ok := t.rules.Find(ruleID)
		if !ok {
			logger.Warn().Str("ruleId", ruleID).Msg("feedback references unknown rule")
			continue
		}

		tpRatio := float64(tl.tp) / float64(total)
		factor := (tpRatio - 0.5) * 2 * t.maxAdjustmentPct
		newWeight := clampWeight(rule.RiskWeight*(1+factor), t.weightFloor, t.weightCeiling)
		newWeight = math.Round(newWeight*1000) / 1000

		if math.Abs(newWeight-rule.RiskWeight) < 0.001 {
			continue
		}

		change := models.RuleWeightChange{
			ChangeID:         uuid.NewString(),
			RuleID:           rule.RuleID,
			RuleName:         rule.Name,
			OldWeight:        rule.RiskWeight,
			NewWeight:        newWeight,
			TruePositives:    tl.tp,
			FalsePositives:   tl.fp,
			TpRatio:          tpRatio,
			AdjustmentFactor: factor,
			ChangedAt:        t.now().UnixMilli(),
			Reason:           "feedback tuning",
		}

		rule.RiskWeight = newWeight
		rule.UpdatedAt = change.ChangedAt
		if err := t.rules.Save(ctx, &rule); err != nil {
			logger.Error().Err(err).Str("ruleId", rule.RuleID).Msg("weight update failed")
			continue
		}
		if err := store.PutJSON(ctx, t.store, store.SetRuleWeightHistory, change.ChangeID, &change); err != nil {
			// The weight moved; a lost audit record is log-worthy, not fatal.
			logger.Error().Err(err).Str("ruleId", rule.RuleID).Msg("audit write failed")
		}
		logger.Info().Str("ruleId", rule.RuleID).
			Float64("oldWeight", change.OldWeight).Float64("newWeight", newWeight).
			Int64("tp", tl.tp).Int64("fp", tl.fp).
			Msg("rule weight adjusted")
		moved++
	}
	return moved, nil
}

// Run waits out the initial delay, then tunes on the configured interval
// until ctx is cancelled. The delay keeps a freshly restarted engine from
// re-tuning on the same feedback it acted on minutes ago.
func (t *Tuner) Run(ctx context.Context) {
	logger := log.With().Str("component", "tuner").Logger()
	logger.Info().Dur("initialDelay", t.initialDelay).Dur("interval", t.interval).
		Msg("auto-tuner started")

	select {
	case <-ctx.Done():
		return
	case <-time.After(t.initialDelay):
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		n, err := t.TuneOnce(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("tuning pass failed")
		} else if n > 0 {
			logger.Info().Int("weightsMoved", n).Msg("tuning pass complete")
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("auto-tuner stopped")
			return
		case <-ticker.C:
		}
	}
}

func clampWeight(w, floor, ceiling float64) float64 {
	if w < floor {
		return floor
	}
	if w > ceiling {
		return ceiling
	}
	return w
}
