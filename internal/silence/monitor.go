package silence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/internal/notify"
	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Monitor watches for active clients that stop transacting. A payment feed
// going quiet is an incident signal in its own right: upstream outage,
// integration break, or a fraudster cutting a compromised channel over.
//
// A client qualifies for monitoring once its profile carries at least
// minCompletedHours of history and a steady rate (ewmaHourlyTps >= floor).
// The expected gap between transactions is 60/tps minutes; silence beyond
// multiplier x that gap raises an alert. The alerted set lives in memory:
// one alert on entry, one "resolved" log line on exit, no repeats while the
// client stays silent.
type Monitor struct {
	store    store.Store
	notifier notify.Notifier

	interval          time.Duration
	multiplier        float64
	minExpectedTps    float64
	minCompletedHours int64

	alerted map[string]bool
	now     func() time.Time
}

type Config struct {
	CheckInterval     time.Duration
	SilenceMultiplier float64
	MinExpectedTps    float64
	MinCompletedHours int64
}

func NewMonitor(s store.Store, notifier notify.Notifier, cfg Config) *Monitor {
	return &Monitor{
		store:             s,
		notifier:          notifier,
		interval:          cfg.CheckInterval,
		multiplier:        cfg.SilenceMultiplier,
		minExpectedTps:    cfg.MinExpectedTps,
		minCompletedHours: cfg.MinCompletedHours,
		alerted:           make(map[string]bool),
		now:               time.Now,
	}
}

// SetClock overrides the monitor clock. Test hook.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// Alerted reports whether the client is currently in the silent set.
func (m *Monitor) Alerted(clientID string) bool { return m.alerted[clientID] }

// CheckOnce sweeps every profile and returns how many clients are currently
// alerted. Run calls it on the interval; tests call it directly.
func (m *Monitor) CheckOnce(ctx context.Context) (int, error) {
	logger := log.With().Str("component", "silence").Logger()
	nowMs := m.now().UnixMilli()

	seen := make(map[string]bool)
	err := m.store.ScanAll(ctx, store.SetClientProfiles, func(key string, rec []byte) error {
		var p models.ClientProfile
		if err := json.Unmarshal(rec, &p); err != nil {
			logger.Warn().Str("key", key).Err(err).Msg("skipping corrupt profile")
			return nil
		}
		if p.CompletedHoursCount < m.minCompletedHours || p.EwmaHourlyTps < m.minExpectedTps {
			return nil
		}
		if p.LastUpdated == 0 {
			return nil
		}
		seen[p.ClientID] = true

		silenceMinutes := float64(nowMs-p.LastUpdated) / 60_000.0
		expectedGap := 60.0 / p.EwmaHourlyTps

		if silenceMinutes > expectedGap*m.multiplier {
			if !m.alerted[p.ClientID] {
				m.alerted[p.ClientID] = true
				logger.Warn().Str("clientId", p.ClientID).
					Float64("silenceMinutes", silenceMinutes).
					Float64("expectedGapMinutes", expectedGap).
					Float64("hourlyTps", p.EwmaHourlyTps).
					Msg("silence detected")
				if m.notifier != nil {
					m.notifier.NotifySilent(p.ClientID, silenceMinutes, expectedGap, p.EwmaHourlyTps)
				}
			}
		} else if m.alerted[p.ClientID] {
			delete(m.alerted, p.ClientID)
			logger.Info().Str("clientId", p.ClientID).Msg("silence resolved")
		}
		return nil
	})
	if err != nil {
		return len(m.alerted), err
	}

	// A profile that stops qualifying (or disappears) also resolves.
	for id := range m.alerted {
		if !seen[id] {
			delete(m.alerted, id)
			logger.Info().Str("clientId", id).Msg("silence resolved")
		}
	}
	return len(m.alerted), nil
}

// Run checks on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	logger := log.With().Str("component", "silence").Logger()
	logger.Info().Dur("interval", m.interval).Msg("silence monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("silence monitor stopped")
			return
		case <-ticker.C:
			if _, err := m.CheckOnce(ctx); err != nil {
				logger.Error().Err(err).Msg("silence check failed")
			}
		}
	}
}
