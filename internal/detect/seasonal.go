package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/internal/profile"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// seasonalDetector evaluates four metrics against what is normal for THIS
// hour of day / day of week, preferring the seasonal slot baseline over the
// global one once the slot has enough samples. A payroll client whose
// Friday-morning volume dwarfs its global average must not fire on a normal
// Friday morning; conversely, weekend activity matching the global average
// can still be anomalous for a weekday-only client.
//
// Per metric: slot EWMA when slotCount >= minSeasonalSamples, else the
// global EWMA when it has >= 2 completed periods, else the metric is
// skipped. Daily TPS has no global fallback: the profile keeps no global
// daily-count EWMA, so that metric waits for its slot to mature.
//
// Trigger when ANY metric breaches its band. Reported deviation is the
// worst metric's; partial = clamp(maxDeviation - 100, 0, 100).
type seasonalDetector struct{}

func (seasonalDetector) RuleType() string { return models.RuleSeasonalDeviation }

type seasonalMetric struct {
	name     string
	observed float64
	baseline float64
}

func (seasonalDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	minSamples := paramInt(rule, "minSeasonalSamples", 4)
	hour := profile.HourOfDay(txn.Timestamp)
	dow := profile.DayOfWeek(txn.Timestamp)

	var metrics []seasonalMetric
	add := func(name string, observed float64, slot models.SeasonalSlot, global float64, globalOK bool) {
		switch {
		case slot.Count >= minSamples && slot.Ewma > 0:
			metrics = append(metrics, seasonalMetric{name + " (seasonal)", observed, slot.Ewma})
		case globalOK && global > 0:
			metrics = append(metrics, seasonalMetric{name + " (global)", observed, global})
		}
	}

	add("hourly txn count", float64(ec.HourCount),
		p.HourOfDayTps[hour], p.EwmaHourlyTps, p.CompletedHoursCount >= 2)
	add("hourly amount", float64(ec.HourAmountPaise)/100.0,
		p.HourOfDayAmount[hour], p.EwmaHourlyAmount, p.CompletedHoursCount >= 2)
	add("daily amount", float64(ec.DayAmountPaise)/100.0,
		p.DayOfWeekAmount[dow], p.EwmaDailyAmount, p.CompletedDaysCount >= 2)
	add("daily txn count", float64(ec.DayCount),
		p.DayOfWeekTps[dow], 0, false)

	if len(metrics) == 0 {
		return skipped(rule, "no seasonal or global baselines ready")
	}

	r := newResult(rule)
	worst := metrics[0]
	maxDev := bandDeviationPct(worst.observed, worst.baseline, rule.VariancePct)
	for _, m := range metrics[1:] {
		if dev := bandDeviationPct(m.observed, m.baseline, rule.VariancePct); dev > maxDev {
			maxDev, worst = dev, m
		}
	}
	r.DeviationPct = maxDev
	if maxDev <= 100 {
		r.Reason = fmt.Sprintf("all %d metrics within their seasonal bands", len(metrics))
		return r
	}
	r.Triggered = true
	r.PartialScore = clamp(maxDev-100, 0, 100)
	r.Reason = fmt.Sprintf("%s %.2f exceeds baseline %.2f for this time slot",
		worst.name, worst.observed, worst.baseline)
	return r
}
