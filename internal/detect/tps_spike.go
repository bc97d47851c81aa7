package detect

import "github.com/rawblock/txrisk-engine/pkg/models"

// tpsSpikeDetector compares the current hour's transaction count against the
// learned hourly rate. Shared band convention.
type tpsSpikeDetector struct{}

func (tpsSpikeDetector) RuleType() string { return models.RuleTpsSpike }

func (tpsSpikeDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	if p.CompletedHoursCount < 2 {
		return skipped(rule, "insufficient hourly history")
	}
	if p.EwmaHourlyTps <= 0 {
		return skipped(rule, "no hourly rate baseline")
	}
	return bandResult(rule, float64(ec.HourCount), p.EwmaHourlyTps, "hourly txn count")
}
