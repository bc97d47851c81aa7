package detect

import "github.com/rawblock/txrisk-engine/pkg/models"

// hourlyAmountDetector compares the current hour's cumulative amount against
// the learned hourly volume. Catches structuring: many individually
// unremarkable transactions inside one hour.
type hourlyAmountDetector struct{}

func (hourlyAmountDetector) RuleType() string { return models.RuleHourlyAmountAnomaly }

func (hourlyAmountDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	if p.CompletedHoursCount < 2 {
		return skipped(rule, "insufficient hourly history")
	}
	if p.EwmaHourlyAmount <= 0 {
		return skipped(rule, "no hourly amount baseline")
	}
	observed := float64(ec.HourAmountPaise) / 100.0
	return bandResult(rule, observed, p.EwmaHourlyAmount, "hourly amount")
}
