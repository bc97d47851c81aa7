package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// dailyAmountDetector compares the day's cumulative amount against the
// learned daily volume. The slow sibling of the hourly amount rule.
type dailyAmountDetector struct{}

func (dailyAmountDetector) RuleType() string { return models.RuleDailyAmountAnomaly }

func (dailyAmountDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	minDays := paramInt(rule, "minDaysForDaily", 3)
	if p.CompletedDaysCount < minDays {
		return skipped(rule, fmt.Sprintf("fewer than %d completed days", minDays))
	}
	if p.EwmaDailyAmount <= 0 {
		return skipped(rule, "no daily amount baseline")
	}
	observed := float64(ec.DayAmountPaise) / 100.0
	return bandResult(rule, observed, p.EwmaDailyAmount, "daily amount")
}
