package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// crossChannelDetector totals today's payments to the current beneficiary
// across every transaction type and compares against the daily volume
// baseline. Catches drains split across NEFT, IMPS and UPI that each channel
// rule would see as modest.
type crossChannelDetector struct{}

func (crossChannelDetector) RuleType() string { return models.RuleCrossChannelBene }

func (crossChannelDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	if txn.BeneficiaryKey() == "" {
		return skipped(rule, "no beneficiary")
	}
	minDays := paramInt(rule, "minDaysForDaily", 3)
	if p.CompletedDaysCount < minDays {
		return skipped(rule, fmt.Sprintf("fewer than %d completed days", minDays))
	}
	if p.EwmaDailyAmount <= 0 {
		return skipped(rule, "no daily amount baseline")
	}
	observed := float64(ec.BeneDayAmountPaise) / 100.0
	return bandResult(rule, observed, p.EwmaDailyAmount, "cross-channel beneficiary amount")
}
