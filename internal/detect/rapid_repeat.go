package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// rapidRepeatDetector fires on bursts of payments to one beneficiary within
// the hour. Count-threshold rule, not a band rule: partialScore scales as
// 50*count/minRepeat so the threshold itself scores 50 and double it 100.
type rapidRepeatDetector struct{}

func (rapidRepeatDetector) RuleType() string { return models.RuleBeneRapidRepeat }

func (rapidRepeatDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	if txn.BeneficiaryKey() == "" {
		return skipped(rule, "no beneficiary")
	}
	minRepeat := paramInt(rule, "minRepeatCount", 5)
	if minRepeat < 1 {
		minRepeat = 1
	}
	count := ec.BeneHourCount

	r := newResult(rule)
	r.DeviationPct = 100 * float64(count) / float64(minRepeat)
	if count < minRepeat {
		r.Reason = fmt.Sprintf("%d payments to beneficiary this hour, below threshold %d", count, minRepeat)
		return r
	}
	r.Triggered = true
	r.PartialScore = clamp(50*float64(count)/float64(minRepeat), 0, 100)
	r.Reason = fmt.Sprintf("%d payments to %s within the hour (threshold %d)",
		count, txn.BeneficiaryKey(), minRepeat)
	return r
}
