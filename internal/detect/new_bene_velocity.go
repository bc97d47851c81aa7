package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// newBeneVelocityDetector watches how fast a client adds beneficiaries.
// Two tiers: a hard daily cap that always fires (mule recruitment does not
// need a baseline to be obvious), and a statistical band against the
// client's own new-beneficiary rate once the profile is old enough.
type newBeneVelocityDetector struct{}

func (newBeneVelocityDetector) RuleType() string { return models.RuleNewBeneVelocity }

func (newBeneVelocityDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	maxPerDay := paramInt(rule, "maxNewBenePerDay", 10)
	if maxPerDay < 1 {
		maxPerDay = 1
	}
	count := ec.DayNewBeneCount

	if count >= maxPerDay {
		r := newResult(rule)
		r.Triggered = true
		r.DeviationPct = 100 * float64(count) / float64(maxPerDay)
		r.PartialScore = clamp(50*float64(count)/float64(maxPerDay), 0, 100)
		r.Reason = fmt.Sprintf("%d new beneficiaries today, hard cap %d", count, maxPerDay)
		return r
	}

	minDays := paramInt(rule, "minProfileDays", 7)
	if p.CompletedDaysForBeneCount < minDays {
		return skipped(rule, fmt.Sprintf("fewer than %d days of beneficiary history", minDays))
	}
	if p.EwmaDailyNewBeneficiaries <= 0 {
		return skipped(rule, "no new-beneficiary baseline")
	}
	return bandResult(rule, float64(count), p.EwmaDailyNewBeneficiaries, "new beneficiaries today")
}
