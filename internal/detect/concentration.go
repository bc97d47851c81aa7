package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// concentrationDetector flags a beneficiary absorbing an outsized share of
// the client's transactions. The expected share is uniform across known
// beneficiaries; the rule's variance widens it and absMinConcentrationPct
// keeps the threshold meaningful for clients with many beneficiaries, where
// the uniform share would be tiny.
type concentrationDetector struct{}

func (concentrationDetector) RuleType() string { return models.RuleBeneConcentration }

func (concentrationDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	key := txn.BeneficiaryKey()
	if key == "" {
		return skipped(rule, "no beneficiary")
	}
	minDistinct := paramInt(rule, "minDistinctBeneficiaries", 5)
	if p.DistinctBeneficiaryCount < minDistinct {
		return skipped(rule, fmt.Sprintf("fewer than %d distinct beneficiaries", minDistinct))
	}
	if p.TotalTxnCount == 0 {
		return skipped(rule, "no transaction history")
	}

	actualPct := 100 * float64(p.BeneTxnCounts[key]) / float64(p.TotalTxnCount)
	expectedPct := 100 / float64(p.DistinctBeneficiaryCount)
	threshold := expectedPct * (1 + rule.VariancePct/100)
	if absMin := paramFloat(rule, "absMinConcentrationPct", 40); threshold < absMin {
		threshold = absMin
	}

	r := newResult(rule)
	r.DeviationPct = bandDeviationPct(actualPct, expectedPct, rule.VariancePct)
	if actualPct <= threshold {
		r.Reason = fmt.Sprintf("beneficiary share %.1f%% within threshold %.1f%%", actualPct, threshold)
		return r
	}
	r.Triggered = true
	r.PartialScore = bandScore(r.DeviationPct)
	r.Reason = fmt.Sprintf("beneficiary %s takes %.1f%% of transactions, expected %.1f%% (threshold %.1f%%)",
		key, actualPct, expectedPct, threshold)
	return r
}
