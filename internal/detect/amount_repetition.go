package detect

import (
	"fmt"
	"math"

	"github.com/rawblock/txrisk-engine/internal/profile"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// amountRepetitionDetector flags suspiciously uniform amounts to one
// beneficiary, the signature of scheduled siphoning or structuring below a
// reporting threshold. It inverts the usual logic: LOW variance is the
// anomaly. Trigger when the coefficient of variation of the beneficiary's
// amount history is under maxCvPct AND this amount fits the pattern; score
// rises as the history gets more uniform, floored at 50.
type amountRepetitionDetector struct{}

func (amountRepetitionDetector) RuleType() string { return models.RuleBeneAmountRepetition }

func (amountRepetitionDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	key := txn.BeneficiaryKey()
	if key == "" {
		return skipped(rule, "no beneficiary")
	}
	minSamples := paramInt(rule, "minRepeatSamples", 3)
	n := p.BeneTxnCounts[key]
	if n < minSamples {
		return skipped(rule, fmt.Sprintf("fewer than %d payments to beneficiary", minSamples))
	}
	mean := p.MeanAmountByBene[key]
	if mean <= 0 {
		return skipped(rule, "no beneficiary amount baseline")
	}

	std := profile.StdDev(p.AmountM2ByBene[key], n)
	cvPct := 100 * std / mean
	maxCvPct := paramFloat(rule, "maxCvPct", 15)

	r := newResult(rule)
	r.DeviationPct = cvPct
	if cvPct >= maxCvPct {
		r.Reason = fmt.Sprintf("amount variation %.1f%% CV, not repetitive (threshold %.1f%%)", cvPct, maxCvPct)
		return r
	}
	// The current amount must itself fit the repeated pattern.
	tolerance := math.Max(std, mean*0.05)
	if math.Abs(txn.AmountRupees()-mean) > tolerance {
		r.Reason = fmt.Sprintf("history is uniform (%.1f%% CV) but amount %.2f breaks the pattern around %.2f",
			cvPct, txn.AmountRupees(), mean)
		return r
	}
	r.Triggered = true
	r.PartialScore = math.Max(50, 100*(1-cvPct/maxCvPct))
	r.Reason = fmt.Sprintf("%d near-identical amounts (~%.2f, %.1f%% CV) to %s", n, mean, cvPct, key)
	return r
}
