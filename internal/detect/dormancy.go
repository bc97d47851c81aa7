package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// dormancyDetector fires when a long-quiet account suddenly transacts, a
// classic takeover signal. Bespoke scoring: partial = 50*gap/(threshold*1.5)
// capped at 100, so a reactivation right at the threshold scores ~33 and the
// score grows with the length of the silence. deviationPct reports how far
// past the threshold the gap is.
type dormancyDetector struct{}

func (dormancyDetector) RuleType() string { return models.RuleDormancyReactivation }

func (dormancyDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	if p.TotalTxnCount < 2 {
		return skipped(rule, "insufficient transaction history")
	}
	if p.LastUpdated == 0 {
		return skipped(rule, "no activity timestamp")
	}

	// dormancyMinutes is the integration-test override; production rules
	// configure whole days.
	var thresholdMs int64
	if minutes := paramInt(rule, "dormancyMinutes", 0); minutes > 0 {
		thresholdMs = minutes * 60_000
	} else {
		thresholdMs = paramInt(rule, "dormancyDays", 30) * 24 * 60 * 60_000
	}
	if thresholdMs <= 0 {
		return skipped(rule, "dormancy threshold not configured")
	}

	gapMs := txn.Timestamp - p.LastUpdated
	r := newResult(rule)
	r.DeviationPct = 100 * float64(gapMs-thresholdMs) / float64(thresholdMs)
	gapDays := float64(gapMs) / (24 * 60 * 60_000)
	if gapMs < thresholdMs {
		r.Reason = fmt.Sprintf("last activity %.1f days ago, below dormancy threshold", gapDays)
		return r
	}
	r.Triggered = true
	r.PartialScore = clamp(50*float64(gapMs)/(float64(thresholdMs)*1.5), 0, 100)
	r.Reason = fmt.Sprintf("account dormant %.1f days, threshold %.1f days",
		gapDays, float64(thresholdMs)/(24*60*60_000))
	return r
}
