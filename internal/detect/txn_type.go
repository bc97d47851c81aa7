package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// txnTypeDetector flags transaction types the client rarely or never uses.
// A never-seen type on an established profile is the strongest signal and
// scores 100; a rarely-used one scores proportionally to how far below the
// minimum frequency it sits.
type txnTypeDetector struct{}

func (txnTypeDetector) RuleType() string { return models.RuleTxnTypeAnomaly }

func (txnTypeDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	if p.TotalTxnCount == 0 {
		return skipped(rule, "no transaction history")
	}
	minPct := paramFloat(rule, "minTypeFrequencyPct", 5)
	freqPct := p.TypeFrequency(txn.TxnType) * 100

	r := newResult(rule)
	if p.TxnTypeCounts[txn.TxnType] == 0 {
		r.Triggered = true
		r.PartialScore = 100
		r.DeviationPct = 100
		r.Reason = fmt.Sprintf("type %s never used across %d transactions", txn.TxnType, p.TotalTxnCount)
		return r
	}
	if freqPct >= minPct {
		r.Reason = fmt.Sprintf("type %s frequency %.1f%% above minimum %.1f%%", txn.TxnType, freqPct, minPct)
		return r
	}
	r.Triggered = true
	r.DeviationPct = (minPct - freqPct) / minPct * 100
	r.PartialScore = clamp(r.DeviationPct, 0, 100)
	r.Reason = fmt.Sprintf("type %s frequency %.1f%% below minimum %.1f%%", txn.TxnType, freqPct, minPct)
	return r
}
