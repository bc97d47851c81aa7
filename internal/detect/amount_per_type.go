package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// amountPerTypeDetector compares the amount against the baseline for THIS
// transaction type. A 2,000-rupee UPI client wiring 5 lakh over RTGS may be
// normal globally but not for the channel.
type amountPerTypeDetector struct{}

func (amountPerTypeDetector) RuleType() string { return models.RuleAmountPerType }

func (amountPerTypeDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	minSamples := paramInt(rule, "minTypeSamples", 5)
	if p.TxnTypeCounts[txn.TxnType] < minSamples {
		return skipped(rule, fmt.Sprintf("fewer than %d %s transactions", minSamples, txn.TxnType))
	}
	baseline := p.EwmaAmountByType[txn.TxnType]
	if baseline <= 0 {
		return skipped(rule, "no per-type amount baseline")
	}
	return bandResult(rule, txn.AmountRupees(), baseline, txn.TxnType+" amount")
}
