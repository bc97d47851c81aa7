package detect

import "github.com/rawblock/txrisk-engine/pkg/models"

// amountDetector compares the transaction amount against the client's global
// amount baseline. Shared band convention: at variance 100% a transaction of
// 90,000 against a 40,000 baseline deviates 125% and scores 62.5.
type amountDetector struct{}

func (amountDetector) RuleType() string { return models.RuleAmountAnomaly }

func (amountDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	if p.TotalTxnCount == 0 {
		return skipped(rule, "no transaction history")
	}
	if p.EwmaAmount <= 0 {
		return skipped(rule, "no amount baseline")
	}
	return bandResult(rule, txn.AmountRupees(), p.EwmaAmount, "amount")
}
