package models

// Transaction actions, in escalation order.
const (
	ActionPass  = "PASS"
	ActionAlert = "ALERT"
	ActionBlock = "BLOCK"
)

// Risk levels derived from the composite score.
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// Transaction represents a single banking transaction under evaluation.
// Amounts are stored in paise (1 rupee = 100 paise) so counters and sums
// stay exact on the write path; detectors convert to rupees internally.
type Transaction struct {
	TxnID              string `json:"txnId"`
	ClientID           string `json:"clientId"`
	TxnType            string `json:"txnType"` // NEFT/RTGS/IMPS/UPI (configurable)
	AmountPaise        int64  `json:"amountPaise"`
	Timestamp          int64  `json:"timestamp"` // epoch millis, UTC
	BeneficiaryIfsc    string `json:"beneficiaryIfsc,omitempty"`
	BeneficiaryAccount string `json:"beneficiaryAccount,omitempty"`
}

// AmountRupees converts the paise amount to rupees for detector math.
func (t *Transaction) AmountRupees() float64 {
	return float64(t.AmountPaise) / 100.0
}

// BeneficiaryKey returns the canonical beneficiary identity "IFSC:ACCOUNT".
// A missing IFSC degrades to the "UNKNOWN:" prefix; a missing account means
// the transaction has no beneficiary dimension and the key is empty.
func (t *Transaction) BeneficiaryKey() string {
	if t.BeneficiaryAccount == "" {
		return ""
	}
	ifsc := t.BeneficiaryIfsc
	if ifsc == "" {
		ifsc = "UNKNOWN"
	}
	return ifsc + ":" + t.BeneficiaryAccount
}

// RuleResult is one detector's verdict inside an evaluation.
type RuleResult struct {
	RuleID       string  `json:"ruleId"`
	RuleName     string  `json:"ruleName"`
	RuleType     string  `json:"ruleType"`
	Triggered    bool    `json:"triggered"`
	PartialScore float64 `json:"partialScore"` // 0-100
	DeviationPct float64 `json:"deviationPct"` // how far past the learned baseline, in % of the allowed band
	RiskWeight   float64 `json:"riskWeight"`
	Reason       string  `json:"reason,omitempty"`
}

// EvaluationResult is the engine verdict for one transaction.
type EvaluationResult struct {
	TxnID          string       `json:"txnId"`
	ClientID       string       `json:"clientId"`
	CompositeScore float64      `json:"compositeScore"` // 0-100
	Action         string       `json:"action"`         // PASS/ALERT/BLOCK
	RiskLevel      string       `json:"riskLevel"`      // LOW/MEDIUM/HIGH/CRITICAL
	RuleResults    []RuleResult `json:"ruleResults"`
	EvaluatedAt    int64        `json:"evaluatedAt"` // epoch millis
	DurationMs     float64      `json:"durationMs"`
}

// TriggeredRuleIDs returns the ids of all rules that fired, preserving
// evaluation order. Used when enqueuing for analyst review.
func (r *EvaluationResult) TriggeredRuleIDs() []string {
	ids := make([]string, 0, len(r.RuleResults))
	for _, rr := range r.RuleResults {
		if rr.Triggered {
			ids = append(ids, rr.RuleID)
		}
	}
	return ids
}

// CounterRecord is the shape of every atomic counter record: a transaction
// count plus a running paise total under one bucket key.
type CounterRecord struct {
	Count       int64 `json:"count"`
	TotalAmount int64 `json:"totalAmount"` // paise
}
