package models

// Detector rule types. One detector implementation exists per type; rules
// bind a type to a weight, a variance margin and free-form parameters.
const (
	RuleTxnTypeAnomaly       = "TXN_TYPE_ANOMALY"
	RuleTpsSpike             = "TPS_SPIKE"
	RuleAmountAnomaly        = "AMOUNT_ANOMALY"
	RuleHourlyAmountAnomaly  = "HOURLY_AMOUNT_ANOMALY"
	RuleAmountPerType        = "AMOUNT_PER_TYPE_ANOMALY"
	RuleBeneRapidRepeat      = "BENEFICIARY_RAPID_REPEAT"
	RuleBeneConcentration    = "BENEFICIARY_CONCENTRATION"
	RuleBeneAmountRepetition = "BENEFICIARY_AMOUNT_REPETITION"
	RuleDailyAmountAnomaly   = "DAILY_AMOUNT_ANOMALY"
	RuleNewBeneVelocity      = "NEW_BENEFICIARY_VELOCITY"
	RuleDormancyReactivation = "DORMANCY_REACTIVATION"
	RuleCrossChannelBene     = "CROSS_CHANNEL_BENEFICIARY"
	RuleSeasonalDeviation    = "SEASONAL_DEVIATION"
	RuleMuleNetwork          = "MULE_NETWORK"
	RuleIsolationForest      = "ISOLATION_FOREST"
)

// Weight bounds for anomaly rules. The auto-tuner clamps into this range and
// rule writes outside it are rejected.
const (
	WeightFloor   = 0.5
	WeightCeiling = 5.0
)

// AnomalyRule configures one detector instance.
type AnomalyRule struct {
	RuleID      string            `json:"ruleId"`
	Name        string            `json:"name"`
	RuleType    string            `json:"ruleType"`
	VariancePct float64           `json:"variancePct"` // allowed band above baseline, in percent
	RiskWeight  float64           `json:"riskWeight"`  // 0.5 - 5.0
	Enabled     bool              `json:"enabled"`
	Params      map[string]string `json:"params,omitempty"`
	UpdatedAt   int64             `json:"updatedAt,omitempty"` // epoch millis
}

// RuleWeightChange is the audit record appended whenever the auto-tuner
// (or an operator) moves a rule weight.
type RuleWeightChange struct {
	ChangeID         string  `json:"changeId"` // uuid
	RuleID           string  `json:"ruleId"`
	RuleName         string  `json:"ruleName"`
	OldWeight        float64 `json:"oldWeight"`
	NewWeight        float64 `json:"newWeight"`
	TruePositives    int64   `json:"truePositives"`
	FalsePositives   int64   `json:"falsePositives"`
	TpRatio          float64 `json:"tpRatio"`
	AdjustmentFactor float64 `json:"adjustmentFactor"`
	ChangedAt        int64   `json:"changedAt"` // epoch millis
	Reason           string  `json:"reason,omitempty"`
}
