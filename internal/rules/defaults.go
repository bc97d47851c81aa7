package rules

import "github.com/rawblock/txrisk-engine/pkg/models"

// DefaultRules is the factory rule set: one rule per detector type, enabled,
// at neutral weight. Variance margins and params mirror the tuning that held
// up in production; operators adjust them through the rules API and the
// auto-tuner moves the weights from feedback.
func DefaultRules() []models.AnomalyRule {
	return []models.AnomalyRule{
		{
			RuleID: "RULE-001", Name: "Unusual transaction type",
			RuleType: models.RuleTxnTypeAnomaly, VariancePct: 0, RiskWeight: 1.0, Enabled: true,
			Params: map[string]string{"minTypeFrequencyPct": "5"},
		},
		{
			RuleID: "RULE-002", Name: "Transaction rate spike",
			RuleType: models.RuleTpsSpike, VariancePct: 150, RiskWeight: 1.5, Enabled: true,
		},
		{
			RuleID: "RULE-003", Name: "Transaction amount anomaly",
			RuleType: models.RuleAmountAnomaly, VariancePct: 100, RiskWeight: 2.0, Enabled: true,
		},
		{
			RuleID: "RULE-004", Name: "Hourly amount anomaly",
			RuleType: models.RuleHourlyAmountAnomaly, VariancePct: 150, RiskWeight: 1.5, Enabled: true,
		},
		{
			RuleID: "RULE-005", Name: "Amount anomaly for transaction type",
			RuleType: models.RuleAmountPerType, VariancePct: 120, RiskWeight: 1.5, Enabled: true,
			Params: map[string]string{"minTypeSamples": "5"},
		},
		{
			RuleID: "RULE-006", Name: "Rapid repeat payments to one beneficiary",
			RuleType: models.RuleBeneRapidRepeat, VariancePct: 0, RiskWeight: 2.0, Enabled: true,
			Params: map[string]string{"minRepeatCount": "5"},
		},
		{
			RuleID: "RULE-007", Name: "Beneficiary concentration",
			RuleType: models.RuleBeneConcentration, VariancePct: 100, RiskWeight: 1.0, Enabled: true,
			Params: map[string]string{"minDistinctBeneficiaries": "5", "absMinConcentrationPct": "40"},
		},
		{
			RuleID: "RULE-008", Name: "Repetitive amounts to one beneficiary",
			RuleType: models.RuleBeneAmountRepetition, VariancePct: 0, RiskWeight: 1.5, Enabled: true,
			Params: map[string]string{"maxCvPct": "15", "minRepeatSamples": "3"},
		},
		{
			RuleID: "RULE-009", Name: "Daily cumulative amount anomaly",
			RuleType: models.RuleDailyAmountAnomaly, VariancePct: 150, RiskWeight: 1.5, Enabled: true,
			Params: map[string]string{"minDaysForDaily": "3"},
		},
		{
			RuleID: "RULE-010", Name: "New beneficiary velocity",
			RuleType: models.RuleNewBeneVelocity, VariancePct: 100, RiskWeight: 2.0, Enabled: true,
			Params: map[string]string{"maxNewBenePerDay": "10", "minProfileDays": "7"},
		},
		{
			RuleID: "RULE-011", Name: "Dormant account reactivation",
			RuleType: models.RuleDormancyReactivation, VariancePct: 0, RiskWeight: 2.0, Enabled: true,
			Params: map[string]string{"dormancyDays": "30"},
		},
		{
			RuleID: "RULE-012", Name: "Cross-channel beneficiary amount",
			RuleType: models.RuleCrossChannelBene, VariancePct: 150, RiskWeight: 1.5, Enabled: true,
			Params: map[string]string{"minDaysForDaily": "3"},
		},
		{
			RuleID: "RULE-013", Name: "Seasonal pattern deviation",
			RuleType: models.RuleSeasonalDeviation, VariancePct: 150, RiskWeight: 1.0, Enabled: true,
			Params: map[string]string{"minSeasonalSamples": "4"},
		},
		{
			RuleID: "RULE-014", Name: "Mule network beneficiary",
			RuleType: models.RuleMuleNetwork, VariancePct: 0, RiskWeight: 3.0, Enabled: true,
			Params: map[string]string{
				"minFanIn": "3", "sharedBenePctThreshold": "30", "densityThreshold": "0.5",
				"fanInWeight": "0.4", "sharedWeight": "0.35", "densityWeight": "0.25",
				"compositeThreshold": "30",
			},
		},
		{
			RuleID: "RULE-015", Name: "Isolation forest outlier",
			RuleType: models.RuleIsolationForest, VariancePct: 0, RiskWeight: 1.5, Enabled: true,
			Params: map[string]string{"threshold": "60"},
		},
	}
}
