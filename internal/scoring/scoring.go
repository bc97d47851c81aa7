package scoring

import "github.com/rawblock/txrisk-engine/pkg/models"

// Composite Risk Scoring
//
// The composite is the risk-weighted mean of the partial scores of every
// TRIGGERED detector, capped at 100. Non-triggered detectors contribute
// nothing: a clean transaction scores 0 no matter how many detectors ran.
// Weighting by the rule's riskWeight lets the auto-tuner amplify detectors
// that earn true positives and mute the noisy ones.

// Composite folds the triggered rule results into one 0-100 score.
func Composite(results []models.RuleResult) float64 {
	var weightedSum, weightSum float64
	for _, r := range results {
		if !r.Triggered {
			continue
		}
		weightedSum += r.PartialScore * r.RiskWeight
		weightSum += r.RiskWeight
	}
	if weightSum == 0 {
		return 0
	}
	score := weightedSum / weightSum
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ActionFor maps a composite score to the verdict. Thresholds are validated
// at startup: alert < block.
func ActionFor(score, alertThreshold, blockThreshold float64) string {
	switch {
	case score >= blockThreshold:
		return models.ActionBlock
	case score >= alertThreshold:
		return models.ActionAlert
	default:
		return models.ActionPass
	}
}

// RiskLevelFor maps a composite score to the analyst-facing severity band.
func RiskLevelFor(score float64) string {
	switch {
	case score < 30:
		return models.RiskLow
	case score < 60:
		return models.RiskMedium
	case score < 80:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}
