package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/internal/forest"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// isolationForestDetector scores the transaction's feature vector against
// the client's trained forest. The rule threshold is configured 0..100 and
// compared against the forest's (0,1) anomaly score; the partial stretches
// the score's headroom above the threshold onto 0..100.
type isolationForestDetector struct{}

func (isolationForestDetector) RuleType() string { return models.RuleIsolationForest }

func (isolationForestDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	if ec.ForestModel == nil {
		return skipped(rule, "no trained model for client")
	}
	if len(ec.Features) != models.FeatureCount {
		return skipped(rule, "feature vector unavailable")
	}

	threshold := paramFloat(rule, "threshold", 60) / 100.0
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.6
	}

	score, err := forest.Score(ec.ForestModel, ec.Features)
	if err != nil {
		return skipped(rule, "model unusable: "+err.Error())
	}

	r := newResult(rule)
	r.DeviationPct = 100 * score
	if score < threshold {
		r.Reason = fmt.Sprintf("anomaly score %.3f below threshold %.2f", score, threshold)
		return r
	}
	r.Triggered = true
	r.PartialScore = clamp(100*(score-threshold)/(1-threshold), 0, 100)
	r.Reason = fmt.Sprintf("isolation score %.3f at or above threshold %.2f", score, threshold)
	return r
}
