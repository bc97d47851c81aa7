package detect

import (
	"fmt"
	"strconv"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Behavioural Anomaly Detectors
//
// One detector exists per rule type, all behind the same contract: pure
// functions of (transaction, pre-update profile, rule, evaluation context)
// producing a RuleResult. Detectors never mutate their inputs and never do
// I/O; everything they need is read into the Context beforehand.
//
// Shared statistical convention for band detectors:
//
//	allowed      = baseline * variancePct/100        (epsilon-guarded)
//	deviationPct = 100 * (observed - baseline) / allowed
//	triggered    when deviationPct > 100             (observed beyond baseline*(1+v/100))
//	partialScore = clamp(50 + (deviationPct-100)/2, 50, 100)
//
// So an observation at exactly double the allowed band scores 100, and a
// marginal breach scores 50. Detectors with bespoke scoring document it in
// their own file.
//
// Guard conditions (thin profile, missing beneficiary, not-ready graph)
// return a non-triggered result with the guard as the reason. That is a
// normal outcome, not an error.

// Detector is the uniform evaluation contract.
type Detector interface {
	RuleType() string
	Evaluate(txn *models.Transaction, p *models.ClientProfile, rule *models.AnomalyRule, ec *Context) models.RuleResult
}

// NewRegistry returns the full detector set keyed by rule type. The engine
// resolves a rule's detector from this map at evaluation time.
func NewRegistry() map[string]Detector {
	all := []Detector{
		txnTypeDetector{},
		tpsSpikeDetector{},
		amountDetector{},
		hourlyAmountDetector{},
		amountPerTypeDetector{},
		rapidRepeatDetector{},
		concentrationDetector{},
		amountRepetitionDetector{},
		dailyAmountDetector{},
		newBeneVelocityDetector{},
		dormancyDetector{},
		crossChannelDetector{},
		seasonalDetector{},
		muleNetworkDetector{},
		isolationForestDetector{},
	}
	m := make(map[string]Detector, len(all))
	for _, d := range all {
		m[d.RuleType()] = d
	}
	return m
}

const epsilon = 1e-9

// newResult snapshots the rule's identity and weight into a blank result.
func newResult(rule *models.AnomalyRule) models.RuleResult {
	return models.RuleResult{
		RuleID:     rule.RuleID,
		RuleName:   rule.Name,
		RuleType:   rule.RuleType,
		RiskWeight: rule.RiskWeight,
	}
}

// skipped is a non-triggered result carrying the guard reason.
func skipped(rule *models.AnomalyRule, reason string) models.RuleResult {
	r := newResult(rule)
	r.Reason = reason
	return r
}

// bandDeviationPct measures how far past the baseline the observation sits,
// in percent of the allowed variance band.
func bandDeviationPct(observed, baseline, variancePct float64) float64 {
	allowed := baseline * variancePct / 100.0
	if allowed < epsilon {
		allowed = epsilon
	}
	return 100.0 * (observed - baseline) / allowed
}

// bandScore maps a triggering band deviation to the 50-100 partial range.
func bandScore(deviationPct float64) float64 {
	return clamp(50+(deviationPct-100)/2, 50, 100)
}

// bandResult is the whole shared band-detector body: measure, decide,
// score, explain.
func bandResult(rule *models.AnomalyRule, observed, baseline float64, metric string) models.RuleResult {
	r := newResult(rule)
	r.DeviationPct = bandDeviationPct(observed, baseline, rule.VariancePct)
	if r.DeviationPct > 100 {
		r.Triggered = true
		r.PartialScore = bandScore(r.DeviationPct)
		r.Reason = fmt.Sprintf("%s %.2f exceeds baseline %.2f by %.1f%% of the allowed %+.0f%% band",
			metric, observed, baseline, r.DeviationPct, rule.VariancePct)
	} else {
		r.Reason = fmt.Sprintf("%s %.2f within baseline %.2f (%+.0f%% band)",
			metric, observed, baseline, rule.VariancePct)
	}
	return r
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// paramFloat reads a numeric rule parameter, falling back to the default on
// absence or garbage.
func paramFloat(rule *models.AnomalyRule, name string, def float64) float64 {
	if rule.Params == nil {
		return def
	}
	raw, ok := rule.Params[name]
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func paramInt(rule *models.AnomalyRule, name string, def int64) int64 {
	return int64(paramFloat(rule, name, float64(def)))
}
