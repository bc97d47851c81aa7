package detect

import (
	"fmt"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// muleNetworkDetector reads the beneficiary graph for the three structural
// signatures of a mule network:
//
//	fan-in:  many unrelated clients funnel money into the same account
//	sharing: this client's beneficiary set overlaps heavily with others'
//	density: the client sits in a tightly interconnected payment cluster
//
// Any single signal has benign explanations (a landlord has fan-in, an
// employer's payees share beneficiaries), so at least TWO of the three must
// be active before the weighted composite is compared to its threshold.
// Each active signal scores in [30, 100], scaled from how far past its own
// threshold it sits.
type muleNetworkDetector struct{}

func (muleNetworkDetector) RuleType() string { return models.RuleMuleNetwork }

func (muleNetworkDetector) Evaluate(txn *models.Transaction, p *models.ClientProfile,
	rule *models.AnomalyRule, ec *Context) models.RuleResult {

	key := txn.BeneficiaryKey()
	if key == "" {
		return skipped(rule, "no beneficiary")
	}
	if ec.Graph == nil {
		return skipped(rule, "beneficiary graph not ready")
	}

	minFanIn := paramInt(rule, "minFanIn", 3)
	sharedThreshold := paramFloat(rule, "sharedBenePctThreshold", 30)
	densityThreshold := paramFloat(rule, "densityThreshold", 0.5)

	// Fan-in: other clients paying this beneficiary.
	var fanInScore float64
	otherSenders := len(ec.Graph.OtherSenders(key, txn.ClientID))
	if int64(otherSenders) >= minFanIn {
		span := float64(2 * minFanIn)
		if span < 1 {
			span = 1
		}
		fanInScore = clamp(float64(int64(otherSenders)-minFanIn)/span*100, 30, 100)
	}

	// Shared ratio: fraction of this client's beneficiaries that anyone
	// else also pays.
	var sharedScore float64
	var sharedPct float64
	if total := ec.Graph.TotalBeneficiaryCount(txn.ClientID); total > 0 {
		sharedPct = 100 * float64(ec.Graph.SharedBeneficiaryCount(txn.ClientID)) / float64(total)
		if sharedPct >= sharedThreshold {
			span := 2 * sharedThreshold
			if span < 1 {
				span = 1
			}
			sharedScore = clamp((sharedPct-sharedThreshold)/span*100, 30, 100)
		}
	}

	// Density of the client's neighbourhood.
	var densityScore float64
	density := ec.Graph.NetworkDensity(txn.ClientID)
	if density >= densityThreshold {
		span := 2 * densityThreshold
		if span < 0.01 {
			span = 0.01
		}
		densityScore = clamp((density-densityThreshold)/span*100, 30, 100)
	}

	active := 0
	for _, s := range []float64{fanInScore, sharedScore, densityScore} {
		if s > 0 {
			active++
		}
	}

	r := newResult(rule)
	if active < 2 {
		r.Reason = fmt.Sprintf("only %d of 3 mule signals active (fanIn=%d sharedPct=%.1f density=%.2f)",
			active, otherSenders, sharedPct, density)
		return r
	}

	composite := fanInScore*paramFloat(rule, "fanInWeight", 0.4) +
		sharedScore*paramFloat(rule, "sharedWeight", 0.35) +
		densityScore*paramFloat(rule, "densityWeight", 0.25)

	threshold := rule.VariancePct
	if threshold <= 0 {
		threshold = paramFloat(rule, "compositeThreshold", 30)
	}
	r.DeviationPct = 100 * composite / threshold
	if composite <= threshold {
		r.Reason = fmt.Sprintf("mule composite %.1f below threshold %.1f (%d signals)",
			composite, threshold, active)
		return r
	}
	r.Triggered = true
	r.PartialScore = clamp(composite, 0, 100)
	r.Reason = fmt.Sprintf("mule network signature on %s: fanIn=%d sharedPct=%.1f density=%.2f composite=%.1f",
		key, otherSenders, sharedPct, density, composite)
	return r
}
