package detect

import (
	"context"

	"github.com/rawblock/txrisk-engine/internal/forest"
	"github.com/rawblock/txrisk-engine/internal/profile"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// GraphView is the slice of the beneficiary graph the mule detector needs.
// Nil when the graph has not completed its first build.
type GraphView interface {
	FanInCount(beneKey string) int
	OtherSenders(beneKey, exceptClient string) []string
	TotalBeneficiaryCount(clientID string) int
	SharedBeneficiaryCount(clientID string) int
	NetworkDensity(clientID string) float64
}

// ModelSource resolves a client's trained isolation-forest model; (nil, nil)
// when none exists.
type ModelSource interface {
	Model(ctx context.Context, clientID string) (*models.IsolationForestModel, error)
}

// Context carries everything a detector may need beyond the transaction and
// profile: the live counter windows, the graph snapshot and the forest
// model. It is read once before the detector pass and never mutated.
//
// Counter values are EFFECTIVE: they include the transaction under
// evaluation, as if its counter bumps had already landed. The fifth rapid
// transaction to a beneficiary therefore sees count 5, not 4, and fires a
// count>=5 rule on arrival rather than one transaction late.
type Context struct {
	EvalAt int64 // epoch millis the evaluation started

	HourCount       int64
	HourAmountPaise int64
	DayCount        int64
	DayAmountPaise  int64
	DayNewBeneCount int64

	// Beneficiary windows; zero when the txn has no beneficiary.
	BeneHourCount       int64
	BeneHourAmountPaise int64
	BeneDayAmountPaise  int64

	Graph       GraphView
	ForestModel *models.IsolationForestModel
	Features    []float64 // this txn's feature vector
}

// BuildContext reads the live counters (and, when wired, the graph snapshot
// and forest model) for one transaction. Counter read failures fail the
// evaluation; a missing model or not-ready graph leaves the field nil.
func BuildContext(ctx context.Context, counters *profile.Counters, txn *models.Transaction,
	p *models.ClientProfile, graphView GraphView, ms ModelSource, evalAt int64) (*Context, error) {

	ec := &Context{EvalAt: evalAt, Graph: graphView}

	hr, err := counters.Hourly(ctx, txn.ClientID, txn.Timestamp)
	if err != nil {
		return nil, err
	}
	ec.HourCount = hr.Count + 1
	ec.HourAmountPaise = hr.TotalAmount + txn.AmountPaise

	day, err := counters.Daily(ctx, txn.ClientID, txn.Timestamp)
	if err != nil {
		return nil, err
	}
	ec.DayCount = day.Count + 1
	ec.DayAmountPaise = day.TotalAmount + txn.AmountPaise

	newBene, err := counters.NewBene(ctx, txn.ClientID, txn.Timestamp)
	if err != nil {
		return nil, err
	}
	ec.DayNewBeneCount = newBene
	if key := txn.BeneficiaryKey(); key != "" {
		if !p.HasSeenBeneficiary(key) {
			ec.DayNewBeneCount++
		}
		bh, err := counters.BeneHourly(ctx, txn.ClientID, key, txn.Timestamp)
		if err != nil {
			return nil, err
		}
		ec.BeneHourCount = bh.Count + 1
		ec.BeneHourAmountPaise = bh.TotalAmount + txn.AmountPaise

		bd, err := counters.BeneDailyAmount(ctx, txn.ClientID, key, txn.Timestamp)
		if err != nil {
			return nil, err
		}
		ec.BeneDayAmountPaise = bd + txn.AmountPaise
	}

	ec.Features = forest.FeatureVector(txn, p, ec.HourCount, ec.HourAmountPaise)
	if ms != nil {
		model, err := ms.Model(ctx, txn.ClientID)
		if err == nil {
			ec.ForestModel = model
		}
		// A model read failure degrades to "no model": the forest detector
		// skips with a reason instead of failing the whole evaluation.
	}
	return ec, nil
}
