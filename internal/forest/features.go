package forest

import (
	"math"

	"github.com/rawblock/txrisk-engine/internal/profile"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// FeatureVector extracts the 8 isolation-forest features for one transaction
// against its PRE-update profile. hourCount and hourAmountPaise are the
// current-hour window including the transaction itself. The order is part of
// the persisted model contract (see models.FeatureCount); training and
// scoring must use this function and nothing else.
func FeatureVector(txn *models.Transaction, p *models.ClientProfile, hourCount, hourAmountPaise int64) []float64 {
	amount := txn.AmountRupees()

	f := make([]float64, models.FeatureCount)
	f[0] = zScore(amount, p.EwmaAmount, profile.StdDev(p.AmountM2, p.TotalTxnCount))
	f[1] = zScore(amount, p.EwmaAmountByType[txn.TxnType],
		profile.StdDev(p.AmountM2ByType[txn.TxnType], p.TxnTypeCounts[txn.TxnType]))
	f[2] = math.Log1p(float64(hourCount)) - math.Log1p(math.Max(0, p.EwmaHourlyTps))
	f[3] = math.Log1p(float64(hourAmountPaise)/100.0) - math.Log1p(math.Max(0, p.EwmaHourlyAmount))
	f[4] = p.TypeFrequency(txn.TxnType)

	hour := float64(profile.HourOfDay(txn.Timestamp))
	f[5] = math.Sin(2 * math.Pi * hour / 24.0)
	f[6] = math.Cos(2 * math.Pi * hour / 24.0)
	f[7] = float64(profile.DayOfWeek(txn.Timestamp)) / 6.0
	return f
}

// zScore with a zero-spread guard: a profile with no variance yet cannot
// standardize, so the feature degrades to 0 rather than blowing up.
func zScore(x, mean, std float64) float64 {
	if std <= 0 {
		return 0
	}
	return (x - mean) / std
}
