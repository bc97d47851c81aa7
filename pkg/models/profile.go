package models

// SeasonalSlot is one cell of a seasonal baseline: the EWMA of a metric for a
// specific hour-of-day or day-of-week, plus how many completed periods fed it.
type SeasonalSlot struct {
	Ewma  float64 `json:"ewma"`
	Count int64   `json:"count"`
}

// ClientProfile is the online behavioural profile of one client. All
// statistics update incrementally, so a profile stays O(1) in the client's
// transaction history. Each statistic carries two tracks: an EWMA used as
// the detector baseline, and an exact Welford mean/M2 pair for variance.
// Monetary statistics are in rupees.
type ClientProfile struct {
	ClientID      string `json:"clientId"`
	TotalTxnCount int64  `json:"totalTxnCount"`

	// Global amount statistics across every transaction.
	EwmaAmount float64 `json:"ewmaAmount"`
	MeanAmount float64 `json:"meanAmount"`
	AmountM2   float64 `json:"amountM2"` // Welford sum of squared deviations

	// Per transaction type.
	TxnTypeCounts    map[string]int64   `json:"txnTypeCounts"`
	EwmaAmountByType map[string]float64 `json:"ewmaAmountByType"`
	MeanAmountByType map[string]float64 `json:"meanAmountByType"`
	AmountM2ByType   map[string]float64 `json:"amountM2ByType"`

	// Hourly aggregates, fed on hour rollover from the completed hour's counter.
	EwmaHourlyTps       float64 `json:"ewmaHourlyTps"` // transactions per hour
	MeanHourlyTps       float64 `json:"meanHourlyTps"`
	TpsM2               float64 `json:"tpsM2"`
	EwmaHourlyAmount    float64 `json:"ewmaHourlyAmount"`
	MeanHourlyAmount    float64 `json:"meanHourlyAmount"`
	HourlyAmountM2      float64 `json:"hourlyAmountM2"`
	CompletedHoursCount int64   `json:"completedHoursCount"`
	LastHourBucket      string  `json:"lastHourBucket"` // YYYYMMDDHH, UTC

	// Daily aggregates, fed on day rollover.
	EwmaDailyAmount    float64 `json:"ewmaDailyAmount"`
	MeanDailyAmount    float64 `json:"meanDailyAmount"`
	DailyAmountM2      float64 `json:"dailyAmountM2"`
	CompletedDaysCount int64   `json:"completedDaysCount"`
	LastDayBucket      string  `json:"lastDayBucket"` // YYYYMMDD, UTC

	// New-beneficiary velocity baseline, fed from the previous day's
	// new-beneficiary counter on day rollover.
	EwmaDailyNewBeneficiaries float64 `json:"ewmaDailyNewBeneficiaries"`
	MeanDailyNewBene          float64 `json:"meanDailyNewBene"`
	DailyNewBeneM2            float64 `json:"dailyNewBeneM2"`
	CompletedDaysForBeneCount int64   `json:"completedDaysForBeneCount"`

	// Seasonal baselines: what is normal for THIS hour of day / day of week.
	HourOfDayTps    [24]SeasonalSlot `json:"hourOfDayTps"`
	HourOfDayAmount [24]SeasonalSlot `json:"hourOfDayAmount"`
	DayOfWeekTps    [7]SeasonalSlot  `json:"dayOfWeekTps"`    // Sunday = 0
	DayOfWeekAmount [7]SeasonalSlot  `json:"dayOfWeekAmount"` // Sunday = 0

	// Per-beneficiary aggregates, keyed by "IFSC:ACCOUNT".
	BeneTxnCounts            map[string]int64   `json:"beneTxnCounts"`
	EwmaAmountByBene         map[string]float64 `json:"ewmaAmountByBene"`
	MeanAmountByBene         map[string]float64 `json:"meanAmountByBene"`
	AmountM2ByBene           map[string]float64 `json:"amountM2ByBene"`
	DistinctBeneficiaryCount int64              `json:"distinctBeneficiaryCount"`

	LastUpdated int64 `json:"lastUpdated"` // epoch millis of the last absorbed txn
}

// NewClientProfile returns an empty profile with all maps allocated.
func NewClientProfile(clientID string) *ClientProfile {
	p := &ClientProfile{ClientID: clientID}
	p.EnsureMaps()
	return p
}

// EnsureMaps allocates any nil maps. Profiles deserialized from storage may
// omit empty maps; every accessor assumes they exist.
func (p *ClientProfile) EnsureMaps() {
	if p.TxnTypeCounts == nil {
		p.TxnTypeCounts = make(map[string]int64)
	}
	if p.EwmaAmountByType == nil {
		p.EwmaAmountByType = make(map[string]float64)
	}
	if p.MeanAmountByType == nil {
		p.MeanAmountByType = make(map[string]float64)
	}
	if p.AmountM2ByType == nil {
		p.AmountM2ByType = make(map[string]float64)
	}
	if p.BeneTxnCounts == nil {
		p.BeneTxnCounts = make(map[string]int64)
	}
	if p.EwmaAmountByBene == nil {
		p.EwmaAmountByBene = make(map[string]float64)
	}
	if p.MeanAmountByBene == nil {
		p.MeanAmountByBene = make(map[string]float64)
	}
	if p.AmountM2ByBene == nil {
		p.AmountM2ByBene = make(map[string]float64)
	}
}

// HasSeenBeneficiary reports whether the client has ever paid this beneficiary.
func (p *ClientProfile) HasSeenBeneficiary(beneKey string) bool {
	return beneKey != "" && p.BeneTxnCounts[beneKey] > 0
}

// TypeFrequency returns count(type)/totalTxnCount, 0 on an empty profile.
func (p *ClientProfile) TypeFrequency(txnType string) float64 {
	if p.TotalTxnCount == 0 {
		return 0
	}
	return float64(p.TxnTypeCounts[txnType]) / float64(p.TotalTxnCount)
}
