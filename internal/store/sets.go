package store

// Set names are a stable external contract: operators inspect them directly
// and other services read them. Never rename.
const (
	SetTransactions         = "transactions"
	SetClientProfiles       = "client_profiles"
	SetAnomalyRules         = "anomaly_rules"
	SetRiskResults          = "risk_results"
	SetClientHourlyCounters = "client_hourly_counters"
	SetBeneHourlyCounters   = "bene_hourly_counters"
	SetClientDailyCounters  = "client_daily_counters"
	SetDailyNewBeneCounters = "daily_new_bene_cntrs"
	SetIfModels             = "if_models"
	SetReviewQueue          = "review_queue"
	SetRuleWeightHistory    = "rule_weight_history"
)

// Counter record fields targeted by AddAndGet.
const (
	FieldCount       = "count"
	FieldTotalAmount = "totalAmount"
)
