package notify

import (
	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// LogSink writes every event to the structured log. Always registered, so a
// deployment with no webhook still leaves an audit trail of BLOCK verdicts.
type LogSink struct{}

func (LogSink) NotifyBlocked(txn *models.Transaction, result *models.EvaluationResult) {
	log.Warn().Str("component", "notify").
		Str("txnId", txn.TxnID).
		Str("clientId", txn.ClientID).
		Float64("compositeScore", result.CompositeScore).
		Str("riskLevel", result.RiskLevel).
		Strs("triggeredRules", result.TriggeredRuleIDs()).
		Msg("transaction blocked")
}

func (LogSink) NotifySilent(clientID string, silenceMinutes, expectedGapMinutes, hourlyTps float64) {
	log.Warn().Str("component", "notify").
		Str("clientId", clientID).
		Float64("silenceMinutes", silenceMinutes).
		Float64("expectedGapMinutes", expectedGapMinutes).
		Float64("hourlyTps", hourlyTps).
		Msg("active client gone silent")
}
