package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// WebhookSink POSTs engine events as JSON to a configured endpoint. The
// payload shape is flat enough for Slack-style incoming webhooks and SIEM
// collectors alike.
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type webhookPayload struct {
	Event     string   `json:"event"` // transaction_blocked / client_silent
	Timestamp int64    `json:"timestamp"`
	ClientID  string   `json:"clientId"`
	TxnID     string   `json:"txnId,omitempty"`
	Action    string   `json:"action,omitempty"`
	RiskLevel string   `json:"riskLevel,omitempty"`
	Score     float64  `json:"compositeScore,omitempty"`
	Rules     []string `json:"triggeredRules,omitempty"`

	SilenceMinutes     float64 `json:"silenceMinutes,omitempty"`
	ExpectedGapMinutes float64 `json:"expectedGapMinutes,omitempty"`
	HourlyTps          float64 `json:"hourlyTps,omitempty"`
}

func (w *WebhookSink) NotifyBlocked(txn *models.Transaction, result *models.EvaluationResult) {
	w.post(webhookPayload{
		Event:     "transaction_blocked",
		Timestamp: time.Now().UnixMilli(),
		ClientID:  txn.ClientID,
		TxnID:     txn.TxnID,
		Action:    result.Action,
		RiskLevel: result.RiskLevel,
		Score:     result.CompositeScore,
		Rules:     result.TriggeredRuleIDs(),
	})
}

func (w *WebhookSink) NotifySilent(clientID string, silenceMinutes, expectedGapMinutes, hourlyTps float64) {
	w.post(webhookPayload{
		Event:              "client_silent",
		Timestamp:          time.Now().UnixMilli(),
		ClientID:           clientID,
		SilenceMinutes:     silenceMinutes,
		ExpectedGapMinutes: expectedGapMinutes,
		HourlyTps:          hourlyTps,
	})
}

func (w *WebhookSink) post(p webhookPayload) {
	body, err := json.Marshal(p)
	if err != nil {
		log.Error().Str("component", "webhook").Err(err).Msg("marshal payload")
		return
	}
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warn().Str("component", "webhook").Err(err).Str("event", p.Event).
			Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		log.Warn().Str("component", "webhook").Int("status", resp.StatusCode).
			Str("event", p.Event).Msg("webhook rejected")
	}
}
