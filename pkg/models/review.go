package models

// Review feedback states. An item enters PENDING and leaves it exactly once:
// either through analyst feedback or through the auto-accept sweep.
const (
	FeedbackPending       = "PENDING"
	FeedbackTruePositive  = "TRUE_POSITIVE"
	FeedbackFalsePositive = "FALSE_POSITIVE"
	FeedbackAutoAccepted  = "AUTO_ACCEPTED"
)

// ReviewQueueItem is an ALERT or BLOCK verdict awaiting analyst feedback.
// Keyed by txnId in the review_queue set.
type ReviewQueueItem struct {
	TxnID              string   `json:"txnId"`
	ClientID           string   `json:"clientId"`
	Action             string   `json:"action"` // ALERT or BLOCK
	CompositeScore     float64  `json:"compositeScore"`
	RiskLevel          string   `json:"riskLevel"`
	TriggeredRuleIDs   []string `json:"triggeredRuleIds"`
	Status             string   `json:"feedbackStatus"`
	EnqueuedAt         int64    `json:"enqueuedAt"`         // epoch millis
	AutoAcceptDeadline int64    `json:"autoAcceptDeadline"` // epoch millis
	ReviewedAt         int64    `json:"feedbackAt,omitempty"`
	ReviewedBy         string   `json:"feedbackBy,omitempty"`
	Note               string   `json:"note,omitempty"`
}

// IsTerminal reports whether the item has left PENDING.
func (i *ReviewQueueItem) IsTerminal() bool {
	return i.Status != FeedbackPending
}

// ValidFeedback reports whether s is an analyst-assignable feedback value.
// AUTO_ACCEPTED is reserved for the sweeper.
func ValidFeedback(s string) bool {
	return s == FeedbackTruePositive || s == FeedbackFalsePositive
}
