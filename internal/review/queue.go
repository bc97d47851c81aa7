package review

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Queue persists ALERT/BLOCK verdicts for analyst review. Status transitions
// are serialized through the queue mutex on top of the store: an item leaves
// PENDING exactly once, whether through analyst feedback or the auto-accept
// sweep, and never moves again.
type Queue struct {
	store store.Store

	// Guards read-modify-write transitions. Plain saves and reads go
	// straight to the store.
	mu sync.Mutex

	now func() time.Time
}

func NewQueue(s store.Store) *Queue {
	return &Queue{store: s, now: time.Now}
}

// SetClock overrides the queue clock. Test hook.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }

// Enqueue builds a PENDING item from a verdict and saves it.
func (q *Queue) Enqueue(ctx context.Context, res *models.EvaluationResult, autoAcceptTimeoutMs int64) (*models.ReviewQueueItem, error) {
	now := q.now().UnixMilli()
	item := &models.ReviewQueueItem{
		TxnID:              res.TxnID,
		ClientID:           res.ClientID,
		Action:             res.Action,
		CompositeScore:     res.CompositeScore,
		RiskLevel:          res.RiskLevel,
		TriggeredRuleIDs:   res.TriggeredRuleIDs(),
		Status:             models.FeedbackPending,
		EnqueuedAt:         now,
		AutoAcceptDeadline: now + autoAcceptTimeoutMs,
	}
	if err := q.Save(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Save writes the item as-is.
func (q *Queue) Save(ctx context.Context, item *models.ReviewQueueItem) error {
	return store.PutJSON(ctx, q.store, store.SetReviewQueue, item.TxnID, item)
}

// FindByTxnID returns the item, or (nil, nil) when absent.
func (q *Queue) FindByTxnID(ctx context.Context, txnID string) (*models.ReviewQueueItem, error) {
	var item models.ReviewQueueItem
	found, err := store.GetJSON(ctx, q.store, store.SetReviewQueue, txnID, &item)
	if err != nil || !found {
		return nil, err
	}
	return &item, nil
}

// FindAllWithFeedback returns every item an analyst has labelled TP or FP.
// AUTO_ACCEPTED items carry no signal and are excluded.
func (q *Queue) FindAllWithFeedback(ctx context.Context) ([]*models.ReviewQueueItem, error) {
	var out []*models.ReviewQueueItem
	err := q.scan(ctx, func(item *models.ReviewQueueItem) {
		if item.Status == models.FeedbackTruePositive || item.Status == models.FeedbackFalsePositive {
			out = append(out, item)
		}
	})
	return out, err
}

// UpdateFeedback transitions one item out of PENDING. First write wins:
// returns false without touching the item when it has already left PENDING
// or does not exist.
func (q *Queue) UpdateFeedback(ctx context.Context, txnID, status, by string) (bool, error) {
	if !models.ValidFeedback(status) {
		return false, &InvalidFeedbackError{Status: status}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.transition(ctx, txnID, status, by, "")
}

// BulkUpdateFeedback applies the single-item contract per id and returns how
// many transitioned. Unknown or already-reviewed ids are skipped, not errors.
func (q *Queue) BulkUpdateFeedback(ctx context.Context, txnIDs []string, status, by string) (int, error) {
	if !models.ValidFeedback(status) {
		return 0, &InvalidFeedbackError{Status: status}
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := 0
	for _, id := range txnIDs {
		ok, err := q.transition(ctx, id, status, by, "")
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

// transition is the PENDING->terminal write. Callers hold q.mu.
func (q *Queue) transition(ctx context.Context, txnID, status, by, note string) (bool, error) {
	var item models.ReviewQueueItem
	found, err := store.GetJSON(ctx, q.store, store.SetReviewQueue, txnID, &item)
	if err != nil || !found {
		return false, err
	}
	if item.IsTerminal() {
		return false, nil
	}
	item.Status = status
	item.ReviewedAt = q.now().UnixMilli()
	item.ReviewedBy = by
	if note != "" {
		item.Note = note
	}
	if err := q.Save(ctx, &item); err != nil {
		return false, err
	}
	return true, nil
}

// StatusCounts is the queue census by feedback state.
type StatusCounts struct {
	Pending        int64 `json:"pending"`
	TruePositives  int64 `json:"truePositives"`
	FalsePositives int64 `json:"falsePositives"`
	AutoAccepted   int64 `json:"autoAccepted"`
}

// CountByStatus scans the full queue and tallies each state.
func (q *Queue) CountByStatus(ctx context.Context) (StatusCounts, error) {
	var c StatusCounts
	err := q.scan(ctx, func(item *models.ReviewQueueItem) {
		switch item.Status {
		case models.FeedbackPending:
			c.Pending++
		case models.FeedbackTruePositive:
			c.TruePositives++
		case models.FeedbackFalsePositive:
			c.FalsePositives++
		case models.FeedbackAutoAccepted:
			c.AutoAccepted++
		}
	})
	return c, err
}

// Filter narrows a queue query. Zero values mean "any". Before is an
// enqueuedAt exclusive upper bound serving as the pagination cursor.
type Filter struct {
	Action   string
	ClientID string
	RuleID   string
	Status   string
	FromDate int64 // enqueuedAt >=, epoch millis
	ToDate   int64 // enqueuedAt <=, epoch millis
	Before   int64 // cursor: enqueuedAt <, epoch millis
	Limit    int
}

func (f *Filter) matches(item *models.ReviewQueueItem) bool {
	if f.Action != "" && item.Action != f.Action {
		return false
	}
	if f.ClientID != "" && item.ClientID != f.ClientID {
		return false
	}
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.FromDate > 0 && item.EnqueuedAt < f.FromDate {
		return false
	}
	if f.ToDate > 0 && item.EnqueuedAt > f.ToDate {
		return false
	}
	if f.Before > 0 && item.EnqueuedAt >= f.Before {
		return false
	}
	if f.RuleID != "" {
		hit := false
		for _, id := range item.TriggeredRuleIDs {
			if id == f.RuleID {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Find returns matching items newest-first. Page through with
// Before = enqueuedAt of the last item returned.
func (q *Queue) Find(ctx context.Context, f Filter) ([]*models.ReviewQueueItem, error) {
	var out []*models.ReviewQueueItem
	if err := q.scan(ctx, func(item *models.ReviewQueueItem) {
		if f.matches(item) {
			out = append(out, item)
		}
	}); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt != out[j].EnqueuedAt {
			return out[i].EnqueuedAt > out[j].EnqueuedAt
		}
		return out[i].TxnID < out[j].TxnID // stable page order for equal timestamps
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// scan visits every parseable queue record. Corrupt records are logged and
// skipped rather than aborting the scan.
func (q *Queue) scan(ctx context.Context, visit func(*models.ReviewQueueItem)) error {
	return q.store.ScanAll(ctx, store.SetReviewQueue, func(key string, rec []byte) error {
		item, ok := decodeItem(key, rec)
		if ok {
			visit(item)
		}
		return nil
	})
}

func decodeItem(key string, rec []byte) (*models.ReviewQueueItem, bool) {
	var item models.ReviewQueueItem
	if err := json.Unmarshal(rec, &item); err != nil {
		log.Warn().Str("component", "review").Str("key", key).Err(err).
			Msg("skipping corrupt review item")
		return nil, false
	}
	return &item, true
}

// InvalidFeedbackError rejects feedback values outside {TRUE_POSITIVE,
// FALSE_POSITIVE}. AUTO_ACCEPTED is reserved for the sweeper.
type InvalidFeedbackError struct {
	Status string
}

func (e *InvalidFeedbackError) Error() string {
	return fmt.Sprintf("review: invalid feedback status %q", e.Status)
}
