package review

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func newItem(txnID string, enqueuedAt int64) *models.ReviewQueueItem {
	return &models.ReviewQueueItem{
		TxnID:            txnID,
		ClientID:         "CLIENT-001",
		Action:           models.ActionAlert,
		CompositeScore:   45,
		TriggeredRuleIDs: []string{"RULE-003"},
		Status:           models.FeedbackPending,
		EnqueuedAt:       enqueuedAt,
	}
}

func TestEnqueueSetsDeadlineAndPending(t *testing.T) {
	q := NewQueue(store.NewMemory())
	q.SetClock(fixedClock(1_000_000))
	ctx := context.Background()

	res := &models.EvaluationResult{
		TxnID: "TXN-1", ClientID: "CLIENT-001", Action: models.ActionBlock,
		CompositeScore: 82, RiskLevel: models.RiskCritical,
		RuleResults: []models.RuleResult{
			{RuleID: "RULE-003", Triggered: true},
			{RuleID: "RULE-006", Triggered: false},
		},
	}
	item, err := q.Enqueue(ctx, res, 60_000)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if item.Status != models.FeedbackPending {
		t.Errorf("status = %s, want PENDING", item.Status)
	}
	if item.AutoAcceptDeadline != 1_060_000 {
		t.Errorf("deadline = %d, want 1060000", item.AutoAcceptDeadline)
	}
	if len(item.TriggeredRuleIDs) != 1 || item.TriggeredRuleIDs[0] != "RULE-003" {
		t.Errorf("triggeredRuleIds = %v, want only RULE-003", item.TriggeredRuleIDs)
	}

	got, err := q.FindByTxnID(ctx, "TXN-1")
	if err != nil || got == nil {
		t.Fatalf("findByTxnId: %v %v", got, err)
	}
	if got.RiskLevel != models.RiskCritical {
		t.Errorf("riskLevel = %s, want CRITICAL", got.RiskLevel)
	}
}

func TestReviewItemWireFormat(t *testing.T) {
	item := newItem("TXN-1", 1_000)
	item.Status = models.FeedbackTruePositive
	item.ReviewedAt = 2_000
	item.ReviewedBy = "analyst-7"

	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"feedbackStatus", "feedbackAt", "feedbackBy"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("serialized item missing %q: %s", key, raw)
		}
	}
	if _, ok := fields["status"]; ok {
		t.Errorf("serialized item carries legacy status key: %s", raw)
	}
}

func TestFirstFeedbackWins(t *testing.T) {
	q := NewQueue(store.NewMemory())
	q.SetClock(fixedClock(5_000))
	ctx := context.Background()

	if err := q.Save(ctx, newItem("TXN-1", 1_000)); err != nil {
		t.Fatalf("save: %v", err)
	}

	ok, err := q.UpdateFeedback(ctx, "TXN-1", models.FeedbackTruePositive, "analyst-a")
	if err != nil || !ok {
		t.Fatalf("first feedback must succeed: ok=%v err=%v", ok, err)
	}

	// Second write, different verdict: rejected without touching the item.
	ok, err = q.UpdateFeedback(ctx, "TXN-1", models.FeedbackFalsePositive, "analyst-b")
	if err != nil {
		t.Fatalf("second feedback: %v", err)
	}
	if ok {
		t.Error("second feedback must not transition")
	}

	got, _ := q.FindByTxnID(ctx, "TXN-1")
	if got.Status != models.FeedbackTruePositive || got.ReviewedBy != "analyst-a" {
		t.Errorf("item = %s by %s, want TRUE_POSITIVE by analyst-a", got.Status, got.ReviewedBy)
	}
}

func TestUpdateFeedbackRejectsReservedStatus(t *testing.T) {
	q := NewQueue(store.NewMemory())
	ctx := context.Background()
	_ = q.Save(ctx, newItem("TXN-1", 1_000))

	if _, err := q.UpdateFeedback(ctx, "TXN-1", models.FeedbackAutoAccepted, "analyst"); err == nil {
		t.Error("AUTO_ACCEPTED must be rejected as analyst feedback")
	}
	if _, err := q.UpdateFeedback(ctx, "TXN-1", "MAYBE", "analyst"); err == nil {
		t.Error("unknown status must be rejected")
	}
}

func TestUpdateFeedbackMissingItem(t *testing.T) {
	q := NewQueue(store.NewMemory())
	ok, err := q.UpdateFeedback(context.Background(), "NOPE", models.FeedbackTruePositive, "a")
	if err != nil || ok {
		t.Errorf("missing item: ok=%v err=%v, want false/nil", ok, err)
	}
}

func TestBulkUpdateCountsOnlyTransitions(t *testing.T) {
	q := NewQueue(store.NewMemory())
	q.SetClock(fixedClock(5_000))
	ctx := context.Background()

	_ = q.Save(ctx, newItem("TXN-1", 1_000))
	_ = q.Save(ctx, newItem("TXN-2", 2_000))
	reviewed := newItem("TXN-3", 3_000)
	reviewed.Status = models.FeedbackFalsePositive
	_ = q.Save(ctx, reviewed)

	n, err := q.BulkUpdateFeedback(ctx, []string{"TXN-1", "TXN-2", "TXN-3", "GHOST"},
		models.FeedbackTruePositive, "analyst")
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if n != 2 {
		t.Errorf("transitioned = %d, want 2 (reviewed + ghost skipped)", n)
	}
}

func TestCountByStatus(t *testing.T) {
	q := NewQueue(store.NewMemory())
	ctx := context.Background()

	states := []string{
		models.FeedbackPending, models.FeedbackPending,
		models.FeedbackTruePositive,
		models.FeedbackFalsePositive,
		models.FeedbackAutoAccepted, models.FeedbackAutoAccepted, models.FeedbackAutoAccepted,
	}
	for i, st := range states {
		item := newItem("TXN-"+string(rune('A'+i)), int64(i)*1000)
		item.Status = st
		_ = q.Save(ctx, item)
	}

	c, err := q.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if c.Pending != 2 || c.TruePositives != 1 || c.FalsePositives != 1 || c.AutoAccepted != 3 {
		t.Errorf("counts = %+v, want 2/1/1/3", c)
	}
}

func TestFindFiltersAndPaginates(t *testing.T) {
	q := NewQueue(store.NewMemory())
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		item := newItem("TXN-"+string(rune('0'+i)), i*1_000)
		if i%2 == 0 {
			item.Action = models.ActionBlock
		}
		_ = q.Save(ctx, item)
	}
	other := newItem("TXN-OTHER", 10_000)
	other.ClientID = "CLIENT-999"
	other.TriggeredRuleIDs = []string{"RULE-014"}
	_ = q.Save(ctx, other)

	// Newest first, full set.
	all, err := q.Find(ctx, Filter{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(all) != 6 || all[0].TxnID != "TXN-OTHER" {
		t.Fatalf("got %d items, first %s; want 6 with TXN-OTHER first", len(all), all[0].TxnID)
	}
	for i := 1; i < len(all); i++ {
		if all[i].EnqueuedAt > all[i-1].EnqueuedAt {
			t.Fatal("results not in descending enqueuedAt order")
		}
	}

	// Cursor: everything strictly older than 4000.
	page, _ := q.Find(ctx, Filter{Before: 4_000, Limit: 2})
	if len(page) != 2 || page[0].EnqueuedAt != 3_000 || page[1].EnqueuedAt != 2_000 {
		t.Errorf("cursor page wrong: %+v", page)
	}

	// Action + client + rule filters.
	blocks, _ := q.Find(ctx, Filter{Action: models.ActionBlock})
	if len(blocks) != 2 {
		t.Errorf("action filter: %d, want 2", len(blocks))
	}
	byClient, _ := q.Find(ctx, Filter{ClientID: "CLIENT-999"})
	if len(byClient) != 1 {
		t.Errorf("client filter: %d, want 1", len(byClient))
	}
	byRule, _ := q.Find(ctx, Filter{RuleID: "RULE-014"})
	if len(byRule) != 1 || byRule[0].TxnID != "TXN-OTHER" {
		t.Errorf("rule filter wrong: %+v", byRule)
	}
	window, _ := q.Find(ctx, Filter{FromDate: 2_000, ToDate: 4_000})
	if len(window) != 3 {
		t.Errorf("date window: %d, want 3", len(window))
	}
}

func TestFindAllWithFeedbackExcludesAutoAccepted(t *testing.T) {
	q := NewQueue(store.NewMemory())
	ctx := context.Background()

	tp := newItem("TXN-1", 1_000)
	tp.Status = models.FeedbackTruePositive
	fp := newItem("TXN-2", 2_000)
	fp.Status = models.FeedbackFalsePositive
	auto := newItem("TXN-3", 3_000)
	auto.Status = models.FeedbackAutoAccepted
	pending := newItem("TXN-4", 4_000)
	for _, it := range []*models.ReviewQueueItem{tp, fp, auto, pending} {
		_ = q.Save(ctx, it)
	}

	got, err := q.FindAllWithFeedback(ctx)
	if err != nil {
		t.Fatalf("findAllWithFeedback: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d items, want 2 (TP + FP only)", len(got))
	}
}

func TestSweeperExpiresOnlyOverduePending(t *testing.T) {
	q := NewQueue(store.NewMemory())
	q.SetClock(fixedClock(100_000))
	ctx := context.Background()

	overdue := newItem("TXN-1", 1_000)
	overdue.AutoAcceptDeadline = 99_000
	fresh := newItem("TXN-2", 2_000)
	fresh.AutoAcceptDeadline = 200_000
	reviewed := newItem("TXN-3", 3_000)
	reviewed.AutoAcceptDeadline = 50_000
	reviewed.Status = models.FeedbackTruePositive
	boundary := newItem("TXN-4", 4_000)
	boundary.AutoAcceptDeadline = 100_000 // deadline <= now expires
	for _, it := range []*models.ReviewQueueItem{overdue, fresh, reviewed, boundary} {
		_ = q.Save(ctx, it)
	}

	s := NewSweeper(q, time.Minute)
	n, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("swept = %d, want 2", n)
	}

	for id, want := range map[string]string{
		"TXN-1": models.FeedbackAutoAccepted,
		"TXN-2": models.FeedbackPending,
		"TXN-3": models.FeedbackTruePositive,
		"TXN-4": models.FeedbackAutoAccepted,
	} {
		got, _ := q.FindByTxnID(ctx, id)
		if got.Status != want {
			t.Errorf("%s status = %s, want %s", id, got.Status, want)
		}
	}

	// Idempotent: nothing left to sweep.
	if n, _ := s.SweepOnce(ctx); n != 0 {
		t.Errorf("second sweep moved %d items, want 0", n)
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	q := NewQueue(store.NewMemory())
	q.SetClock(fixedClock(100_000))
	ctx := context.Background()

	item := newItem("TXN-1", 1_000)
	item.AutoAcceptDeadline = 50_000 // already overdue
	_ = q.Save(ctx, item)

	// Analyst feedback lands before the sweep runs.
	if ok, _ := q.UpdateFeedback(ctx, "TXN-1", models.FeedbackFalsePositive, "analyst"); !ok {
		t.Fatal("feedback must land")
	}
	s := NewSweeper(q, time.Minute)
	if n, _ := s.SweepOnce(ctx); n != 0 {
		t.Errorf("sweep overrode analyst feedback on %d items", n)
	}
	got, _ := q.FindByTxnID(ctx, "TXN-1")
	if got.Status != models.FeedbackFalsePositive {
		t.Errorf("status = %s, want FALSE_POSITIVE preserved", got.Status)
	}
}
