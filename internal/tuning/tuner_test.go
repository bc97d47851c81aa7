package tuning

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rawblock/txrisk-engine/internal/review"
	"github.com/rawblock/txrisk-engine/internal/rules"
	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

func testConfig() Config {
	return Config{
		MinSamples:       50,
		MaxAdjustmentPct: 0.10,
		WeightFloor:      0.5,
		WeightCeiling:    5.0,
		InitialDelay:     time.Hour,
		Interval:         6 * time.Hour,
	}
}

func setup(t *testing.T) (*Tuner, *review.Queue, *rules.Registry, store.Store) {
	t.Helper()
	m := store.NewMemory()
	q := review.NewQueue(m)
	reg := rules.NewRegistry(m, time.Minute)

	rule := &models.AnomalyRule{
		RuleID: "RULE-003", Name: "amount anomaly", RuleType: models.RuleAmountAnomaly,
		VariancePct: 100, RiskWeight: 2.0, Enabled: true,
	}
	if err := reg.Save(context.Background(), rule); err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	tn := NewTuner(q, reg, m, testConfig())
	tn.SetClock(func() time.Time { return time.UnixMilli(1_000_000) })
	return tn, q, reg, m
}

func feed(t *testing.T, q *review.Queue, ruleID string, tp, fp int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < tp+fp; i++ {
		status := models.FeedbackTruePositive
		if i >= tp {
			status = models.FeedbackFalsePositive
		}
		item := &models.ReviewQueueItem{
			TxnID:            ruleID + "-TXN-" + string(rune('A'+i/26)) + string(rune('a'+i%26)),
			ClientID:         "CLIENT-001",
			Action:           models.ActionAlert,
			TriggeredRuleIDs: []string{ruleID},
			Status:           status,
			EnqueuedAt:       int64(i),
		}
		if err := q.Save(ctx, item); err != nil {
			t.Fatalf("save item: %v", err)
		}
	}
}

func TestTunerRaisesWeightOnStrongTpRatio(t *testing.T) {
	tn, q, reg, _ := setup(t)

	// 45 TP / 15 FP: ratio 0.75, factor (0.75-0.5)*2*0.10 = +5%.
	feed(t, q, "RULE-003", 45, 15)

	n, err := tn.TuneOnce(context.Background())
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if n != 1 {
		t.Fatalf("moved %d weights, want 1", n)
	}
	rule, _ := reg.Find("RULE-003")
	if math.Abs(rule.RiskWeight-2.1) > 1e-9 {
		t.Errorf("weight = %v, want 2.1 (+5%% of 2.0)", rule.RiskWeight)
	}
}

func TestTunerLowersWeightOnFalsePositives(t *testing.T) {
	tn, q, reg, _ := setup(t)

	// 10 TP / 50 FP: ratio 1/6, factor (1/6-0.5)*2*0.10 = -6.667%.
	feed(t, q, "RULE-003", 10, 50)

	if _, err := tn.TuneOnce(context.Background()); err != nil {
		t.Fatalf("tune: %v", err)
	}
	rule, _ := reg.Find("RULE-003")
	if math.Abs(rule.RiskWeight-1.867) > 1e-9 {
		t.Errorf("weight = %v, want 1.867 (rounded to 3 decimals)", rule.RiskWeight)
	}
}

func TestTunerSkipsThinSamples(t *testing.T) {
	tn, q, reg, _ := setup(t)

	feed(t, q, "RULE-003", 40, 9) // 49 < minSamples 50

	n, err := tn.TuneOnce(context.Background())
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if n != 0 {
		t.Errorf("moved %d weights on a thin sample, want 0", n)
	}
	rule, _ := reg.Find("RULE-003")
	if rule.RiskWeight != 2.0 {
		t.Errorf("weight = %v, want untouched 2.0", rule.RiskWeight)
	}
}

func TestTunerIgnoresCoinFlipRules(t *testing.T) {
	tn, q, _, _ := setup(t)

	// ratio exactly 0.5: factor 0, |delta| < 0.001, no write.
	feed(t, q, "RULE-003", 30, 30)

	n, err := tn.TuneOnce(context.Background())
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if n != 0 {
		t.Errorf("moved %d weights on neutral feedback, want 0", n)
	}
}

func TestTunerClampsAtCeiling(t *testing.T) {
	tn, q, reg, _ := setup(t)

	heavy := &models.AnomalyRule{
		RuleID: "RULE-014", Name: "mule network", RuleType: models.RuleMuleNetwork,
		RiskWeight: 4.95, Enabled: true,
	}
	if err := reg.Save(context.Background(), heavy); err != nil {
		t.Fatalf("seed: %v", err)
	}
	feed(t, q, "RULE-014", 60, 0) // ratio 1.0, raw 4.95*1.10 = 5.445

	if _, err := tn.TuneOnce(context.Background()); err != nil {
		t.Fatalf("tune: %v", err)
	}
	rule, _ := reg.Find("RULE-014")
	if rule.RiskWeight != 5.0 {
		t.Errorf("weight = %v, want clamped to 5.0", rule.RiskWeight)
	}
}

func TestTunerWritesAuditRecord(t *testing.T) {
	tn, q, _, m := setup(t)
	feed(t, q, "RULE-003", 45, 15)

	if _, err := tn.TuneOnce(context.Background()); err != nil {
		t.Fatalf("tune: %v", err)
	}

	var changes []models.RuleWeightChange
	err := m.ScanAll(context.Background(), store.SetRuleWeightHistory, func(key string, rec []byte) error {
		var ch models.RuleWeightChange
		if ok, _ := store.GetJSON(context.Background(), m, store.SetRuleWeightHistory, key, &ch); ok {
			changes = append(changes, ch)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan audit: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("audit records = %d, want 1", len(changes))
	}
	ch := changes[0]
	if ch.RuleID != "RULE-003" || ch.OldWeight != 2.0 || ch.NewWeight != 2.1 {
		t.Errorf("audit = %+v, want RULE-003 2.0 -> 2.1", ch)
	}
	if ch.TruePositives != 45 || ch.FalsePositives != 15 {
		t.Errorf("audit tallies = %d/%d, want 45/15", ch.TruePositives, ch.FalsePositives)
	}
	if ch.ChangeID == "" || ch.ChangedAt != 1_000_000 {
		t.Errorf("audit identity wrong: %+v", ch)
	}
}

func TestTunerExcludesAutoAccepted(t *testing.T) {
	tn, q, reg, _ := setup(t)
	ctx := context.Background()

	// 60 auto-accepted items would clear minSamples if they counted.
	for i := 0; i < 60; i++ {
		item := &models.ReviewQueueItem{
			TxnID:            "AUTO-" + string(rune('A'+i/26)) + string(rune('a'+i%26)),
			TriggeredRuleIDs: []string{"RULE-003"},
			Status:           models.FeedbackAutoAccepted,
		}
		_ = q.Save(ctx, item)
	}

	n, err := tn.TuneOnce(ctx)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if n != 0 {
		t.Errorf("auto-accepted feedback moved %d weights, want 0", n)
	}
	rule, _ := reg.Find("RULE-003")
	if rule.RiskWeight != 2.0 {
		t.Errorf("weight = %v, want untouched", rule.RiskWeight)
	}
}
