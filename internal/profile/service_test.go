package profile

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

func newTestService() (*Service, *store.Memory) {
	m := store.NewMemory()
	s := NewService(m, 0.1)
	return s, m
}

func txnAt(ts time.Time, paise int64) *models.Transaction {
	return &models.Transaction{
		TxnID:       "TXN-" + ts.Format("150405.000"),
		ClientID:    "CLIENT-001",
		TxnType:     "NEFT",
		AmountPaise: paise,
		Timestamp:   ts.UnixMilli(),
	}
}

func TestUpdateIncrementsExactlyOneTypeCount(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	p := models.NewClientProfile("CLIENT-001")

	ts := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	txn := txnAt(ts, 500_000)
	if err := s.Update(ctx, p, txn); err != nil {
		t.Fatalf("update: %v", err)
	}

	if p.TotalTxnCount != 1 {
		t.Errorf("totalTxnCount = %d, want 1", p.TotalTxnCount)
	}
	var typeSum int64
	for _, n := range p.TxnTypeCounts {
		typeSum += n
	}
	if typeSum != p.TotalTxnCount {
		t.Errorf("invariant: sum of type counts %d != totalTxnCount %d", typeSum, p.TotalTxnCount)
	}
}

func TestEwmaConvergesToConstantAmount(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	p := models.NewClientProfile("CLIENT-001")

	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	const amount = 4_000_000 // 40,000 rupees in paise
	for i := 0; i < 400; i++ {
		if err := s.Update(ctx, p, txnAt(base.Add(time.Duration(i)*time.Second), amount)); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	if math.Abs(p.EwmaAmount-40_000) > 1e-6 { // (1-alpha)^400 decay leaves ~1e-14 of the zero seed
		t.Errorf("ewmaAmount = %v, want 40000", p.EwmaAmount)
	}
	if math.Abs(p.AmountM2) > 1e-9 {
		t.Errorf("amountM2 = %v, want 0 for constant amounts", p.AmountM2)
	}
}

func TestWelfordMatchesTwoPassVariance(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	p := models.NewClientProfile("CLIENT-001")

	amounts := []float64{12000, 45000, 8000, 39000, 61000, 9500, 27000, 33000}
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	for i, a := range amounts {
		if err := s.Update(ctx, p, txnAt(base.Add(time.Duration(i)*time.Second), int64(a*100))); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	var mean float64
	for _, a := range amounts {
		mean += a
	}
	mean /= float64(len(amounts))
	var ss float64
	for _, a := range amounts {
		ss += (a - mean) * (a - mean)
	}
	twoPass := ss / float64(len(amounts)-1)

	online := p.AmountM2 / float64(p.TotalTxnCount-1)
	if math.Abs(online-twoPass)/twoPass > 1e-9 {
		t.Errorf("welford variance %v != two-pass %v", online, twoPass)
	}
}

func TestHourRolloverAbsorbsCompletedHourOnce(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	p := models.NewClientProfile("CLIENT-001")

	h14 := time.Date(2025, 1, 15, 14, 10, 0, 0, time.UTC)
	// Three transactions inside hour 14.
	for i := 0; i < 3; i++ {
		if err := s.Update(ctx, p, txnAt(h14.Add(time.Duration(i)*time.Minute), 100_000)); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if p.CompletedHoursCount != 0 {
		t.Fatalf("no hour completed yet, got %d", p.CompletedHoursCount)
	}

	// First transaction of hour 15 closes hour 14.
	h15 := time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC)
	if err := s.Update(ctx, p, txnAt(h15, 100_000)); err != nil {
		t.Fatalf("update: %v", err)
	}

	if p.CompletedHoursCount != 1 {
		t.Errorf("completedHoursCount = %d, want exactly 1", p.CompletedHoursCount)
	}
	if p.LastHourBucket != "2025011515" {
		t.Errorf("lastHourBucket = %q, want 2025011515", p.LastHourBucket)
	}
	// Completed hour had 3 txns; rollover alpha for per-txn alpha 0.1 is 0.1.
	if math.Abs(p.EwmaHourlyTps-0.1*3) > 1e-9 {
		t.Errorf("ewmaHourlyTps = %v, want 0.3", p.EwmaHourlyTps)
	}
	// The completed hour's seasonal slot (hour 14) got the sample.
	if p.HourOfDayTps[14].Count != 1 {
		t.Errorf("hour-of-day slot 14 count = %d, want 1", p.HourOfDayTps[14].Count)
	}
	if p.HourOfDayTps[15].Count != 0 {
		t.Errorf("hour-of-day slot 15 must be untouched")
	}
}

func TestLateTransactionNeverRewindsBuckets(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	p := models.NewClientProfile("CLIENT-001")

	h15 := time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC)
	if err := s.Update(ctx, p, txnAt(h15, 100_000)); err != nil {
		t.Fatalf("update: %v", err)
	}
	before := p.LastHourBucket

	// A straggler from the previous hour.
	h14 := time.Date(2025, 1, 15, 14, 59, 0, 0, time.UTC)
	if err := s.Update(ctx, p, txnAt(h14, 100_000)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.LastHourBucket != before {
		t.Errorf("lastHourBucket regressed: %q -> %q", before, p.LastHourBucket)
	}
	if p.CompletedHoursCount != 0 {
		t.Errorf("late txn must not complete an hour")
	}
}

func TestDayRolloverFeedsNewBeneBaseline(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	p := models.NewClientProfile("CLIENT-001")

	day1 := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	// Two new beneficiaries on day 1.
	for i, acct := range []string{"1111", "2222"} {
		txn := txnAt(day1.Add(time.Duration(i)*time.Minute), 100_000)
		txn.BeneficiaryIfsc = "HDFC0001234"
		txn.BeneficiaryAccount = acct
		if err := s.Update(ctx, p, txn); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if p.DistinctBeneficiaryCount != 2 {
		t.Fatalf("distinctBeneficiaryCount = %d, want 2", p.DistinctBeneficiaryCount)
	}

	day2 := time.Date(2025, 1, 16, 10, 0, 0, 0, time.UTC)
	if err := s.Update(ctx, p, txnAt(day2, 100_000)); err != nil {
		t.Fatalf("update: %v", err)
	}

	if p.CompletedDaysCount != 1 || p.CompletedDaysForBeneCount != 1 {
		t.Errorf("completed days = %d/%d, want 1/1",
			p.CompletedDaysCount, p.CompletedDaysForBeneCount)
	}
	// Previous day saw 2 new beneficiaries; rollover alpha 0.1.
	if math.Abs(p.EwmaDailyNewBeneficiaries-0.2) > 1e-9 {
		t.Errorf("ewmaDailyNewBeneficiaries = %v, want 0.2", p.EwmaDailyNewBeneficiaries)
	}
}

func TestRepeatBeneficiaryDoesNotBumpDistinctCount(t *testing.T) {
	s, m := newTestService()
	ctx := context.Background()
	p := models.NewClientProfile("CLIENT-001")

	ts := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		txn := txnAt(ts.Add(time.Duration(i)*time.Minute), 100_000)
		txn.BeneficiaryIfsc = "HDFC0009999"
		txn.BeneficiaryAccount = "9876543210"
		if err := s.Update(ctx, p, txn); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	if p.DistinctBeneficiaryCount != 1 {
		t.Errorf("distinctBeneficiaryCount = %d, want 1", p.DistinctBeneficiaryCount)
	}
	if p.BeneTxnCounts["HDFC0009999:9876543210"] != 3 {
		t.Errorf("beneTxnCounts = %v", p.BeneTxnCounts)
	}

	n, err := NewCounters(m).NewBene(ctx, "CLIENT-001", ts.UnixMilli())
	if err != nil {
		t.Fatalf("newbene read: %v", err)
	}
	if n != 1 {
		t.Errorf("daily new-bene counter = %d, want 1", n)
	}
}

func TestUpdatePersistsProfile(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	p := models.NewClientProfile("CLIENT-001")
	if err := s.Update(ctx, p, txnAt(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC), 123_456)); err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, err := s.GetOrCreate(ctx, "CLIENT-001")
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	if loaded.TotalTxnCount != 1 {
		t.Errorf("persisted totalTxnCount = %d, want 1", loaded.TotalTxnCount)
	}
	if loaded.LastUpdated == 0 {
		t.Error("lastUpdated not stamped")
	}
}

func TestGetOrCreateReturnsEmptyWithoutWriting(t *testing.T) {
	s, m := newTestService()
	ctx := context.Background()

	p, err := s.GetOrCreate(ctx, "CLIENT-NEW")
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	if p.TotalTxnCount != 0 {
		t.Errorf("fresh profile must be empty")
	}
	rec, _ := m.Get(ctx, store.SetClientProfiles, "CLIENT-NEW")
	if rec != nil {
		t.Error("getOrCreate must not write the store")
	}
}

func TestCountersTrackLiveWindows(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	p := models.NewClientProfile("CLIENT-001")

	ts := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	txn := txnAt(ts, 250_000)
	txn.BeneficiaryIfsc = "ICIC0004321"
	txn.BeneficiaryAccount = "555"
	if err := s.Update(ctx, p, txn); err != nil {
		t.Fatalf("update: %v", err)
	}

	hr, err := s.Counters().Hourly(ctx, "CLIENT-001", ts.UnixMilli())
	if err != nil {
		t.Fatalf("hourly: %v", err)
	}
	if hr.Count != 1 || hr.TotalAmount != 250_000 {
		t.Errorf("hourly counter = %+v", hr)
	}
	day, _ := s.Counters().Daily(ctx, "CLIENT-001", ts.UnixMilli())
	if day.Count != 1 || day.TotalAmount != 250_000 {
		t.Errorf("daily counter = %+v", day)
	}
	bh, _ := s.Counters().BeneHourly(ctx, "CLIENT-001", "ICIC0004321:555", ts.UnixMilli())
	if bh.Count != 1 || bh.TotalAmount != 250_000 {
		t.Errorf("bene hourly counter = %+v", bh)
	}
	bd, _ := s.Counters().BeneDailyAmount(ctx, "CLIENT-001", "ICIC0004321:555", ts.UnixMilli())
	if bd != 250_000 {
		t.Errorf("bene daily amount = %d", bd)
	}
}

func TestStdDevGuards(t *testing.T) {
	if StdDev(100, 1) != 0 {
		t.Error("stddev below two samples must be 0")
	}
	if got := StdDev(50, 3); math.Abs(got-5) > 1e-12 {
		t.Errorf("stddev = %v, want 5", got)
	}
}
