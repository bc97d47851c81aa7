package silence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

type capture struct {
	mu     sync.Mutex
	silent []string
}

func (c *capture) NotifyBlocked(*models.Transaction, *models.EvaluationResult) {}

func (c *capture) NotifySilent(clientID string, _, _, _ float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.silent = append(c.silent, clientID)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.silent)
}

func testMonitor(s store.Store, sink *capture, nowMs int64) *Monitor {
	m := NewMonitor(s, sink, Config{
		CheckInterval:     time.Minute,
		SilenceMultiplier: 3,
		MinExpectedTps:    1,
		MinCompletedHours: 48,
	})
	m.SetClock(func() time.Time { return time.UnixMilli(nowMs) })
	return m
}

func saveProfile(t *testing.T, s store.Store, clientID string, tps float64, hours, lastUpdated int64) {
	t.Helper()
	p := models.NewClientProfile(clientID)
	p.EwmaHourlyTps = tps
	p.CompletedHoursCount = hours
	p.LastUpdated = lastUpdated
	if err := store.PutJSON(context.Background(), s, store.SetClientProfiles, clientID, p); err != nil {
		t.Fatalf("save profile: %v", err)
	}
}

func TestSilenceAlertsOncePerEntry(t *testing.T) {
	s := store.NewMemory()
	sink := &capture{}
	now := int64(100 * 60_000) // minute 100

	// 5 tx/h -> expected gap 12 min, threshold 36 min. Quiet for 60.
	saveProfile(t, s, "CLIENT-001", 5, 72, now-60*60_000)
	m := testMonitor(s, sink, now)

	n, err := m.CheckOnce(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if n != 1 || !m.Alerted("CLIENT-001") {
		t.Fatalf("alerted set = %d, want CLIENT-001 in", n)
	}
	if sink.count() != 1 {
		t.Fatalf("notifications = %d, want 1", sink.count())
	}

	// Still silent on the next sweep: no repeat notification.
	if _, err := m.CheckOnce(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if sink.count() != 1 {
		t.Errorf("notifications = %d after second sweep, want still 1", sink.count())
	}
}

func TestSilenceResolvesOnActivity(t *testing.T) {
	s := store.NewMemory()
	sink := &capture{}
	now := int64(100 * 60_000)

	saveProfile(t, s, "CLIENT-001", 5, 72, now-60*60_000)
	m := testMonitor(s, sink, now)
	if _, err := m.CheckOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The client transacts again: lastUpdated moves to now.
	saveProfile(t, s, "CLIENT-001", 5, 72, now)
	if _, err := m.CheckOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Alerted("CLIENT-001") {
		t.Error("client must leave the alerted set after resuming activity")
	}

	// Goes quiet again: a fresh alert fires.
	m.SetClock(func() time.Time { return time.UnixMilli(now + 60*60_000) })
	if _, err := m.CheckOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 2 {
		t.Errorf("notifications = %d, want 2 (one per silence episode)", sink.count())
	}
}

func TestSilenceResolvesWhenClientDisqualifies(t *testing.T) {
	s := store.NewMemory()
	sink := &capture{}
	now := int64(100 * 60_000)

	saveProfile(t, s, "CLIENT-001", 5, 72, now-60*60_000)
	m := testMonitor(s, sink, now)
	if _, err := m.CheckOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !m.Alerted("CLIENT-001") {
		t.Fatal("client must be alerted before disqualifying")
	}

	// The rate estimate decays below the monitoring floor: the alert
	// resolves even though the client never transacted again.
	saveProfile(t, s, "CLIENT-001", 0.2, 72, now-60*60_000)
	n, err := m.CheckOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || m.Alerted("CLIENT-001") {
		t.Error("disqualified client must leave the alerted set")
	}

	// Same on outright disappearance.
	saveProfile(t, s, "CLIENT-002", 5, 72, now-60*60_000)
	if _, err := m.CheckOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(context.Background(), store.SetClientProfiles, "CLIENT-002"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CheckOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Alerted("CLIENT-002") {
		t.Error("deleted client must leave the alerted set")
	}
}

func TestSilenceSkipsUnqualifiedProfiles(t *testing.T) {
	s := store.NewMemory()
	sink := &capture{}
	now := int64(1000 * 60_000)
	quiet := now - 24*60*60_000 // a day of silence

	saveProfile(t, s, "THIN-HISTORY", 5, 10, quiet) // < 48 completed hours
	saveProfile(t, s, "LOW-RATE", 0.2, 72, quiet)   // tps below the floor
	saveProfile(t, s, "NEVER-ACTIVE", 5, 72, 0)     // no lastUpdated

	m := testMonitor(s, sink, now)
	n, err := m.CheckOnce(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if n != 0 || sink.count() != 0 {
		t.Errorf("alerted %d / notified %d on unqualified profiles, want 0/0", n, sink.count())
	}
}

func TestSilenceWithinExpectedGapStaysQuiet(t *testing.T) {
	s := store.NewMemory()
	sink := &capture{}
	now := int64(100 * 60_000)

	// Expected gap 12 min, threshold 36; quiet for 30.
	saveProfile(t, s, "CLIENT-001", 5, 72, now-30*60_000)
	m := testMonitor(s, sink, now)

	n, err := m.CheckOnce(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if n != 0 || sink.count() != 0 {
		t.Errorf("alerted inside the allowed gap")
	}
}
