package store

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryPutGetDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Put(ctx, SetClientProfiles, "CLIENT-001", []byte(`{"clientId":"CLIENT-001"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec, err := m.Get(ctx, SetClientProfiles, "CLIENT-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got absent")
	}

	if rec, _ := m.Get(ctx, SetClientProfiles, "CLIENT-404"); rec != nil {
		t.Error("absent key must return nil record, nil error")
	}

	if err := m.Delete(ctx, SetClientProfiles, "CLIENT-001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec, _ := m.Get(ctx, SetClientProfiles, "CLIENT-001"); rec != nil {
		t.Error("deleted key must read as absent")
	}
}

func TestMemoryAddAndGetCreatesAndAccumulates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	v, err := m.AddAndGet(ctx, SetClientHourlyCounters, "CLIENT-001:2025011514", FieldCount, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if v != 1 {
		t.Errorf("first increment on absent record should return 1, got %d", v)
	}

	if _, err := m.AddAndGet(ctx, SetClientHourlyCounters, "CLIENT-001:2025011514", FieldTotalAmount, 4_000_000); err != nil {
		t.Fatalf("add amount: %v", err)
	}
	v, _ = m.AddAndGet(ctx, SetClientHourlyCounters, "CLIENT-001:2025011514", FieldCount, 1)
	if v != 2 {
		t.Errorf("expected count 2 after two increments, got %d", v)
	}

	// Both fields must coexist in one record.
	var rec map[string]int64
	found, err := GetJSON(ctx, m, SetClientHourlyCounters, "CLIENT-001:2025011514", &rec)
	if err != nil || !found {
		t.Fatalf("counter record should exist: found=%v err=%v", found, err)
	}
	if rec[FieldCount] != 2 || rec[FieldTotalAmount] != 4_000_000 {
		t.Errorf("unexpected counter record: %+v", rec)
	}
}

func TestMemoryAddAndGetConcurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const workers = 16
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := m.AddAndGet(ctx, SetClientDailyCounters, "CLIENT-9:20250115", FieldCount, 1); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	v, err := m.AddAndGet(ctx, SetClientDailyCounters, "CLIENT-9:20250115", FieldCount, 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != workers*perWorker {
		t.Errorf("lost increments: expected %d, got %d", workers*perWorker, v)
	}
}

func TestMemoryScanAllStopsOnVisitError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_ = m.Put(ctx, SetReviewQueue, k, []byte(`{}`))
	}

	visited := 0
	sentinel := &StoreError{Op: "visit", Set: SetReviewQueue, Err: context.Canceled}
	err := m.ScanAll(ctx, SetReviewQueue, func(key string, rec []byte) error {
		visited++
		if visited == 2 {
			return sentinel
		}
		return nil
	})
	if err != sentinel {
		t.Errorf("scan must surface the visit error, got %v", err)
	}
	if visited != 2 {
		t.Errorf("scan must stop after the failing visit, visited %d", visited)
	}
}

func TestGetJSONCorruptRecordTreatedAsAbsent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Put(ctx, SetClientProfiles, "CLIENT-BAD", []byte(`{"clientId": `))

	var out map[string]any
	found, err := GetJSON(ctx, m, SetClientProfiles, "CLIENT-BAD", &out)
	if err != nil {
		t.Fatalf("corrupt optional read must not error: %v", err)
	}
	if found {
		t.Error("corrupt record must be reported as absent")
	}
}
