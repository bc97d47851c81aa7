package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

func seedTxn(t *testing.T, m *store.Memory, id, client, ifsc, account string) {
	t.Helper()
	txn := models.Transaction{
		TxnID: id, ClientID: client, TxnType: "NEFT",
		AmountPaise: 100_000, Timestamp: time.Now().UnixMilli(),
		BeneficiaryIfsc: ifsc, BeneficiaryAccount: account,
	}
	if err := store.PutJSON(context.Background(), m, store.SetTransactions, id, &txn); err != nil {
		t.Fatalf("seed txn: %v", err)
	}
}

func TestRebuildAndFanIn(t *testing.T) {
	m := store.NewMemory()
	g := New(m, time.Minute)
	ctx := context.Background()

	if g.Ready() {
		t.Fatal("graph must not be ready before first build")
	}

	// Three clients all pay the same beneficiary; one pays a private one too.
	for i, client := range []string{"CLIENT-001", "CLIENT-002", "CLIENT-003"} {
		seedTxn(t, m, fmt.Sprintf("TXN-%d", i), client, "HDFC0009999", "9876543210")
	}
	seedTxn(t, m, "TXN-PRIV", "CLIENT-001", "ICIC0001111", "555")

	if err := g.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !g.Ready() {
		t.Fatal("graph must be ready after first build")
	}

	snap := g.Current()
	if got := snap.FanInCount("HDFC0009999:9876543210"); got != 3 {
		t.Errorf("fanIn = %d, want 3", got)
	}
	others := snap.OtherSenders("HDFC0009999:9876543210", "CLIENT-001")
	if len(others) != 2 {
		t.Errorf("otherSenders = %v, want 2 clients", others)
	}
	if got := snap.TotalBeneficiaryCount("CLIENT-001"); got != 2 {
		t.Errorf("totalBeneficiaryCount = %d, want 2", got)
	}
	if got := snap.SharedBeneficiaryCount("CLIENT-001"); got != 1 {
		t.Errorf("sharedBeneficiaryCount = %d, want 1 (private bene excluded)", got)
	}
}

func TestFanInAgreesWithOtherSenders(t *testing.T) {
	m := store.NewMemory()
	g := New(m, time.Minute)
	for i := 0; i < 4; i++ {
		seedTxn(t, m, fmt.Sprintf("TXN-%d", i), fmt.Sprintf("CLIENT-%03d", i), "SBIN0000001", "42")
	}
	if err := g.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	snap := g.Current()
	fanIn := snap.FanInCount("SBIN0000001:42")
	others := snap.OtherSenders("SBIN0000001:42", "CLIENT-000")
	if fanIn != len(others)+1 {
		t.Errorf("fanIn %d disagrees with otherSenders %d + self", fanIn, len(others))
	}
}

func TestDensityGuards(t *testing.T) {
	m := store.NewMemory()
	g := New(m, time.Minute)
	ctx := context.Background()

	// A single shared beneficiary: CLIENT-001 has exactly one neighbour,
	// below the two-neighbour floor, so density must be 0.
	seedTxn(t, m, "TXN-1", "CLIENT-001", "HDFC0009999", "1")
	seedTxn(t, m, "TXN-2", "CLIENT-002", "HDFC0009999", "1")
	if err := g.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if d := g.Current().NetworkDensity("CLIENT-001"); d != 0 {
		t.Errorf("density with one neighbour = %v, want 0", d)
	}

	// Dense mule cluster: three clients all paying the same two mule accounts.
	for i, client := range []string{"CLIENT-001", "CLIENT-002", "CLIENT-003"} {
		seedTxn(t, m, fmt.Sprintf("TXN-A%d", i), client, "MULE0000001", "1")
		seedTxn(t, m, fmt.Sprintf("TXN-B%d", i), client, "MULE0000002", "2")
	}
	if err := g.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	d := g.Current().NetworkDensity("CLIENT-002")
	if d <= 0 || d > 1 {
		t.Errorf("mule cluster density = %v, want in (0, 1]", d)
	}
}

func TestTransactionsWithoutBeneficiaryAreIgnored(t *testing.T) {
	m := store.NewMemory()
	g := New(m, time.Minute)
	txn := models.Transaction{TxnID: "TXN-X", ClientID: "CLIENT-001", TxnType: "UPI", AmountPaise: 100}
	_ = store.PutJSON(context.Background(), m, store.SetTransactions, txn.TxnID, &txn)

	if err := g.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if got := g.Current().TotalBeneficiaryCount("CLIENT-001"); got != 0 {
		t.Errorf("beneficiary-less txn added an edge: %d", got)
	}
}

func TestSnapshotIsImmutableAcrossRebuilds(t *testing.T) {
	m := store.NewMemory()
	g := New(m, time.Minute)
	ctx := context.Background()

	seedTxn(t, m, "TXN-1", "CLIENT-001", "HDFC0009999", "1")
	if err := g.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	old := g.Current()

	seedTxn(t, m, "TXN-2", "CLIENT-002", "HDFC0009999", "1")
	if err := g.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// The previously captured snapshot must not have grown.
	if got := old.FanInCount("HDFC0009999:1"); got != 1 {
		t.Errorf("old snapshot mutated: fanIn = %d, want 1", got)
	}
	if got := g.Current().FanInCount("HDFC0009999:1"); got != 2 {
		t.Errorf("new snapshot fanIn = %d, want 2", got)
	}
}
