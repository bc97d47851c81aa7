package graph

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Mule-Network Beneficiary Graph
//
// Bipartite undirected graph over client nodes and beneficiary keys; an edge
// means "client has transacted with beneficiary at least once". The mule
// detector asks three questions of it:
//
//	fan-in:  how many OTHER clients send to this beneficiary?
//	sharing: what fraction of a client's beneficiaries are shared at all?
//	density: how interconnected is the client's neighbourhood?
//
// The graph is rebuilt from a full transaction scan on a fixed cadence and
// published as an immutable snapshot behind an atomic pointer. Readers never
// lock and never see a half-built graph.

// Snapshot is one immutable build of the graph.
type Snapshot struct {
	clientBenes map[string]map[string]struct{} // client -> beneficiary keys
	beneClients map[string]map[string]struct{} // beneficiary key -> clients
	builtAt     time.Time
	txnCount    int
}

// FanInCount returns how many distinct clients send to the beneficiary.
func (s *Snapshot) FanInCount(beneKey string) int {
	return len(s.beneClients[beneKey])
}

// OtherSenders returns the clients sending to the beneficiary, excluding one.
func (s *Snapshot) OtherSenders(beneKey, exceptClient string) []string {
	senders := s.beneClients[beneKey]
	out := make([]string, 0, len(senders))
	for c := range senders {
		if c != exceptClient {
			out = append(out, c)
		}
	}
	return out
}

// TotalBeneficiaryCount returns how many beneficiaries the client pays.
func (s *Snapshot) TotalBeneficiaryCount(clientID string) int {
	return len(s.clientBenes[clientID])
}

// SharedBeneficiaryCount returns how many of the client's beneficiaries also
// receive from at least one other client.
func (s *Snapshot) SharedBeneficiaryCount(clientID string) int {
	shared := 0
	for bene := range s.clientBenes[clientID] {
		if len(s.beneClients[bene]) > 1 {
			shared++
		}
	}
	return shared
}

// NetworkDensity measures how interconnected the client's neighbourhood is:
// actual shared edges over the maximum possible, where neighbours are other
// clients sharing at least one beneficiary. Below two neighbours there is no
// network to measure and the density is 0. Result clipped to [0, 1].
func (s *Snapshot) NetworkDensity(clientID string) float64 {
	benes := s.clientBenes[clientID]
	if len(benes) == 0 {
		return 0
	}

	neighbours := make(map[string]struct{})
	sharedEdges := 0
	for bene := range benes {
		senders := s.beneClients[bene]
		for c := range senders {
			if c != clientID {
				neighbours[c] = struct{}{}
			}
		}
		if len(senders) > 1 {
			sharedEdges += len(senders) - 1
		}
	}
	if len(neighbours) < 2 {
		return 0
	}

	maxPossible := len(neighbours) * len(benes)
	d := float64(sharedEdges) / float64(maxPossible)
	if d > 1 {
		d = 1
	}
	return d
}

// Graph owns the snapshot pointer and the rebuild loop.
type Graph struct {
	store    store.Store
	interval time.Duration
	snapshot atomic.Pointer[Snapshot]
	building atomic.Bool
}

// New builds a graph manager over the transaction store.
func New(s store.Store, refresh time.Duration) *Graph {
	return &Graph{store: s, interval: refresh}
}

// Ready reports whether at least one build has been published.
func (g *Graph) Ready() bool {
	return g.snapshot.Load() != nil
}

// Current returns the latest snapshot, or nil before the first build.
func (g *Graph) Current() *Snapshot {
	return g.snapshot.Load()
}

// Rebuild scans the transactions set and publishes a new snapshot. Only one
// rebuild runs at a time; an overlapping call is skipped.
func (g *Graph) Rebuild(ctx context.Context) error {
	if !g.building.CompareAndSwap(false, true) {
		return nil
	}
	defer g.building.Store(false)

	start := time.Now()
	snap := &Snapshot{
		clientBenes: make(map[string]map[string]struct{}),
		beneClients: make(map[string]map[string]struct{}),
		builtAt:     start,
	}

	err := g.store.ScanAll(ctx, store.SetTransactions, func(key string, rec []byte) error {
		var txn models.Transaction
		if err := json.Unmarshal(rec, &txn); err != nil {
			return nil // corrupt record, not this component's problem
		}
		bene := txn.BeneficiaryKey()
		if bene == "" || txn.ClientID == "" {
			return nil
		}
		snap.txnCount++
		if snap.clientBenes[txn.ClientID] == nil {
			snap.clientBenes[txn.ClientID] = make(map[string]struct{})
		}
		snap.clientBenes[txn.ClientID][bene] = struct{}{}
		if snap.beneClients[bene] == nil {
			snap.beneClients[bene] = make(map[string]struct{})
		}
		snap.beneClients[bene][txn.ClientID] = struct{}{}
		return nil
	})
	if err != nil {
		return err
	}

	g.snapshot.Store(snap)
	log.Debug().Str("component", "graph").
		Int("clients", len(snap.clientBenes)).
		Int("beneficiaries", len(snap.beneClients)).
		Dur("took", time.Since(start)).
		Msg("beneficiary graph rebuilt")
	return nil
}

// Run rebuilds immediately and then on the configured cadence.
func (g *Graph) Run(ctx context.Context) {
	if err := g.Rebuild(ctx); err != nil {
		log.Error().Str("component", "graph").Err(err).Msg("initial graph build failed")
	}
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "graph").Msg("stopping graph rebuilder")
			return
		case <-ticker.C:
			if err := g.Rebuild(ctx); err != nil {
				log.Error().Str("component", "graph").Err(err).Msg("graph rebuild failed")
			}
		}
	}
}
