package forest

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Manager owns model persistence and the evaluation-time sample stream.
// Models are cached in an LRU so the hot path never deserializes a tree
// ensemble twice for an active client; the cache is invalidated on retrain.
//
// Samples are kept in a per-client in-memory ring fed by the orchestrator on
// every evaluation. The periodic trainer consumes rings that have gathered
// enough fresh vectors. Rings do not survive a restart; the stream refills
// them within minutes on an active book.
type Manager struct {
	store store.Store
	cache *lru.Cache[string, *models.IsolationForestModel]

	mu      sync.Mutex
	rings   map[string]*sampleRing
	window  int
	minNew  int
	missing map[string]bool // clients known to have no stored model yet
}

type sampleRing struct {
	buf   [][]float64
	next  int
	full  bool
	fresh int // samples added since the last training
}

// NewManager builds a manager with the given model cache size and per-client
// sample window.
func NewManager(s store.Store, cacheSize, sampleWindow, minTrainSamples int) *Manager {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	if sampleWindow <= 0 {
		sampleWindow = 512
	}
	if minTrainSamples < MinTrainSamples {
		minTrainSamples = MinTrainSamples
	}
	cache, _ := lru.New[string, *models.IsolationForestModel](cacheSize)
	return &Manager{
		store:   s,
		cache:   cache,
		rings:   make(map[string]*sampleRing),
		window:  sampleWindow,
		minNew:  minTrainSamples,
		missing: make(map[string]bool),
	}
}

// Model returns the client's trained model, or nil when none exists. A nil
// model is not an error; the detector guards on it.
func (m *Manager) Model(ctx context.Context, clientID string) (*models.IsolationForestModel, error) {
	if model, ok := m.cache.Get(clientID); ok {
		return model, nil
	}
	m.mu.Lock()
	known := m.missing[clientID]
	m.mu.Unlock()
	if known {
		return nil, nil
	}

	var model models.IsolationForestModel
	found, err := store.GetJSON(ctx, m.store, store.SetIfModels, clientID, &model)
	if err != nil {
		return nil, err
	}
	if !found {
		m.mu.Lock()
		m.missing[clientID] = true
		m.mu.Unlock()
		return nil, nil
	}
	m.cache.Add(clientID, &model)
	return &model, nil
}

// AddSample feeds one evaluation-time feature vector into the client's ring.
func (m *Manager) AddSample(clientID string, vec []float64) {
	if len(vec) != models.FeatureCount {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rings[clientID]
	if r == nil {
		r = &sampleRing{buf: make([][]float64, m.window)}
		m.rings[clientID] = r
	}
	r.buf[r.next] = vec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.fresh++
}

// Samples returns a copy of the client's retained feature vectors.
func (m *Manager) Samples(clientID string) [][]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rings[clientID]
	if r == nil {
		return nil
	}
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([][]float64, 0, n)
	for _, v := range r.buf {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// trainable lists clients whose rings have gathered enough fresh samples.
func (m *Manager) trainable() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, r := range m.rings {
		if r.fresh >= m.minNew {
			out = append(out, id)
		}
	}
	return out
}

// TrainClient trains on the client's retained samples, persists the model
// and refreshes the cache.
func (m *Manager) TrainClient(ctx context.Context, clientID string) (*models.IsolationForestModel, error) {
	samples := m.Samples(clientID)
	model, err := Train(clientID, samples, DefaultNumTrees, DefaultSampleSize)
	if err != nil {
		return nil, err
	}
	if err := store.PutJSON(ctx, m.store, store.SetIfModels, clientID, model); err != nil {
		return nil, err
	}
	m.cache.Add(clientID, model)

	m.mu.Lock()
	delete(m.missing, clientID)
	if r := m.rings[clientID]; r != nil {
		r.fresh = 0
	}
	m.mu.Unlock()

	log.Info().Str("component", "forest").Str("clientId", clientID).
		Int("samples", model.SampleCount).Int("trees", model.NumTrees).
		Msg("isolation forest model trained")
	return model, nil
}
