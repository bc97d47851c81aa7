package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Registry caches every anomaly rule in memory behind an atomic snapshot
// pointer. Evaluations read the snapshot lock-free; a periodic reload and
// every write-through CRUD operation publish a fresh snapshot.
type Registry struct {
	store    store.Store
	interval time.Duration
	snapshot atomic.Pointer[[]models.AnomalyRule]
}

// NewRegistry builds a registry reloading every refresh interval.
func NewRegistry(s store.Store, refresh time.Duration) *Registry {
	r := &Registry{store: s, interval: refresh}
	empty := []models.AnomalyRule{}
	r.snapshot.Store(&empty)
	return r
}

// Reload replaces the snapshot with the current store contents.
func (r *Registry) Reload(ctx context.Context) error {
	var rules []models.AnomalyRule
	err := r.store.ScanAll(ctx, store.SetAnomalyRules, func(key string, rec []byte) error {
		var rule models.AnomalyRule
		if err := json.Unmarshal(rec, &rule); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("skipping corrupt rule record")
			return nil
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return err
	}
	r.snapshot.Store(&rules)
	return nil
}

// ActiveRules returns the enabled rules from the current snapshot. The
// returned slice is private to the caller.
func (r *Registry) ActiveRules() []models.AnomalyRule {
	snap := *r.snapshot.Load()
	active := make([]models.AnomalyRule, 0, len(snap))
	for _, rule := range snap {
		if rule.Enabled {
			active = append(active, rule)
		}
	}
	return active
}

// All returns every rule in the current snapshot, enabled or not.
func (r *Registry) All() []models.AnomalyRule {
	snap := *r.snapshot.Load()
	out := make([]models.AnomalyRule, len(snap))
	copy(out, snap)
	return out
}

// Find returns the snapshot's copy of one rule.
func (r *Registry) Find(ruleID string) (models.AnomalyRule, bool) {
	for _, rule := range *r.snapshot.Load() {
		if rule.RuleID == ruleID {
			return rule, true
		}
	}
	return models.AnomalyRule{}, false
}

// Save validates, persists and republishes a rule.
func (r *Registry) Save(ctx context.Context, rule *models.AnomalyRule) error {
	if rule.RuleID == "" {
		return fmt.Errorf("rule id is required")
	}
	if rule.RiskWeight < models.WeightFloor || rule.RiskWeight > models.WeightCeiling {
		return fmt.Errorf("riskWeight %.3f outside [%.1f, %.1f]",
			rule.RiskWeight, models.WeightFloor, models.WeightCeiling)
	}
	rule.UpdatedAt = time.Now().UnixMilli()
	if err := store.PutJSON(ctx, r.store, store.SetAnomalyRules, rule.RuleID, rule); err != nil {
		return err
	}
	return r.Reload(ctx)
}

// Delete removes a rule and republishes the snapshot.
func (r *Registry) Delete(ctx context.Context, ruleID string) error {
	if err := r.store.Delete(ctx, store.SetAnomalyRules, ruleID); err != nil {
		return err
	}
	return r.Reload(ctx)
}

// Seed installs the default rule set when the store holds no rules at all,
// then loads the snapshot. First-boot convenience; an operator-managed rule
// set is never touched.
func (r *Registry) Seed(ctx context.Context) error {
	if err := r.Reload(ctx); err != nil {
		return err
	}
	if len(r.All()) > 0 {
		return nil
	}
	for _, rule := range DefaultRules() {
		rule := rule
		if err := store.PutJSON(ctx, r.store, store.SetAnomalyRules, rule.RuleID, &rule); err != nil {
			return err
		}
	}
	log.Info().Int("rules", len(DefaultRules())).Msg("seeded default anomaly rules")
	return r.Reload(ctx)
}

// Run reloads the snapshot on a fixed cadence until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "rules").Msg("stopping rule cache reload")
			return
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				log.Error().Str("component", "rules").Err(err).Msg("rule cache reload failed")
			}
		}
	}
}
