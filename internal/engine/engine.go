package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/internal/detect"
	"github.com/rawblock/txrisk-engine/internal/forest"
	"github.com/rawblock/txrisk-engine/internal/graph"
	"github.com/rawblock/txrisk-engine/internal/metrics"
	"github.com/rawblock/txrisk-engine/internal/notify"
	"github.com/rawblock/txrisk-engine/internal/profile"
	"github.com/rawblock/txrisk-engine/internal/review"
	"github.com/rawblock/txrisk-engine/internal/rules"
	"github.com/rawblock/txrisk-engine/internal/scoring"
	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Engine is the evaluation orchestrator. One Evaluate call runs the whole
// pipeline for a transaction:
//
//	validate -> load profile -> (grace window) -> build context ->
//	detectors -> composite score -> absorb into profile -> persist txn +
//	result -> enqueue ALERT/BLOCK -> notify BLOCK -> telemetry
//
// Detectors always see the profile as it was BEFORE this transaction; the
// profile absorbs the transaction only after the verdict is decided.
//
// Evaluations run concurrently up to the configured worker limit. A timeout
// anywhere in the pipeline aborts the evaluation with ErrEvaluationTimeout
// and persists, enqueues and notifies nothing.
type Engine struct {
	store     store.Store
	profiles  *profile.Service
	rules     *rules.Registry
	detectors map[string]detect.Detector
	graph     *graph.Graph
	forests   *forest.Manager
	queue     *review.Queue
	notifier  notify.Notifier
	metrics   metrics.Sink

	alertThreshold      float64
	blockThreshold      float64
	minProfileTxns      int64
	evaluationTimeout   time.Duration
	autoAcceptTimeoutMs int64
	acceptedTypes       map[string]bool

	workers chan struct{}
	now     func() time.Time
}

// Options carries the engine's tunables.
type Options struct {
	AlertThreshold      float64
	BlockThreshold      float64
	MinProfileTxns      int64
	EvaluationTimeout   time.Duration
	AutoAcceptTimeoutMs int64
	AcceptedTxnTypes    []string
	Workers             int
}

func New(s store.Store, profiles *profile.Service, registry *rules.Registry,
	g *graph.Graph, forests *forest.Manager, queue *review.Queue,
	notifier notify.Notifier, sink metrics.Sink, opts Options) *Engine {

	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	accepted := make(map[string]bool, len(opts.AcceptedTxnTypes))
	for _, t := range opts.AcceptedTxnTypes {
		accepted[t] = true
	}
	return &Engine{
		store:               s,
		profiles:            profiles,
		rules:               registry,
		detectors:           detect.NewRegistry(),
		graph:               g,
		forests:             forests,
		queue:               queue,
		notifier:            notifier,
		metrics:             sink,
		alertThreshold:      opts.AlertThreshold,
		blockThreshold:      opts.BlockThreshold,
		minProfileTxns:      opts.MinProfileTxns,
		evaluationTimeout:   opts.EvaluationTimeout,
		autoAcceptTimeoutMs: opts.AutoAcceptTimeoutMs,
		acceptedTypes:       accepted,
		workers:             make(chan struct{}, opts.Workers),
		now:                 time.Now,
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Evaluate runs the full pipeline and returns the verdict.
func (e *Engine) Evaluate(ctx context.Context, txn *models.Transaction) (*models.EvaluationResult, error) {
	// A transaction submitted without a timestamp is evaluated at the
	// current time.
	if txn != nil && txn.Timestamp == 0 {
		txn.Timestamp = e.now().UnixMilli()
	}
	if err := e.validate(txn); err != nil {
		e.metrics.EvaluationRejected("validation")
		return nil, err
	}

	// Worker slot. Queueing for a slot counts against the deadline.
	select {
	case e.workers <- struct{}{}:
		defer func() { <-e.workers }()
	case <-ctx.Done():
		e.metrics.EvaluationRejected("timeout")
		return nil, ErrEvaluationTimeout
	}

	if e.evaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.evaluationTimeout)
		defer cancel()
	}

	started := e.now()
	res, err := e.evaluate(ctx, txn, started)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEvaluationTimeout) {
			e.metrics.EvaluationRejected("timeout")
			return nil, ErrEvaluationTimeout
		}
		return nil, err
	}
	e.metrics.EvaluationDone(res.Action, e.now().Sub(started))
	return res, nil
}

func (e *Engine) evaluate(ctx context.Context, txn *models.Transaction, started time.Time) (*models.EvaluationResult, error) {
	logger := log.With().Str("component", "engine").
		Str("txnId", txn.TxnID).Str("clientId", txn.ClientID).Logger()

	p, err := e.profiles.GetOrCreate(ctx, txn.ClientID)
	if err != nil {
		return nil, err
	}

	// Grace window: too little history to judge against. Learn, pass.
	if p.TotalTxnCount < e.minProfileTxns {
		if err := e.profiles.Update(ctx, p, txn); err != nil {
			return nil, err
		}
		res := e.buildResult(txn, nil, started)
		if err := e.persist(ctx, txn, res); err != nil {
			return nil, err
		}
		logger.Debug().Int64("totalTxnCount", p.TotalTxnCount).
			Msg("grace window, detectors skipped")
		return res, nil
	}

	ec, err := detect.BuildContext(ctx, e.profiles.Counters(), txn, p,
		e.graphView(), e.modelSource(), started.UnixMilli())
	if err != nil {
		return nil, err
	}

	results := e.runDetectors(txn, p, ec)

	res := e.buildResult(txn, results, started)

	// The verdict is decided; now the transaction becomes history.
	if err := e.profiles.Update(ctx, p, txn); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, txn, res); err != nil {
		return nil, err
	}

	if res.Action != models.ActionPass {
		e.enqueueForReview(ctx, res, logger)
	}
	if res.Action == models.ActionBlock && e.notifier != nil {
		e.notifier.NotifyBlocked(txn, res)
	}
	if e.forests != nil && len(ec.Features) == models.FeatureCount {
		e.forests.AddSample(txn.ClientID, ec.Features)
	}

	logger.Info().Str("action", res.Action).
		Float64("compositeScore", res.CompositeScore).
		Int("triggered", len(res.TriggeredRuleIDs())).
		Float64("durationMs", res.DurationMs).
		Msg("transaction evaluated")
	return res, nil
}

// runDetectors evaluates every active rule that has a detector. A panicking
// detector is reported as a non-triggered result; one broken rule must not
// take the pipeline down.
func (e *Engine) runDetectors(txn *models.Transaction, p *models.ClientProfile, ec *detect.Context) []models.RuleResult {
	active := e.rules.ActiveRules()
	results := make([]models.RuleResult, 0, len(active))
	for i := range active {
		rule := &active[i]
		d, ok := e.detectors[rule.RuleType]
		if !ok {
			log.Warn().Str("component", "engine").Str("ruleId", rule.RuleID).
				Str("ruleType", rule.RuleType).Msg("no detector for rule type")
			continue
		}
		results = append(results, e.safeEvaluate(d, txn, p, rule, ec))
	}
	for _, r := range results {
		if r.Triggered {
			e.metrics.DetectorTriggered(r.RuleType)
		}
	}
	return results
}

func (e *Engine) safeEvaluate(d detect.Detector, txn *models.Transaction,
	p *models.ClientProfile, rule *models.AnomalyRule, ec *detect.Context) (res models.RuleResult) {

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "engine").Str("ruleId", rule.RuleID).
				Interface("panic", r).Msg("detector panicked")
			res = models.RuleResult{
				RuleID:   rule.RuleID,
				RuleName: rule.Name,
				RuleType: rule.RuleType,
				Reason:   fmt.Sprintf("detector panicked: %v", r),
			}
		}
	}()
	return d.Evaluate(txn, p, rule, ec)
}

func (e *Engine) buildResult(txn *models.Transaction, results []models.RuleResult, started time.Time) *models.EvaluationResult {
	if results == nil {
		results = []models.RuleResult{}
	}
	score := scoring.Composite(results)
	return &models.EvaluationResult{
		TxnID:          txn.TxnID,
		ClientID:       txn.ClientID,
		CompositeScore: score,
		Action:         scoring.ActionFor(score, e.alertThreshold, e.blockThreshold),
		RiskLevel:      scoring.RiskLevelFor(score),
		RuleResults:    results,
		EvaluatedAt:    started.UnixMilli(),
		DurationMs:     float64(e.now().Sub(started).Microseconds()) / 1000.0,
	}
}

// persist writes the transaction record and the verdict.
func (e *Engine) persist(ctx context.Context, txn *models.Transaction, res *models.EvaluationResult) error {
	if err := store.PutJSON(ctx, e.store, store.SetTransactions, txn.TxnID, txn); err != nil {
		return err
	}
	return store.PutJSON(ctx, e.store, store.SetRiskResults, res.TxnID, res)
}

// enqueueForReview retries the queue write up to 3 times. Losing a review
// item is warn-worthy, never fatal: the verdict already stands.
func (e *Engine) enqueueForReview(ctx context.Context, res *models.EvaluationResult, logger zerolog.Logger) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err = e.queue.Enqueue(ctx, res, e.autoAcceptTimeoutMs); err == nil {
			return
		}
		if ctx.Err() != nil {
			break
		}
	}
	logger.Warn().Err(err).Msg("review enqueue failed after retries")
}

func (e *Engine) modelSource() detect.ModelSource {
	if e.forests == nil {
		return nil
	}
	return e.forests
}

func (e *Engine) graphView() detect.GraphView {
	if e.graph == nil || !e.graph.Ready() {
		return nil
	}
	return e.graph.Current()
}

// Result returns a persisted verdict, or (nil, nil) when absent.
func (e *Engine) Result(ctx context.Context, txnID string) (*models.EvaluationResult, error) {
	var res models.EvaluationResult
	found, err := store.GetJSON(ctx, e.store, store.SetRiskResults, txnID, &res)
	if err != nil || !found {
		return nil, err
	}
	return &res, nil
}

func (e *Engine) validate(txn *models.Transaction) error {
	switch {
	case txn == nil:
		return &ValidationError{Field: "transaction", Msg: "missing body"}
	case txn.TxnID == "":
		return &ValidationError{Field: "txnId", Msg: "required"}
	case txn.ClientID == "":
		return &ValidationError{Field: "clientId", Msg: "required"}
	case txn.AmountPaise < 0:
		return &ValidationError{Field: "amountPaise", Msg: "must not be negative"}
	case txn.Timestamp < 0:
		return &ValidationError{Field: "timestamp", Msg: "must not be negative"}
	case !e.acceptedTypes[txn.TxnType]:
		return &ValidationError{Field: "txnType", Msg: fmt.Sprintf("unsupported type %q", txn.TxnType)}
	}
	return nil
}
