package metrics

import "time"

// Sink receives engine telemetry. The evaluation path calls it on every
// transaction, so implementations must be cheap and must never block.
type Sink interface {
	// EvaluationDone records one completed evaluation with its verdict.
	EvaluationDone(action string, duration time.Duration)
	// DetectorTriggered records one detector firing.
	DetectorTriggered(ruleType string)
	// ReviewQueueDepth records the current number of PENDING review items.
	ReviewQueueDepth(depth int)
	// EvaluationRejected records a transaction refused before evaluation
	// (validation failure or timeout).
	EvaluationRejected(reason string)
}

// Noop discards all telemetry. The default when Prometheus is not wired.
type Noop struct{}

func (Noop) EvaluationDone(string, time.Duration) {}
func (Noop) DetectorTriggered(string)             {}
func (Noop) ReviewQueueDepth(int)                 {}
func (Noop) EvaluationRejected(string)            {}
