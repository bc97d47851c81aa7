package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus publishes engine telemetry to the default registry; the API
// layer serves it on /metrics.
type Prometheus struct {
	evaluations *prometheus.CounterVec
	triggers    *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	duration    prometheus.Histogram
	queueDepth  prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	return &Prometheus{
		evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txrisk",
			Name:      "evaluations_total",
			Help:      "Completed evaluations by verdict.",
		}, []string{"action"}),
		triggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txrisk",
			Name:      "detector_triggers_total",
			Help:      "Detector firings by rule type.",
		}, []string{"rule_type"}),
		rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txrisk",
			Name:      "evaluations_rejected_total",
			Help:      "Transactions refused before a verdict, by reason.",
		}, []string{"reason"}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txrisk",
			Name:      "evaluation_duration_seconds",
			Help:      "End-to-end evaluation latency.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "txrisk",
			Name:      "review_queue_pending",
			Help:      "Review items awaiting analyst feedback.",
		}),
	}
}

func (p *Prometheus) EvaluationDone(action string, duration time.Duration) {
	p.evaluations.WithLabelValues(action).Inc()
	p.duration.Observe(duration.Seconds())
}

func (p *Prometheus) DetectorTriggered(ruleType string) {
	p.triggers.WithLabelValues(ruleType).Inc()
}

func (p *Prometheus) ReviewQueueDepth(depth int) {
	p.queueDepth.Set(float64(depth))
}

func (p *Prometheus) EvaluationRejected(reason string) {
	p.rejections.WithLabelValues(reason).Inc()
}
