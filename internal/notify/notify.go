package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Notification Dispatch
//
// The engine never blocks on an outbound notification: BLOCK verdicts and
// silence alerts are handed to a Dispatcher backed by a bounded channel and
// one delivery worker. When the buffer is full the notification is dropped
// and logged — losing a webhook beats stalling the evaluation path.

// Notifier receives engine events. Implementations must not block for long;
// slow transports belong behind the Dispatcher.
type Notifier interface {
	// NotifyBlocked fires when a transaction is blocked.
	NotifyBlocked(txn *models.Transaction, result *models.EvaluationResult)
	// NotifySilent fires when an active client goes quiet for longer than
	// its expected transaction gap allows.
	NotifySilent(clientID string, silenceMinutes, expectedGapMinutes, hourlyTps float64)
}

type eventKind int

const (
	eventBlocked eventKind = iota
	eventSilent
)

type event struct {
	kind eventKind

	txn    *models.Transaction
	result *models.EvaluationResult

	clientID       string
	silenceMinutes float64
	expectedGap    float64
	hourlyTps      float64
}

// Dispatcher fans events out to its sinks from a single worker goroutine.
// It satisfies Notifier itself, so callers hold one handle regardless of how
// many transports are registered.
type Dispatcher struct {
	events chan event
	sinks  []Notifier
}

// NewDispatcher builds a dispatcher with the given buffer capacity.
func NewDispatcher(bufferSize int, sinks ...Notifier) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Dispatcher{
		events: make(chan event, bufferSize),
		sinks:  sinks,
	}
}

// AddSink registers another transport. Not safe to call once Run has started.
func (d *Dispatcher) AddSink(s Notifier) {
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) NotifyBlocked(txn *models.Transaction, result *models.EvaluationResult) {
	d.offer(event{kind: eventBlocked, txn: txn, result: result})
}

func (d *Dispatcher) NotifySilent(clientID string, silenceMinutes, expectedGapMinutes, hourlyTps float64) {
	d.offer(event{
		kind:           eventSilent,
		clientID:       clientID,
		silenceMinutes: silenceMinutes,
		expectedGap:    expectedGapMinutes,
		hourlyTps:      hourlyTps,
	})
}

func (d *Dispatcher) offer(ev event) {
	select {
	case d.events <- ev:
	default:
		log.Warn().Str("component", "notify").Int("buffer", cap(d.events)).
			Msg("notification buffer full, dropping event")
	}
}

// Run delivers queued events until ctx is cancelled. One sink panicking or
// hanging affects only this worker, never the evaluation path.
func (d *Dispatcher) Run(ctx context.Context) {
	logger := log.With().Str("component", "notify").Logger()
	logger.Info().Int("buffer", cap(d.events)).Int("sinks", len(d.sinks)).
		Msg("notification dispatcher started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("notification dispatcher stopped")
			return
		case ev := <-d.events:
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev event) {
	for _, s := range d.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("component", "notify").Interface("panic", r).
						Msg("notification sink panicked")
				}
			}()
			switch ev.kind {
			case eventBlocked:
				s.NotifyBlocked(ev.txn, ev.result)
			case eventSilent:
				s.NotifySilent(ev.clientID, ev.silenceMinutes, ev.expectedGap, ev.hourlyTps)
			}
		}()
	}
}
