package engine

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed transaction before evaluation. The API
// layer maps it to 400.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: %s: %s", e.Field, e.Msg)
}

// ErrEvaluationTimeout is returned when the evaluation deadline elapses
// before a verdict. Nothing is persisted, enqueued or notified on timeout;
// the caller decides whether to fail open or closed.
var ErrEvaluationTimeout = errors.New("evaluation timed out")
