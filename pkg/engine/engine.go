package engine

import (
	"context"
	"fmt"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

// Engine runs one exposure-time calculation. Implementations must be safe
// for concurrent use: the sweep workers and the solver endpoints share one
// instance.
type Engine interface {
	Calculate(ctx context.Context, p etc.ParamSet) (*etc.Result, error)
}

// Error is a validation or processing failure reported by the engine
// itself, as opposed to a transport failure reaching it. The message is the
// engine's own wording, passed through untouched.
type Error struct {
	// Status is the HTTP status the engine answered with.
	Status int

	// Message is the engine's error text, verbatim.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s (HTTP %d)", e.Message, e.Status)
}
