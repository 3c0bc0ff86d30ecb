package classify

import (
	"errors"
	"fmt"
)

// ErrNoEngine is returned when classification is attempted without an engine.
var ErrNoEngine = errors.New("no inference engine configured")

// ShapeError reports a vector whose length does not match the model contract.
// It indicates a server-side fault: a misconfigured model or a broken
// preprocessing stage, never bad client input.
type ShapeError struct {
	What string
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch for %s: expected %d values, got %d", e.What, e.Want, e.Got)
}
