package testutil

import (
	"context"
	"sync"
	"sync/atomic"
)

// FixedEngine is an inference engine stub that always answers with Probs.
type FixedEngine struct {
	Probs []float32
	Err   error

	calls atomic.Int64
	mu    sync.Mutex
	last  []float32
}

// NewOneHotEngine returns an engine that scores digit with confidence and
// spreads the remainder evenly over the other nine classes.
func NewOneHotEngine(digit int, confidence float32) *FixedEngine {
	probs := make([]float32, 10)
	rest := (1 - confidence) / 9
	for i := range probs {
		probs[i] = rest
	}
	probs[digit] = confidence
	return &FixedEngine{Probs: probs}
}

// Run records the input and returns the configured answer.
func (e *FixedEngine) Run(ctx context.Context, input []float32) ([]float32, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.last = append(e.last[:0], input...)
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([]float32, len(e.Probs))
	copy(out, e.Probs)
	return out, nil
}

// Calls returns how many times Run was invoked.
func (e *FixedEngine) Calls() int64 { return e.calls.Load() }

// LastInput returns a copy of the most recent input vector.
func (e *FixedEngine) LastInput() []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float32(nil), e.last...)
}
