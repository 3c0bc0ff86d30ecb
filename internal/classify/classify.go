// Package classify turns a model's probability vector into a digit result.
package classify

import (
	"context"
	"fmt"
	"sort"

	"github.com/MeKo-Tech/digito/internal/preprocess"
)

// NumClasses is the number of digit classes the model scores.
const NumClasses = 10

// Engine is an inference backend mapping one 784-value feature vector to ten
// class probabilities. Implementations must be safe for concurrent use.
type Engine interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
}

// EngineFunc adapts a plain function to the Engine interface.
type EngineFunc func(ctx context.Context, input []float32) ([]float32, error)

// Run calls f.
func (f EngineFunc) Run(ctx context.Context, input []float32) ([]float32, error) {
	return f(ctx, input)
}

// Prediction is one digit and the probability the model assigned to it.
type Prediction struct {
	Digit       int     `json:"digit"`
	Probability float64 `json:"probability"`
}

// Result is the classification of a single drawing.
type Result struct {
	Digit          int          `json:"digit"`
	Confidence     float64      `json:"confidence"`
	AllPredictions []Prediction `json:"allPredictions"`
}

// Classify runs the engine on vector and assembles the result. The vector
// must hold exactly preprocess.FeatureLen values and the engine must answer
// with NumClasses probabilities, otherwise a *ShapeError is returned.
func Classify(ctx context.Context, vector preprocess.FeatureVector, engine Engine) (*Result, error) {
	if len(vector) != preprocess.FeatureLen {
		return nil, &ShapeError{What: "feature vector", Want: preprocess.FeatureLen, Got: len(vector)}
	}
	if engine == nil {
		return nil, fmt.Errorf("classify: %w", ErrNoEngine)
	}

	probs, err := engine.Run(ctx, vector)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	return FromProbabilities(probs)
}

// FromProbabilities builds a Result from a raw probability vector.
func FromProbabilities(probs []float32) (*Result, error) {
	if len(probs) != NumClasses {
		return nil, &ShapeError{What: "probability vector", Want: NumClasses, Got: len(probs)}
	}
	digit := Argmax(probs)
	return &Result{
		Digit:          digit,
		Confidence:     float64(probs[digit]),
		AllPredictions: Rank(probs),
	}, nil
}

// Argmax returns the index of the largest value. On exact ties the lowest
// index wins. It returns -1 for an empty slice.
func Argmax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}

// Rank lists every class sorted by probability, highest first. The sort is
// stable, so tied probabilities keep ascending digit order.
func Rank(probs []float32) []Prediction {
	out := make([]Prediction, len(probs))
	for i, p := range probs {
		out[i] = Prediction{Digit: i, Probability: float64(p)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out
}

// Top returns the first k entries of the ranking.
func (r *Result) Top(k int) []Prediction {
	if k > len(r.AllPredictions) {
		k = len(r.AllPredictions)
	}
	return r.AllPredictions[:max(0, k)]
}
