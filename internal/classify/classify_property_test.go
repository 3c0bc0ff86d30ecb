package classify

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRank_Properties checks that ranking is a sorted permutation of all
// classes whose head agrees with Argmax.
func TestRank_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Probabilities are drawn from a small set so ties are frequent.
	probGen := gen.SliceOfN(NumClasses, gen.IntRange(0, 4).Map(func(v int) float32 {
		return float32(v) / 4
	}))

	properties.Property("ranking is a descending permutation led by argmax", prop.ForAll(
		func(probs []float32) bool {
			res, err := FromProbabilities(probs)
			if err != nil {
				return false
			}
			if res.AllPredictions[0].Digit != res.Digit || res.Digit != Argmax(probs) {
				return false
			}
			seen := make(map[int]bool, NumClasses)
			for i, p := range res.AllPredictions {
				if seen[p.Digit] || float64(probs[p.Digit]) != p.Probability {
					return false
				}
				seen[p.Digit] = true
				if i == 0 {
					continue
				}
				prev := res.AllPredictions[i-1]
				if prev.Probability < p.Probability {
					return false
				}
				if prev.Probability == p.Probability && prev.Digit > p.Digit {
					return false
				}
			}
			return len(seen) == NumClasses
		},
		probGen,
	))

	properties.TestingRun(t)
}
