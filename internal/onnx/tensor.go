package onnx

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MeKo-Tech/digito/internal/preprocess"
)

// Tensor is a float32 tensor prepared for ONNX input, row-major.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// InputShape resolves a model input shape to a concrete one for a single
// feature vector. A leading dynamic batch dimension becomes 1 and at most one
// other dynamic dimension is inferred so that the element count is 784.
// Accepted layouts include [N,784], [N,28,28], [N,1,28,28] and [N,28,28,1].
func InputShape(dims []int64) ([]int64, error) {
	if len(dims) == 0 {
		return nil, errors.New("model input has no dimensions")
	}
	shape := slices.Clone(dims)
	start := 0
	if len(shape) > 1 {
		if shape[0] <= 0 {
			shape[0] = 1
		}
		if shape[0] != 1 {
			return nil, fmt.Errorf("model input has fixed batch size %d", shape[0])
		}
		start = 1
	}

	known := int64(1)
	dynamic := -1
	for i := start; i < len(shape); i++ {
		if shape[i] > 0 {
			known *= shape[i]
			continue
		}
		if dynamic >= 0 {
			return nil, fmt.Errorf("input shape %v has more than one dynamic feature dimension", dims)
		}
		dynamic = i
	}

	want := int64(preprocess.FeatureLen)
	if dynamic >= 0 {
		if want%known != 0 {
			return nil, fmt.Errorf("input shape %v cannot hold %d features", dims, want)
		}
		shape[dynamic] = want / known
		return shape, nil
	}
	if known != want {
		return nil, fmt.Errorf("input shape %v holds %d values, want %d", dims, known, want)
	}
	return shape, nil
}

// VerifyTensor checks that the data length matches the shape.
func VerifyTensor(t Tensor) error {
	if len(t.Shape) == 0 {
		return errors.New("empty shape")
	}
	n := int64(1)
	for i, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, d)
		}
		n *= d
	}
	if int64(len(t.Data)) != n {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), n, t.Shape)
	}
	return nil
}

// TensorStats computes min, max and mean for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
