package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"feature vector", 784, 1024},
		{"exactly one step", 1024, 1024},
		{"just over one step", 1025, 2048},
		{"large", 10000, 10240},
		{"zero", 0, 1024},
		{"negative", -1, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGetFloat32_Length(t *testing.T) {
	for _, n := range []int{0, 1, 784, 1024, 3000} {
		buf := GetFloat32(n)
		assert.Len(t, buf, n)
		assert.GreaterOrEqual(t, cap(buf), sizeClass(n))
		PutFloat32(buf)
	}
	assert.Empty(t, GetFloat32(-5))
}

func TestPutFloat32_IgnoresSmallAndNil(t *testing.T) {
	assert.NotPanics(t, func() {
		PutFloat32(nil)
		PutFloat32(make([]float32, 10))
	})
}

func TestPool_ReuseKeepsCapacity(t *testing.T) {
	buf := GetFloat32(784)
	for i := range buf {
		buf[i] = float32(i)
	}
	PutFloat32(buf)

	again := GetFloat32(784)
	require.Len(t, again, 784)
	assert.GreaterOrEqual(t, cap(again), 1024)
	PutFloat32(again)
}

func TestPool_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 200 {
				n := 784 + (w*i)%3000
				buf := GetFloat32(n)
				if len(buf) != n {
					t.Errorf("len %d, want %d", len(buf), n)
				}
				for j := range buf {
					buf[j] = float32(w)
				}
				PutFloat32(buf)
			}
		}(w)
	}
	wg.Wait()
}
