// Package mempool recycles float32 buffers for inference tensors.
package mempool

import (
	"sync"
)

// step is the bucket granularity; one 28x28 feature vector fits the first
// bucket.
const step = 1024

var float32Pools sync.Map // key: size class (int), value: *sync.Pool

// sizeClass rounds n up to the next multiple of step.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor(cls int) *sync.Pool {
	p, _ := float32Pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]float32, cls)
		return &buf
	}})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed. Return it
// with PutFloat32 once nothing references it.
func GetFloat32(n int) []float32 {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp, ok := poolFor(cls).Get().(*[]float32)
	if !ok || cap(*bp) < cls {
		buf := make([]float32, cls)
		return buf[:n]
	}
	return (*bp)[:n]
}

// PutFloat32 hands buf back to its pool. Nil buffers and buffers below the
// minimum class are ignored.
func PutFloat32(buf []float32) {
	if cap(buf) < step {
		return
	}
	cls := cap(buf) / step * step
	full := buf[:cls]
	poolFor(cls).Put(&full)
}
