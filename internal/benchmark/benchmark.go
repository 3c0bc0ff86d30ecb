// Package benchmark measures end-to-end classification throughput of a
// pipeline over a fixed image set.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"time"

	"github.com/MeKo-Tech/digito/internal/pipeline"
)

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64
	TotalAllocBytes uint64
	SysBytes        uint64
	NumGC           uint32
	GCCPUFraction   float64
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

// String returns a formatted string representation of memory stats.
func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024, m.TotalAllocBytes/1024, m.SysBytes/1024, m.NumGC, m.GCCPUFraction*100)
}

// Result is one measured configuration.
type Result struct {
	Name         string
	Images       int
	Iterations   int
	Workers      int
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Error        error
}

// PerImage is the mean wall time per classified image.
func (r Result) PerImage() time.Duration {
	n := r.Images * r.Iterations
	if n == 0 {
		return 0
	}
	return r.Duration / time.Duration(n)
}

// Throughput is images per second.
func (r Result) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Images*r.Iterations) / r.Duration.Seconds()
}

// TotalAllocKB is the allocation volume during the run.
func (r Result) TotalAllocKB() uint64 {
	return (r.MemoryAfter.TotalAllocBytes - r.MemoryBefore.TotalAllocBytes) / 1024
}

// String returns a formatted string representation of the result.
func (r Result) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %d images x %d iterations, avg: %v/image, %.1f images/s, alloc: %d KB",
		r.Name, r.Images, r.Iterations, r.PerImage(), r.Throughput(), r.TotalAllocKB())
}

// CSVHeader matches CSVRow.
const CSVHeader = "name,images,iterations,workers,total_ms,per_image_us,images_per_sec,alloc_kb,error"

// CSVRow renders r for CSVHeader.
func (r Result) CSVRow() string {
	errText := ""
	if r.Error != nil {
		errText = r.Error.Error()
	}
	return fmt.Sprintf("%s,%d,%d,%d,%.2f,%.1f,%.1f,%d,%q",
		r.Name, r.Images, r.Iterations, r.Workers,
		float64(r.Duration.Microseconds())/1000,
		float64(r.PerImage().Nanoseconds())/1000,
		r.Throughput(), r.TotalAllocKB(), errText)
}

// Run classifies images iterations times with workers goroutines and
// reports the total time. One warmup pass runs before measuring.
func Run(ctx context.Context, name string, pl *pipeline.Pipeline, images []image.Image, iterations, workers int) Result {
	res := Result{Name: name, Images: len(images), Iterations: iterations, Workers: workers}
	switch {
	case pl == nil:
		res.Error = pipeline.ErrNotInitialized
		return res
	case len(images) == 0:
		res.Error = errors.New("no images to benchmark")
		return res
	case iterations <= 0:
		res.Error = fmt.Errorf("iterations must be positive, got %d", iterations)
		return res
	}

	cfg := pipeline.ParallelConfig{MaxWorkers: workers}
	if _, err := pl.ProcessImagesParallel(ctx, images, cfg); err != nil {
		res.Error = fmt.Errorf("warmup: %w", err)
		return res
	}

	runtime.GC()
	res.MemoryBefore = GetMemoryStats()
	start := time.Now()
	for range iterations {
		if _, err := pl.ProcessImagesParallel(ctx, images, cfg); err != nil {
			res.Error = err
			break
		}
	}
	res.Duration = time.Since(start)
	res.MemoryAfter = GetMemoryStats()
	return res
}

// Speedup compares a candidate against a baseline; values above 1 mean the
// candidate is faster. It is 0 when either run failed.
func Speedup(baseline, candidate Result) float64 {
	if baseline.Error != nil || candidate.Error != nil || candidate.PerImage() == 0 {
		return 0
	}
	return float64(baseline.PerImage()) / float64(candidate.PerImage())
}
