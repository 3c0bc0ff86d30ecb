package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int                           // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback              // Optional progress reporting
	ErrorHandler     func(int, image.Image, error) // Optional per-image error handler
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

type imageJob struct {
	index int
	image image.Image
}

type imageResult struct {
	index  int
	result *DigitResult
	err    error
}

// ProcessImagesParallel classifies images with a bounded worker pool.
// Results keep input order; failed entries are nil and the first failure is
// returned as the error.
func (p *Pipeline) ProcessImagesParallel(
	ctx context.Context,
	images []image.Image,
	config ParallelConfig,
) ([]*DigitResult, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	if p == nil || p.Normalizer == nil || p.Engine == nil {
		return nil, ErrNotInitialized
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	workers := min(config.MaxWorkers, len(images))

	if config.ProgressCallback != nil {
		config.ProgressCallback.OnStart(len(images))
		defer config.ProgressCallback.OnComplete()
	}

	jobs := make(chan imageJob, len(images))
	results := make(chan imageResult, len(images))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go p.worker(ctx, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, img := range images {
			select {
			case jobs <- imageJob{index: i, image: img}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*DigitResult, len(images))
	errs := make([]error, len(images))
	processed := 0
	for r := range results {
		ordered[r.index] = r.result
		errs[r.index] = r.err
		processed++
		if config.ProgressCallback != nil {
			if r.err != nil {
				config.ProgressCallback.OnError(r.index, r.err)
			}
			config.ProgressCallback.OnProgress(processed, len(images))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstErr error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("image %d: %w", i, err)
		}
		if config.ErrorHandler != nil {
			config.ErrorHandler(i, images[i], err)
		}
	}
	return ordered, firstErr
}

func (p *Pipeline) worker(ctx context.Context, jobs <-chan imageJob, results chan<- imageResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			res, err := p.ProcessImage(ctx, job.image)
			select {
			case results <- imageResult{index: job.index, result: res, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ParallelStats holds statistics about parallel processing performance.
type ParallelStats struct {
	TotalImages      int           `json:"total_images"`
	ProcessedImages  int           `json:"processed_images"`
	FailedImages     int           `json:"failed_images"`
	EmptyImages      int           `json:"empty_images"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerImage  time.Duration `json:"average_per_image_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats summarizes a parallel run.
func CalculateParallelStats(results []*DigitResult, duration time.Duration, workerCount int) ParallelStats {
	stats := ParallelStats{TotalImages: len(results), WorkerCount: workerCount, TotalDuration: duration}
	for _, r := range results {
		switch {
		case r == nil:
			stats.FailedImages++
		case r.Empty:
			stats.EmptyImages++
			stats.ProcessedImages++
		default:
			stats.ProcessedImages++
		}
	}
	if stats.ProcessedImages > 0 {
		stats.AveragePerImage = duration / time.Duration(stats.ProcessedImages)
		if s := duration.Seconds(); s > 0 {
			stats.ThroughputPerSec = float64(stats.ProcessedImages) / s
		}
	}
	return stats
}
