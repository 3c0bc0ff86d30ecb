// Package batch classifies many drawings from files, directories and PDFs.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/digito/internal/imageio"
	"github.com/MeKo-Tech/digito/internal/pdf"
	"github.com/MeKo-Tech/digito/internal/pipeline"
)

// ErrNoInputs is returned when discovery finds nothing to classify.
var ErrNoInputs = errors.New("no image or PDF files found")

// source is one drawing to classify, or the reason it could not be loaded.
type source struct {
	label string
	img   image.Image
	err   error
}

// Process discovers inputs, loads them and classifies every image with
// the pipeline's worker pool.
func Process(ctx context.Context, pl *pipeline.Pipeline, inputs []string, cfg *Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	files, err := discoverInputs(inputs, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover inputs: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoInputs
	}

	sources, err := loadSources(files, cfg.PageRange, cfg.ContinueOnError)
	if err != nil {
		return nil, err
	}

	var (
		images []image.Image
		index  []int
	)
	items := make([]pipeline.LabeledResult, len(sources))
	for i, s := range sources {
		items[i].Source = s.label
		if s.err != nil {
			items[i].Error = s.err.Error()
			continue
		}
		images = append(images, s.img)
		index = append(index, i)
	}

	pcfg := pipeline.ParallelConfig{MaxWorkers: cfg.Workers}
	if cfg.ShowProgress && !cfg.Quiet {
		w := cfg.Progress
		if w == nil {
			w = os.Stderr
		}
		pcfg.ProgressCallback = pipeline.NewConsoleProgressCallback(w, "Classifying: ")
	}
	if cfg.ContinueOnError {
		pcfg.ErrorHandler = func(i int, _ image.Image, err error) {
			items[index[i]].Error = err.Error()
			slog.Warn("Failed to classify input", "source", items[index[i]].Source, "error", err)
		}
	}

	start := time.Now()
	if len(images) > 0 {
		results, err := pl.ProcessImagesParallel(ctx, images, pcfg)
		if err != nil && (!cfg.ContinueOnError || results == nil) {
			return nil, fmt.Errorf("batch classification failed: %w", err)
		}
		for i, res := range results {
			items[index[i]].Result = res
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = pl.Config().Parallel.MaxWorkers
	}
	return &Result{Items: items, Duration: time.Since(start), WorkerCount: workers}, nil
}

// loadSources decodes image files and extracts PDF pages in input order.
func loadSources(files []string, pageRange string, continueOnError bool) ([]source, error) {
	var out []source
	for _, f := range files {
		if pdf.IsPDF(f) {
			pages, err := pdf.ExtractImages(f, pageRange)
			if err != nil {
				if !continueOnError {
					return nil, err
				}
				out = append(out, source{label: f, err: err})
				continue
			}
			if len(pages) == 0 {
				textPages, _ := pdf.TextPages(f, pageRange)
				slog.Warn("PDF contains no images", "file", f, "text_pages", textPages)
			}
			for _, p := range pages {
				out = append(out, source{label: p.Label(f), img: p.Image})
			}
			continue
		}

		img, _, err := imageio.LoadImage(f)
		if err != nil {
			if !continueOnError {
				return nil, fmt.Errorf("failed to load %s: %w", f, err)
			}
			out = append(out, source{label: f, err: err})
			continue
		}
		out = append(out, source{label: f, img: img})
	}
	return out, nil
}
