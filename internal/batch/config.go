package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/digito/internal/pipeline"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Config holds all configuration for a batch run.
type Config struct {
	Workers int

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
	// PageRange limits PDF extraction, e.g. "1-3,5".
	PageRange string

	// ContinueOnError records failing inputs in the result instead of
	// aborting the run.
	ContinueOnError bool

	Format     string
	OutputFile string
	Locale     string

	ShowProgress bool
	Quiet        bool
	// Progress receives progress updates; stderr is used when nil and
	// ShowProgress is set.
	Progress io.Writer
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return errors.New("workers must be non-negative")
	}
	switch c.Format {
	case "", FormatText, FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("unsupported output format %q", c.Format)
	}
	return nil
}

// Result holds the outcome of a batch run.
type Result struct {
	Items       []pipeline.LabeledResult
	Duration    time.Duration
	WorkerCount int
}

// Failed returns the number of inputs that produced no result.
func (r *Result) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Result == nil {
			n++
		}
	}
	return n
}

// Stats summarizes the run.
func (r *Result) Stats() pipeline.ParallelStats {
	results := make([]*pipeline.DigitResult, len(r.Items))
	for i, it := range r.Items {
		results[i] = it.Result
	}
	return pipeline.CalculateParallelStats(results, r.Duration, r.WorkerCount)
}

// FormatResults renders the results as text, JSON or CSV.
func (r *Result) FormatResults(format, locale string) (string, error) {
	switch format {
	case FormatJSON:
		return pipeline.ToJSONAll(r.Items)
	case FormatCSV:
		return pipeline.ToCSV(r.Items)
	case "", FormatText:
		return pipeline.ToPlainText(r.Items, locale), nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

// SaveResults writes the formatted results to outputFile, or to w when no
// file is given.
func (r *Result) SaveResults(w io.Writer, format, outputFile, locale string) error {
	output, err := r.FormatResults(format, locale)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if outputFile == "" {
		_, err := io.WriteString(w, output)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// PrintStats writes processing statistics to w.
func (r *Result) PrintStats(w io.Writer) {
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total inputs: %d\n", stats.TotalImages)
	_, _ = fmt.Fprintf(w, "  Classified: %d\n", stats.ProcessedImages)
	_, _ = fmt.Fprintf(w, "  Blank: %d\n", stats.EmptyImages)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.FailedImages)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", stats.ThroughputPerSec)
}
