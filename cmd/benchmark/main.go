package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"runtime"
	"strconv"

	"github.com/MeKo-Tech/digito/internal/benchmark"
	"github.com/MeKo-Tech/digito/internal/config"
	"github.com/MeKo-Tech/digito/internal/onnx"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/testutil"
)

func main() {
	var (
		modelsDir  = flag.String("models", "models", "Directory containing ONNX models")
		iterations = flag.Int("iterations", 20, "Number of passes over the image set")
		images     = flag.Int("images", 100, "Number of synthetic drawings per pass")
		workers    = flag.Int("workers", runtime.NumCPU(), "Parallel workers")
		outputFile = flag.String("output", "", "Output file for CSV results (optional)")
		withGPU    = flag.Bool("gpu", true, "Also benchmark the CUDA execution provider")
	)
	flag.Parse()

	fmt.Println("digito CPU vs GPU Classification Benchmark")
	fmt.Println("==========================================")

	if _, err := os.Stat(*modelsDir); os.IsNotExist(err) {
		log.Fatalf("Models directory not found: %s", *modelsDir)
	}

	set, err := drawings(*images)
	if err != nil {
		log.Fatalf("Failed to render drawings: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.ModelsDir = *modelsDir

	results := []benchmark.Result{run("cpu", cfg, set, *iterations, *workers)}
	if *withGPU {
		cfg.Engine.GPU.UseGPU = true
		results = append(results, run("gpu", cfg, set, *iterations, *workers))
	}

	for _, r := range results {
		fmt.Println(r.String())
	}
	if len(results) == 2 {
		if s := benchmark.Speedup(results[0], results[1]); s > 0 {
			fmt.Printf("GPU speedup: %.2fx\n", s)
		} else {
			fmt.Println("GPU speedup: n/a")
		}
	}

	if *outputFile != "" {
		if err := saveResultsToFile(*outputFile, results); err != nil {
			log.Printf("Failed to save results to file: %v", err)
		} else {
			fmt.Printf("Results saved to: %s\n", *outputFile)
		}
	}
}

// drawings renders n digits at shifting offsets so the crop step has work
// to do.
func drawings(n int) ([]image.Image, error) {
	out := make([]image.Image, 0, n)
	for i := range n {
		cfg := testutil.DefaultDigitImageConfig()
		cfg.Text = strconv.Itoa(i % 10)
		cfg.Offset = image.Pt((i%7)*10-30, (i%5)*10-20)
		img, err := testutil.GenerateDigitImage(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func run(name string, cfg config.Config, set []image.Image, iterations, workers int) benchmark.Result {
	engine, err := onnx.NewEngine(cfg.ToONNXConfig())
	if err != nil {
		return benchmark.Result{Name: name, Error: err}
	}
	pl, err := pipeline.NewBuilder().
		WithFilter(cfg.Preprocess.Filter).
		WithEngine(engine).
		WithWorkers(workers).
		Build()
	if err != nil {
		_ = engine.Close()
		return benchmark.Result{Name: name, Error: err}
	}
	defer func() { _ = pl.Close() }()
	return benchmark.Run(context.Background(), name, pl, set, iterations, workers)
}

func saveResultsToFile(filename string, results []benchmark.Result) error {
	file, err := os.Create(filename) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	_, _ = fmt.Fprintln(file, benchmark.CSVHeader)
	for _, r := range results {
		_, _ = fmt.Fprintln(file, r.CSVRow())
	}
	return nil
}
