package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/MeKo-Tech/digito/internal/imageio"
	"github.com/MeKo-Tech/digito/internal/testutil"
)

// fixture is one manifest entry. Blank canvases have Digit -1.
type fixture struct {
	File  string `json:"file"`
	Digit int    `json:"digit"`
	Empty bool   `json:"empty"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir   = flag.String("out", testutil.FixtureDir, "Output directory relative to the project root")
		variants = flag.Int("variants", 3, "Renderings per digit at different offsets and scales")
		help     = flag.Bool("h", false, "Show help")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic digit drawings for digito testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}

	root, err := testutil.ModuleRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	dir := filepath.Join(root, *outDir)

	manifest, err := generate(dir, *variants)
	if err != nil {
		slog.Error("Failed to generate test data", "error", err)
		os.Exit(1)
	}
	slog.Info("Test data generation completed", "dir", dir, "files", len(manifest))
}

// generate writes digit_<d>_<v>.png for every digit and variant, one blank
// canvas, and manifest.json.
func generate(dir string, variants int) ([]fixture, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	var manifest []fixture
	for d := range 10 {
		for v := range max(1, variants) {
			cfg := testutil.DefaultDigitImageConfig()
			cfg.Text = strconv.Itoa(d)
			cfg.Scale = 8 + 2*v
			cfg.Offset = image.Pt(v*25-25, v*15-15)
			img, err := testutil.GenerateDigitImage(cfg)
			if err != nil {
				return nil, fmt.Errorf("digit %d: %w", d, err)
			}
			name := fmt.Sprintf("digit_%d_%d.png", d, v)
			if err := imageio.SaveImage(filepath.Join(dir, name), img); err != nil {
				return nil, err
			}
			manifest = append(manifest, fixture{File: name, Digit: d})
		}
	}

	blank := testutil.CreateDrawing(testutil.CanvasSize, testutil.CanvasSize)
	if err := imageio.SaveImage(filepath.Join(dir, "blank.png"), blank); err != nil {
		return nil, err
	}
	manifest = append(manifest, fixture{File: "blank.png", Digit: -1, Empty: true})

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return manifest, nil
}
