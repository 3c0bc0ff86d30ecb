package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/digito/internal/imageio"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/spf13/cobra"
)

// classifyCmd classifies single drawings.
var classifyCmd = &cobra.Command{
	Use:   "classify [image...]",
	Short: "Classify hand-drawn digit images",
	Long: `Classify one or more images and print the predicted digit with its
confidence and the full ranking.

Examples:
  digito classify drawing.png
  digito classify a.png b.png --format json --trace
  digito classify drawing.png --save-canvas ./canvas`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringP("format", "f", "text", "output format: text, json or csv")
	classifyCmd.Flags().StringP("output", "o", "", "write results to this file instead of stdout")
	classifyCmd.Flags().Bool("trace", false, "include the normalization geometry in JSON output")
	classifyCmd.Flags().String("save-canvas", "", "directory to write the normalized 28x28 canvas of each input")
	classifyCmd.Flags().String("locale", "", "locale for text output (e.g. en, de)")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	format := cfg.Output.Format
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}
	outFile := cfg.Output.File
	if cmd.Flags().Changed("output") {
		outFile, _ = cmd.Flags().GetString("output")
	}
	locale := cfg.Output.Locale
	if cmd.Flags().Changed("locale") {
		locale, _ = cmd.Flags().GetString("locale")
	}
	trace, _ := cmd.Flags().GetBool("trace")
	canvasDir, _ := cmd.Flags().GetString("save-canvas")

	pl, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = pl.Close() }()

	results, err := classifyFiles(cmd.Context(), pl, args, trace, canvasDir)
	if err != nil {
		return err
	}

	out, err := formatResults(results, format, locale)
	if err != nil {
		return err
	}
	if outFile != "" {
		if err := os.WriteFile(outFile, []byte(out), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

// classifyFiles runs every file through the pipeline. It stops at the first
// file that cannot be read or classified.
func classifyFiles(ctx context.Context, pl *pipeline.Pipeline, files []string, trace bool, canvasDir string) ([]pipeline.LabeledResult, error) {
	loaded := imageio.BatchLoadImages(files)
	for _, l := range loaded {
		if l.Err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", l.Path, l.Err)
		}
	}

	results := make([]pipeline.LabeledResult, 0, len(loaded))
	for _, l := range loaded {
		res, err := pl.ProcessImage(ctx, l.Img)
		if err != nil {
			return nil, fmt.Errorf("failed to classify %s: %w", l.Path, err)
		}
		if canvasDir != "" {
			if err := saveCanvas(pl, l.Img, canvasDir, l.Path); err != nil {
				return nil, err
			}
		}
		if !trace {
			res.Trace = nil
		}
		results = append(results, pipeline.LabeledResult{Source: l.Path, Result: res})
	}
	return results, nil
}

// saveCanvas writes the normalized input, enlarged ten times, next to the
// other canvases as <name>_canvas.png.
func saveCanvas(pl *pipeline.Pipeline, img image.Image, dir, source string) error {
	vec, _, err := pl.Normalizer.NormalizeImage(img)
	if err != nil {
		return err
	}
	canvas, err := pipeline.RenderCanvas(vec, 10)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return imageio.SaveImage(filepath.Join(dir, base+"_canvas.png"), canvas)
}

func formatResults(results []pipeline.LabeledResult, format, locale string) (string, error) {
	switch format {
	case "json":
		if len(results) == 1 {
			return pipeline.ToJSON(results[0].Result)
		}
		return pipeline.ToJSONAll(results)
	case "csv":
		return pipeline.ToCSV(results)
	case "", "text":
		return pipeline.ToPlainText(results, locale), nil
	default:
		return "", errors.New("unsupported format: " + format)
	}
}
