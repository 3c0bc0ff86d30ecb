package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/MeKo-Tech/digito/internal/batch"
	"github.com/spf13/cobra"
)

// batchCmd classifies whole directories and PDFs.
var batchCmd = &cobra.Command{
	Use:   "batch [path...]",
	Short: "Classify many drawings from files, directories and PDFs",
	Long: `Classify every supported image in the given files and directories.
PDFs are searched for embedded images, one result per image.

Examples:
  digito batch ./drawings
  digito batch ./drawings --recursive --workers 8 --format csv -o out.csv
  digito batch sheet.pdf --pages 1-3 --continue-on-error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().IntP("workers", "w", 0, "number of parallel workers (default from config)")
	batchCmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	batchCmd.Flags().StringSlice("include", nil, "only include files matching these glob patterns")
	batchCmd.Flags().StringSlice("exclude", nil, "skip files matching these glob patterns")
	batchCmd.Flags().String("pages", "", "PDF page range, e.g. 1-3,5")
	batchCmd.Flags().Bool("continue-on-error", false, "record failing inputs instead of aborting")
	batchCmd.Flags().StringP("format", "f", "text", "output format: text, json or csv")
	batchCmd.Flags().StringP("output", "o", "", "write results to this file instead of stdout")
	batchCmd.Flags().String("locale", "", "locale for text output (e.g. en, de)")
	batchCmd.Flags().Bool("progress", false, "show a progress bar on stderr")
	batchCmd.Flags().BoolP("quiet", "q", false, "suppress progress and statistics")
	batchCmd.Flags().Bool("stats", false, "print processing statistics to stderr")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	bc := &batch.Config{
		Workers:         cfg.Batch.Workers,
		Recursive:       cfg.Batch.Recursive,
		ContinueOnError: cfg.Batch.ContinueOnError,
		Format:          cfg.Output.Format,
		OutputFile:      cfg.Output.File,
		Locale:          cfg.Output.Locale,
		Progress:        cmd.ErrOrStderr(),
	}
	if cmd.Flags().Changed("workers") {
		bc.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("recursive") {
		bc.Recursive, _ = cmd.Flags().GetBool("recursive")
	}
	if cmd.Flags().Changed("continue-on-error") {
		bc.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}
	if cmd.Flags().Changed("format") {
		bc.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("output") {
		bc.OutputFile, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("locale") {
		bc.Locale, _ = cmd.Flags().GetString("locale")
	}
	bc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	bc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	bc.PageRange, _ = cmd.Flags().GetString("pages")
	bc.ShowProgress, _ = cmd.Flags().GetBool("progress")
	bc.Quiet, _ = cmd.Flags().GetBool("quiet")
	showStats, _ := cmd.Flags().GetBool("stats")

	if bc.OutputFile == "" && cfg.Batch.OutputDir != "" {
		bc.OutputFile = filepath.Join(cfg.Batch.OutputDir, "results."+extensionFor(bc.Format))
	}
	if err := bc.Validate(); err != nil {
		return err
	}

	pl, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = pl.Close() }()

	res, err := batch.Process(cmd.Context(), pl, args, bc)
	if err != nil {
		return err
	}
	if err := res.SaveResults(cmd.OutOrStdout(), bc.Format, bc.OutputFile, bc.Locale); err != nil {
		return err
	}
	if bc.OutputFile != "" && !bc.Quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", bc.OutputFile)
	}
	if showStats && !bc.Quiet {
		res.PrintStats(cmd.ErrOrStderr())
	}
	if n := res.Failed(); n > 0 {
		return fmt.Errorf("%d of %d inputs failed", n, len(res.Items))
	}
	return nil
}

func extensionFor(format string) string {
	switch format {
	case batch.FormatJSON:
		return "json"
	case batch.FormatCSV:
		return "csv"
	default:
		return "txt"
	}
}
