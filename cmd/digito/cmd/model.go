package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/config"
	"github.com/MeKo-Tech/digito/internal/models"
	"github.com/MeKo-Tech/digito/internal/onnx"
	"github.com/MeKo-Tech/digito/internal/tfserving"
	"github.com/spf13/cobra"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect digit models",
}

var modelInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the configured model's input and output signature",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		info, err := describeEngine(cfg)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ONNX models in the models directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		list, err := models.ListAvailableModels(cfg.ModelsDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			_, err := fmt.Fprintf(out, "No models found in %s\n", models.GetModelsDir(cfg.ModelsDir))
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tSIZE\tPATH")
		for _, m := range list {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", m.Name, m.Size, m.Path)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelInfoCmd, modelListCmd)
}

// describeEngine reports the backend without running inference.
func describeEngine(cfg *config.Config) (classify.EngineInfo, error) {
	if cfg.Engine.Backend == config.BackendTFServing {
		c, err := tfserving.New(cfg.Engine.TFServing)
		if err != nil {
			return classify.EngineInfo{}, err
		}
		return c.Info(), nil
	}
	info, err := onnx.Inspect(cfg.ResolvedModelPath(), cfg.Engine.LibraryPath)
	if err != nil {
		return classify.EngineInfo{}, fmt.Errorf("inspect model: %w", err)
	}
	info.Softmax = cfg.Engine.Softmax
	return info, nil
}
