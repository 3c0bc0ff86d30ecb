package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/digito/internal/notify"
	"github.com/spf13/cobra"
)

// listPorts is replaced in tests.
var listPorts notify.Lister = notify.ListPorts

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports for the prediction notifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := listPorts()
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		return printPorts(cmd, ports, asJSON)
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().Bool("json", false, "print ports as JSON")
}

func printPorts(cmd *cobra.Command, ports []notify.PortInfo, asJSON bool) error {
	detected, _ := notify.DetectPort(ports)
	out := cmd.OutOrStdout()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Ports    []notify.PortInfo `json:"ports"`
			Detected string            `json:"detected,omitempty"`
		}{Ports: ports, Detected: detected})
	}

	if len(ports) == 0 {
		_, err := fmt.Fprintln(out, "No serial ports found")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\tPORT\tUSB\tVID:PID\tPRODUCT")
	for _, p := range ports {
		mark := ""
		if p.Name == detected {
			mark = "*"
		}
		ids := ""
		if p.VID != "" || p.PID != "" {
			ids = p.VID + ":" + p.PID
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", mark, p.Name, p.IsUSB, ids, p.Product)
	}
	return tw.Flush()
}
