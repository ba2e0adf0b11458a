package cli

import (
	"github.com/spf13/cobra"

	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/report"
)

var analyzePreview int

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Summarize a pcap or pcapng capture",
	Long: `Read a capture file and report packet counts per protocol, the busiest
source addresses, a per-second timeline and a preview of the first packets.
Only IPv4 packets are counted.`,
	Example: `  netscope analyze traffic.pcap
  netscope analyze dump.pcapng --preview 20 -o table`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().IntVar(&analyzePreview, "preview", 0, "number of packets in the preview (default from config)")

	bindConfigFlag(analyzeCmd, "preview", "capture.preview_limit")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if len(args) == 0 || args[0] == "" {
		return errors.ErrValidation("Capture file is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := newAnalyzer(cfg.Capture).AnalyzeFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return writeOutput(cmd, report.Capture(result))
}
