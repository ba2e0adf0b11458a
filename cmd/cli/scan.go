package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/portscan"
	"github.com/anstrom/netscope/internal/report"
)

var (
	scanPorts   string
	scanTimeout time.Duration
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a host for open TCP ports",
	Long: `Attempt a TCP connection to each port on the target and report the
ports that accepted, with their well-known service names. Without --ports
the default set of common ports is scanned.`,
	Example: `  netscope scan 192.168.1.10
  netscope scan 10.0.0.5 --ports 22,80,443
  netscope scan 10.0.0.5 --ports 8000-8100 --timeout 250ms -o table`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanPorts, "ports", "", "ports to scan: '22,80,443' or '8000-8100' (default set when empty)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "per-port connect timeout (default from config)")

	bindConfigFlag(scanCmd, "timeout", "scanning.dial_timeout")
}

func runScan(cmd *cobra.Command, args []string) error {
	if len(args) == 0 || args[0] == "" {
		return errors.ErrValidation("Target IP is required")
	}
	target := args[0]

	var ports []int
	if scanPorts != "" {
		var err error
		if ports, err = portscan.ParsePorts(scanPorts); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	found, err := newPortScanner(cfg.Scanning).ScanPorts(cmd.Context(), target, ports)
	if err != nil {
		return err
	}

	return writeOutput(cmd, report.Ports(target, found))
}
