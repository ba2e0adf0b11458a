package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/netscope/internal/discovery"
	"github.com/anstrom/netscope/internal/report"
)

var (
	discoverRange      string
	discoverMethod     string
	discoverTimeout    time.Duration
	discoverDNSTimeout time.Duration
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover [base]",
	Short: "Find live hosts on a /24 network",
	Long: `Ping every address in the host range of a /24 network and report the
hosts that answered, with their reverse DNS names. The base is the first
three octets of the network; it defaults to the subnet of the local
outbound address.`,
	Example: `  netscope discover
  netscope discover 192.168.1
  netscope discover 10.0.0 --range 1-254 --method icmp
  netscope discover --timeout 500ms -o table`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVar(&discoverRange, "range", "", "host range within the subnet, e.g. 1-254 (default from config)")
	discoverCmd.Flags().StringVar(&discoverMethod, "method", "", "liveness probe: command or icmp")
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0, "per-host ping timeout (default from config)")
	discoverCmd.Flags().DurationVar(&discoverDNSTimeout, "dns-timeout", 0, "reverse DNS timeout (default from config)")

	bindConfigFlag(discoverCmd, "method", "discovery.method")
	bindConfigFlag(discoverCmd, "timeout", "discovery.ping_timeout")
	bindConfigFlag(discoverCmd, "dns-timeout", "discovery.dns_timeout")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	base := localSubnetBase()
	if len(args) == 1 {
		if base, err = discovery.ParseSubnetBase(args[0]); err != nil {
			return err
		}
	}

	low, high := cfg.Discovery.Low, cfg.Discovery.High
	if discoverRange != "" {
		if low, high, err = discovery.ParseRange(discoverRange); err != nil {
			return err
		}
	}

	engine, err := newDiscoverer(cfg.Discovery)
	if err != nil {
		return err
	}

	hosts, err := engine.DiscoverHosts(cmd.Context(), base, low, high)
	if err != nil {
		return err
	}

	return writeOutput(cmd, report.Discovery(localIPv4(), hosts))
}
