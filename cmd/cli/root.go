// Package cli provides the cobra command tree for netscope: host discovery,
// port scanning, capture analysis, the HTTP API server and the scheduled
// watch mode. Every command prints exactly one report on stdout; logs go to
// stderr.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/netscope/internal/api"
	"github.com/anstrom/netscope/internal/collector"
	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/report"
)

const (
	envPrefix         = "NETSCOPE"
	defaultConfigFile = "netscope.yaml"
	defaultEnvFile    = ".env"

	outputJSON  = "json"
	outputTable = "table"
)

var (
	cfgFile      string
	verbose      bool
	outputFormat string
	concurrency  int
)

// Build information, set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "netscope",
	Short: "Network discovery, port scanning and capture analysis",
	Long: `netscope sweeps a /24 for live hosts, probes a host for open TCP ports
and summarizes pcap/pcapng captures. Results are printed as JSON documents,
served over an HTTP API, or pushed to a log collection API on a schedule.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line and exits with its status code.
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout))
}

// Run executes the command tree with args, writing the report to out, and
// returns the process exit code. Any failure, including a usage error, is
// printed as an error report.
func Run(args []string, out io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Debug("Command failed", "error", err)
		if writeErr := report.WriteJSON(out, report.Error(err)); writeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to write error report: %v\n", writeErr)
		}
		return 1
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentPreRunE = validateOutputFormat

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./"+defaultConfigFile+")")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVarP(&outputFormat, "output", "o", outputJSON, "output format: json or table")
	flags.IntVar(&concurrency, "concurrency", 0, "maximum in-flight probes (default from config)")
}

// initConfig loads .env, wires NETSCOPE_* environment variables and binds
// the flags that override configuration keys.
func initConfig() {
	if err := godotenv.Load(defaultEnvFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", defaultEnvFile, err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	bindFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	bindFlag("concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	for _, binding := range flagBindings {
		bindFlag(binding.key, binding.cmd.Flags().Lookup(binding.flag))
	}
}

// flagBinding ties a command flag to a configuration key.
type flagBinding struct {
	cmd  *cobra.Command
	flag string
	key  string
}

// flagBindings is filled by the init functions of the subcommands.
var flagBindings []flagBinding

func bindConfigFlag(cmd *cobra.Command, flag, key string) {
	flagBindings = append(flagBindings, flagBinding{cmd: cmd, flag: flag, key: key})
}

func bindFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", flag.Name, err)
	}
}

// loadConfig reads the config file and applies flag and environment
// overrides, then installs the configured logger.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	initLogging(cfg.Logging)
	return cfg, nil
}

// applyOverrides copies every key set by a flag or NETSCOPE_* variable
// into cfg.
func applyOverrides(cfg *config.Config) {
	setString := func(key string, dst *string) {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if viper.IsSet(key) {
			*dst = viper.GetDuration(key)
		}
	}

	if viper.IsSet("concurrency") && viper.GetInt("concurrency") > 0 {
		cfg.Discovery.Concurrency = viper.GetInt("concurrency")
		cfg.Scanning.Concurrency = viper.GetInt("concurrency")
	}

	setString("discovery.method", &cfg.Discovery.Method)
	setDuration("discovery.ping_timeout", &cfg.Discovery.PingTimeout)
	setDuration("discovery.dns_timeout", &cfg.Discovery.DNSTimeout)
	setString("discovery.dns_server", &cfg.Discovery.DNSServer)

	setDuration("scanning.dial_timeout", &cfg.Scanning.DialTimeout)

	setInt("capture.preview_limit", &cfg.Capture.PreviewLimit)
	setString("capture.upload_dir", &cfg.Capture.UploadDir)

	setString("api.listen_addr", &cfg.API.ListenAddr)
	setInt("api.port", &cfg.API.Port)
	setString("api.api_key_hash", &cfg.API.APIKeyHash)

	setString("collector.url", &cfg.Collector.URL)
	setString("collector.device_id", &cfg.Collector.DeviceID)
	if viper.IsSet("collector.url") {
		cfg.Collector.Enabled = true
	}

	var level string
	setString("logging.level", &level)
	if level != "" {
		cfg.Logging.Level = logging.LogLevel(level)
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = logging.LevelDebug
	}
}

// initLogging installs the configured logger. stdout is reserved for the
// report, so a stdout log destination is moved to stderr.
func initLogging(cfg logging.Config) {
	if cfg.Output == "stdout" {
		cfg.Output = "stderr"
	}

	logger, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
		logger = logging.NewDefault()
	}
	logging.SetDefault(logger)
}

func validateOutputFormat(cmd *cobra.Command, args []string) error {
	if outputFormat != outputJSON && outputFormat != outputTable {
		return errors.ErrValidation(fmt.Sprintf("unknown output format %q", outputFormat))
	}
	return nil
}

// writeOutput prints doc in the selected output format.
func writeOutput(cmd *cobra.Command, doc any) error {
	switch outputFormat {
	case outputJSON:
		return report.WriteJSON(cmd.OutOrStdout(), doc)
	case outputTable:
		return report.WriteTable(cmd.OutOrStdout(), doc)
	default:
		return errors.ErrValidation(fmt.Sprintf("unknown output format %q", outputFormat))
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
	api.Version = v
	collector.Version = v
}
