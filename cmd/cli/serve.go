package cli

import (
	"github.com/spf13/cobra"

	"github.com/anstrom/netscope/internal/api"
	"github.com/anstrom/netscope/internal/logging"
)

var (
	serveHost string
	servePort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve discovery, port scans and capture analysis over HTTP, with a
websocket that streams findings while a job runs and Prometheus metrics on
/metrics. The server stops on SIGINT or SIGTERM.`,
	Example: `  netscope serve
  netscope serve --host 0.0.0.0 --port 9090
  NETSCOPE_API_API_KEY_HASH='$2a$12$...' netscope serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen address (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")

	bindConfigFlag(serveCmd, "host", "api.listen_addr")
	bindConfigFlag(serveCmd, "port", "api.port")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	server, err := api.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	if err := server.Start(cmd.Context()); err != nil {
		return err
	}

	logging.Info("API server exited")
	return nil
}
