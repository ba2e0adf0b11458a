package cli

import (
	"github.com/spf13/cobra"

	"github.com/anstrom/netscope/internal/auth"
	"github.com/anstrom/netscope/internal/errors"
)

var apiKeyHash string

// apiKeyCmd represents the apikey command group
var apiKeyCmd = &cobra.Command{
	Use:     "apikey",
	Aliases: []string{"apikeys", "key"},
	Short:   "Create and check API keys for the HTTP API",
	Long: `Create and check the API key that protects the HTTP API.

The server only stores the bcrypt hash of the key. Put the hash in the
api.api_key_hash config key (or NETSCOPE_API_API_KEY_HASH) and hand the key
to clients, which send it in the X-API-Key header.`,
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate a new API key and its hash",
	Example: `  netscope apikey create
  netscope apikey create -o table`,
	Args: cobra.NoArgs,
	RunE: runAPIKeyCreate,
}

var apiKeyVerifyCmd = &cobra.Command{
	Use:     "verify <key>",
	Short:   "Check a key against a stored hash",
	Example: `  netscope apikey verify ns_abcd... --hash '$2a$12$...'`,
	Args:    cobra.ExactArgs(1),
	RunE:    runAPIKeyVerify,
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyCreateCmd)
	apiKeyCmd.AddCommand(apiKeyVerifyCmd)

	apiKeyVerifyCmd.Flags().StringVar(&apiKeyHash, "hash", "", "bcrypt hash (default from api.api_key_hash)")
	bindConfigFlag(apiKeyVerifyCmd, "hash", "api.api_key_hash")
}

// apiKeyReport is printed by apikey create.
type apiKeyReport struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
	Hash    string `json:"hash"`
	Display string `json:"display"`
}

// apiKeyCheck is printed by apikey verify.
type apiKeyCheck struct {
	Success bool   `json:"success"`
	Display string `json:"display"`
	Valid   bool   `json:"valid"`
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	generated, err := auth.GenerateKey()
	if err != nil {
		return err
	}

	return writeOutput(cmd, apiKeyReport{
		Success: true,
		Key:     generated.Key,
		Hash:    generated.Hash,
		Display: generated.Display,
	})
}

func runAPIKeyVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.API.APIKeyHash == "" {
		return errors.ErrValidation("API key hash is required")
	}

	key := args[0]
	if !auth.IsValidKeyFormat(key) {
		return errors.ErrValidation("Invalid API key format")
	}

	return writeOutput(cmd, apiKeyCheck{
		Success: true,
		Display: auth.DisplayPrefix(key),
		Valid:   auth.VerifyKey(key, cfg.API.APIKeyHash),
	})
}
