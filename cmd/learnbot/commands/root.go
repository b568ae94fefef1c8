// Package commands defines all Cobra CLI commands for the learnbot binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/learnbot-go/internal/audit"
	"github.com/54b3r/learnbot-go/internal/config"
	"github.com/54b3r/learnbot-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "learnbot",
		Short: "learnbot — a retrieval-augmented study assistant",
		Long: `learnbot answers questions about your own study material.

Upload text or PDF documents, then chat: each answer is grounded in the
most relevant passages retrieved from what you uploaded, with conversation
history carried across turns. Both queries and answers pass a moderation
gate before anything is shown or stored.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.learnbot/config.yaml).
See 'learnbot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Pick up a local .env first so it participates in precedence.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.learnbot/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
