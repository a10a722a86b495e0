// Package commands defines all Cobra CLI commands for the mbsiq binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/quantdesk/mbsiq/internal/audit"
	"github.com/quantdesk/mbsiq/internal/config"
	"github.com/quantdesk/mbsiq/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mbsiq",
		Short: "MBS-IQ — mortgage-backed securities Q&A and portfolio analytics",
		Long: `MBS-IQ answers natural-language questions about mortgage-backed
securities by retrieving the most relevant business rules from its corpus and
enriching the answer with deterministic portfolio analytics: prepayment speed
conversions, pool health scoring, and TBA market summaries.

The embedding backend is selected via the EMBEDDING_PROVIDER environment
variable or a YAML config file (~/.mbsiq/config.yaml). The default "local"
backend is fully deterministic and needs no external service.
See 'mbsiq --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.mbsiq/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewAnalyzeCmd(),
		NewServeCmd(),
		NewSeedCmd(),
		NewVersionCmd(),
	)

	return root
}
