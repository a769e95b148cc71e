package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxindex/internal/config"
	"github.com/teemow/inboxindex/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logFormat string
	debug     bool
	envFile   string
}

var flags globalFlags

// rootCmd represents the base command for the inboxindex application
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inboxindex",
		Short: "Keeps a Gmail credential alive and indexes the mailbox into a row store",
		Long: `inboxindex authorizes against Gmail once, keeps the refreshable credential
in a durable store, and copies the mailbox into a row store:

  - backfill lists message ids in fixed time windows and records them
  - hydrate fetches headers and bodies for the messages of a day
  - search runs a Gmail query and returns decoded bodies

It can run as a one-shot CLI or as a long-running control server.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", envOr("LOG_FORMAT", logging.FormatText), "Log format: text or json. Can also use LOG_FORMAT env var.")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file (default: .env if present)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newBackfillCmd())
	cmd.AddCommand(newHydrateCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxindex version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger for a command run.
func setup(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	logger, err := logging.New(cmd.ErrOrStderr(), flags.logFormat, flags.debug)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of inboxindex",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inboxindex version %s\n", version)
		},
	}
}
