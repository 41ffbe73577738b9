package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BaSui01/catalogfed/config"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "catalogfed",
		Short:         "Federated catalog queries over memory, HTTP, SQL and Redis sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(newQueryCmd(flags))
	cmd.AddCommand(newSourcesCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newMigrateCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig reads the configuration named by --config, with environment
// overrides, and applies --log-level.
func loadConfig(flags *rootFlags) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader().WithConfigPath(flags.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, newCommandError("load configuration", err,
			"Check the file passed with --config and the CATALOGFED_* environment variables.")
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, loader, nil
}

type commandError struct {
	operation  string
	cause      error
	suggestion string
}

func newCommandError(operation string, cause error, suggestion string) error {
	return &commandError{operation: operation, cause: cause, suggestion: suggestion}
}

func (e *commandError) Error() string {
	if e.suggestion == "" {
		return fmt.Sprintf("failed to %s: %v", e.operation, e.cause)
	}
	return fmt.Sprintf("failed to %s: %v\n\nSuggestion: %s", e.operation, e.cause, e.suggestion)
}

func (e *commandError) Unwrap() error { return e.cause }
