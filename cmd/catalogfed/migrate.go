package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BaSui01/catalogfed/config"
	"github.com/BaSui01/catalogfed/internal/migration"
)

type migrateOptions struct {
	sourceID string
}

func newMigrateCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the catalog table schema of an sql source",
	}
	cmd.PersistentFlags().StringVarP(&opts.sourceID, "source", "s", "", "ID of the sql source to migrate (required)")
	_ = cmd.MarkPersistentFlagRequired("source")

	run := func(action func(cli *migration.CLI, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, rootFlags, opts, action)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(cli *migration.CLI, cmd *cobra.Command) error {
			return cli.RunUp(cmd.Context())
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: run(func(cli *migration.CLI, cmd *cobra.Command) error {
			return cli.RunDown(cmd.Context())
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: run(func(cli *migration.CLI, cmd *cobra.Command) error {
			return cli.RunStatus(cmd.Context())
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: run(func(cli *migration.CLI, cmd *cobra.Command) error {
			return cli.RunVersion(cmd.Context())
		}),
	})

	return cmd
}

func runMigrate(cmd *cobra.Command, rootFlags *rootFlags, opts *migrateOptions, action func(*migration.CLI, *cobra.Command) error) error {
	cfg, _, err := loadConfig(rootFlags)
	if err != nil {
		return err
	}

	sc, err := findSource(cfg, opts.sourceID)
	if err != nil {
		return newCommandError("select source", err, "Run 'catalogfed sources' to list the configured ids.")
	}
	migCfg, err := migration.ConfigForSource(sc)
	if err != nil {
		return newCommandError("select source", err, "")
	}

	migrator, err := migration.NewMigrator(cmd.Context(), migCfg)
	if err != nil {
		return newCommandError("connect to "+sc.ID, err, "Check the driver and dsn of the source.")
	}
	defer func() { _ = migrator.Close() }()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(cmd.OutOrStdout())
	return action(cli, cmd)
}

func findSource(cfg *config.Config, id string) (config.SourceConfig, error) {
	for _, sc := range cfg.Sources {
		if sc.ID == id {
			return sc, nil
		}
	}
	return config.SourceConfig{}, fmt.Errorf("no source with id %q", id)
}
