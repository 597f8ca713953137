package main

import (
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/quarantine-module/internal/config"
	"github.com/bigkaa/goartstore/quarantine-module/internal/database"
)

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции схемы PostgreSQL и выйти",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cfg.ValidateDatabase(); err != nil {
				return err
			}
			logger := config.SetupLogger(opts.cfg)
			return database.Migrate(opts.cfg, logger)
		},
	}
}
