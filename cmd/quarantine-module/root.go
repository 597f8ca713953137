package main

import (
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/quarantine-module/internal/config"
)

// cliOptions — общие флаги всех команд.
type cliOptions struct {
	configFile string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           "quarantine-module",
		Short:         "Карантин и проверка безопасности входящих файлов",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.Version = config.Version
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML-файл конфигурации (переменные QR_* имеют приоритет)")

	serve := newServeCmd(opts)
	cmd.AddCommand(
		serve,
		newMigrateCmd(opts),
		newScanCmd(opts),
	)

	// Без подкоманды запускается сервер.
	cmd.RunE = serve.RunE

	return cmd
}
