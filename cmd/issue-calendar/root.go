package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opsboard/issue-calendar/internal/config"
	"github.com/opsboard/issue-calendar/internal/logging"
)

// app is the state shared by all subcommands.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() (*cobra.Command, error) {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "issue-calendar",
		Short: "Weekly issue calendar service",
		Long: `issue-calendar lets workers look up support tickets, place them on a
weekly calendar, and export weekly reports.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.configFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "YAML config file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("db", "issue-calendar.db", "SQLite database path")
	err := errors.Join(
		a.v.BindPFlag("log_level", flags.Lookup("log-level")),
		a.v.BindPFlag("db", flags.Lookup("db")),
	)
	if err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	serve, err := newServeCmd(a)
	if err != nil {
		return nil, err
	}
	root.AddCommand(serve)
	root.AddCommand(newReportCmd(a))
	return root, nil
}
