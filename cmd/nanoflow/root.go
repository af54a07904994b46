package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coffersTech/nanoflow/internal/config"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd creates the root nanoflow command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "nanoflow",
		Short:         "Turn PostgreSQL logs into a statement transition graph",
		Long:          "nanoflow reads PostgreSQL csvlog files and builds a weighted graph of how SQL statements follow each other within sessions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "directory for archived graphs and settings")
	root.PersistentFlags().String("settings-file", "", "path to the settings JSON file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json)")

	root.AddCommand(
		newBuildCmd(a),
		newSequencesCmd(a),
		newInspectCmd(),
		newServeCmd(a),
		newSettingsCmd(a),
		newHashKeyCmd(),
	)

	return root
}

// init resolves configuration with the usual precedence:
// flag > env > file > defaults.
func (a *app) init(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"data_dir":      "data-dir",
		"settings_file": "settings-file",
		"log.level":     "log-level",
		"log.format":    "log-format",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			if err := a.v.BindPFlag(key, f); err != nil {
				return flowerr.Wrapf(err, flowerr.CodeCLIInputInvalid, "binding %s flag", flag)
			}
		}
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(a.v, cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(cmd.ErrOrStderr())
	return nil
}
