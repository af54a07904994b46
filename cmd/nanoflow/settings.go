package main

import (
	"github.com/spf13/cobra"

	"github.com/coffersTech/nanoflow/internal/settings"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the stored graph settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := settings.NewStore(a.cfg.SettingsFile)
			if err := store.Load(); err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			return render(cmd, format, store.Get())
		},
	}
	show.Flags().StringP("format", "f", "yaml", "output format: yaml or json")

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: "Set changes one setting by its JSON name: fontSize, isTransactionView, layout, threshold, " +
			"nodeMultiplier, excludedPhrases (comma separated) or ordering.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := settings.NewStore(a.cfg.SettingsFile)
			if err := store.Load(); err != nil {
				return err
			}
			updated, err := store.Update(func(s *settings.Settings) error {
				return s.Set(args[0], args[1])
			})
			if err != nil {
				return err
			}
			a.logger.Info("settings saved", "file", a.cfg.SettingsFile, "key", args[0])
			return render(cmd, "yaml", updated)
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}
