package main

import (
	"github.com/spf13/cobra"

	"github.com/coffersTech/nanoflow/internal/engine"
	"github.com/coffersTech/nanoflow/internal/settings"
)

// addTransformFlags registers flags that override stored settings for a
// single run.
func addTransformFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("transaction-view", false, "prefix statements that share a transaction with \"T:\"")
	f.Float64("threshold", 0, "drop edges seen fewer times than this (0 keeps all)")
	f.Float64("multiplier", 0, "node size multiplier")
	f.StringSlice("exclude", nil, "skip statements containing any of these phrases")
	f.String("ordering", "", "row ordering: arrival or session")
}

// transformOptions loads the stored settings and applies any flags the user
// set on the command line.
func (a *app) transformOptions(cmd *cobra.Command) (engine.Options, error) {
	store := settings.NewStore(a.cfg.SettingsFile)
	if err := store.Load(); err != nil {
		return engine.Options{}, err
	}
	s := store.Get()

	f := cmd.Flags()
	if f.Changed("transaction-view") {
		s.IsTransactionView, _ = f.GetBool("transaction-view")
	}
	if f.Changed("threshold") {
		s.Threshold, _ = f.GetFloat64("threshold")
	}
	if f.Changed("multiplier") {
		s.NodeMultiplier, _ = f.GetFloat64("multiplier")
	}
	if f.Changed("exclude") {
		s.ExcludedPhrases, _ = f.GetStringSlice("exclude")
	}
	if f.Changed("ordering") {
		s.Ordering, _ = f.GetString("ordering")
	}

	if err := s.Validate(); err != nil {
		return engine.Options{}, err
	}
	return s.EngineOptions(), nil
}
