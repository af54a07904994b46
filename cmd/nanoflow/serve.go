package main

import (
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coffersTech/nanoflow/internal/metrics"
	"github.com/coffersTech/nanoflow/internal/server"
	"github.com/coffersTech/nanoflow/internal/settings"
	"github.com/coffersTech/nanoflow/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the graph API",
		Long:  "Serve exposes graph building, export, import, settings and navigation over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				a.cfg.Listen = addr
			}
			return a.serve(cmd)
		},
	}
	cmd.Flags().StringP("listen", "l", "", "address to listen on (overrides config)")
	return cmd
}

func (a *app) serve(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := settings.NewStore(a.cfg.SettingsFile)
	if err := store.Load(); err != nil {
		return err
	}

	archive, err := storage.NewArchive(filepath.Join(a.cfg.DataDir, "graphs"), a.cfg.Archive.Retention, a.logger)
	if err != nil {
		return err
	}
	go archive.RunCleaner(ctx, a.cfg.Archive.CleanInterval)

	srv, err := server.New(server.Options{
		Settings:   store,
		Archive:    archive,
		Metrics:    metrics.NewRegistry(),
		Logger:     a.logger,
		APIKeyHash: a.cfg.APIKeyHash,
	})
	if err != nil {
		return err
	}
	if _, err := srv.Restore(); err != nil {
		a.logger.Warn("could not restore archived graph", "error", err)
	}
	if a.cfg.APIKeyHash == "" {
		a.logger.Warn("api_key_hash is not set; the API is unauthenticated")
	}

	err = srv.Start(ctx, a.cfg.Listen)
	a.logger.Info("nanoflow stopped")
	return err
}
