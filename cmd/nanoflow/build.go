package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/nanoflow/internal/engine"
	"github.com/coffersTech/nanoflow/internal/ingest"
	"github.com/coffersTech/nanoflow/internal/model"
	"github.com/coffersTech/nanoflow/internal/storage"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <log.csv>...",
		Short: "Build a graph snapshot from csvlog files",
		Long: "Build parses every given csvlog file (optionally .zst compressed) and writes the resulting graph " +
			"as JSON to stdout, or to --out. An --out path ending in .nfg is written as a compressed snapshot.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.transformOptions(cmd)
			if err != nil {
				return err
			}
			res, err := a.transformFiles(cmd, args, opts)
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return storage.Export(cmd.OutOrStdout(), res.Graph)
			}
			return writeSnapshot(out, res.Graph)
		},
	}
	cmd.Flags().StringP("out", "o", "", "write the snapshot to this file instead of stdout")
	addTransformFlags(cmd)
	return cmd
}

// transformFiles loads files and runs the transform, logging a summary.
func (a *app) transformFiles(cmd *cobra.Command, paths []string, opts engine.Options) (*engine.Result, error) {
	start := time.Now()
	rows, err := ingest.LoadFiles(cmd.Context(), paths...)
	if err != nil {
		return nil, err
	}

	res := engine.Transform(rows, opts)
	a.logger.Info("graph built",
		"files", len(paths),
		"rows", res.Stats.Rows,
		"entries", res.Stats.Entries,
		"excluded", res.Stats.Excluded,
		"nodes", res.Stats.Nodes,
		"edges", res.Stats.Edges,
		"pruned_nodes", res.Stats.PrunedNodes(),
		"pruned_edges", res.Stats.PrunedEdges(),
		"sequences", res.Stats.Sequences,
		"duration", time.Since(start))
	if res.Graph.Empty() {
		a.logger.Warn("graph is empty",
			"threshold", opts.Threshold,
			"excluded_phrases", opts.ExcludedPhrases)
	}
	return res, nil
}

func writeSnapshot(path string, g *model.Graph) error {
	if strings.EqualFold(filepath.Ext(path), storage.SnapshotExt) {
		w, err := storage.NewSnapshotWriter()
		if err != nil {
			return err
		}
		return w.WriteFile(path, g, time.Now())
	}

	f, err := os.Create(path)
	if err != nil {
		return flowerr.Wrap(err, flowerr.CodeSnapshotWriteFailure, "creating snapshot", flowerr.FieldFile(path))
	}
	if err := storage.Export(f, g); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return flowerr.Wrap(err, flowerr.CodeSnapshotWriteFailure, "closing snapshot", flowerr.FieldFile(path))
	}
	return nil
}

// readSnapshot loads a JSON or compressed snapshot from path, or stdin for "-".
func readSnapshot(path string, stdin io.Reader) (*model.Graph, error) {
	r, err := storage.NewSnapshotReader()
	if err != nil {
		return nil, err
	}
	if path == "-" {
		return r.Decode(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, flowerr.Wrap(err, flowerr.CodeSnapshotReadFailure, "opening snapshot", flowerr.FieldFile(path))
	}
	defer f.Close()
	return r.Decode(f)
}
