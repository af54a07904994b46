package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/nanoflow/internal/model"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

const archivePrefix = "graph_"

// Archive keeps every built graph as a compressed snapshot in a directory.
// Files are named graph_{unixNano}.nfg after the time they were built.
type Archive struct {
	dir       string
	retention time.Duration // 0 keeps everything
	writer    *SnapshotWriter
	reader    *SnapshotReader
	logger    *slog.Logger
}

func NewArchive(dir string, retention time.Duration, logger *slog.Logger) (*Archive, error) {
	w, err := NewSnapshotWriter()
	if err != nil {
		return nil, err
	}
	r, err := NewSnapshotReader()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{dir: dir, retention: retention, writer: w, reader: r, logger: logger}, nil
}

// Save writes g to the archive and returns its path.
func (a *Archive) Save(g *model.Graph, builtAt time.Time) (string, error) {
	path := filepath.Join(a.dir, fmt.Sprintf("%s%d%s", archivePrefix, builtAt.UnixNano(), SnapshotExt))
	if err := a.writer.WriteFile(path, g, builtAt); err != nil {
		return "", err
	}
	a.logger.Info("graph archived", "file", filepath.Base(path), "nodes", len(g.Nodes), "edges", len(g.Edges))
	return path, nil
}

// List returns archived snapshot paths, oldest first.
func (a *Archive) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, flowerr.Wrap(err, flowerr.CodeSnapshotReadFailure, "reading archive dir", flowerr.FieldFile(a.dir))
	}

	type file struct {
		path string
		ts   int64
	}
	var files []file
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, err := archiveTimestamp(entry.Name())
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(a.dir, entry.Name()), ts: ts})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ts < files[j].ts })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// Latest loads the most recent archived graph.
func (a *Archive) Latest() (*Snapshot, error) {
	paths, err := a.List()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, flowerr.New(flowerr.CodeArchiveNotFound, "archive is empty", flowerr.FieldFile(a.dir))
	}
	return a.reader.ReadFile(paths[len(paths)-1])
}

// RunCleaner removes expired snapshots every interval until ctx is done.
func (a *Archive) RunCleaner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("archive cleaner started", "retention", a.retention, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if a.retention <= 0 {
				continue
			}
			a.purgeExpired(now)
		}
	}
}

// purgeExpired removes snapshots built before now-retention. The newest
// snapshot is always kept so a restart can restore it.
func (a *Archive) purgeExpired(now time.Time) int {
	paths, err := a.List()
	if err != nil {
		a.logger.Error("archive cleaner failed to list", "error", err)
		return 0
	}
	if len(paths) > 0 {
		paths = paths[:len(paths)-1]
	}

	threshold := now.Add(-a.retention).UnixNano()
	removed := 0
	for _, path := range paths {
		ts, _ := archiveTimestamp(filepath.Base(path))
		if ts >= threshold {
			continue
		}
		if err := os.Remove(path); err != nil {
			a.logger.Error("archive cleaner failed to delete", "file", filepath.Base(path), "error", err)
			continue
		}
		a.logger.Info("expired snapshot deleted", "file", filepath.Base(path))
		removed++
	}
	return removed
}

func archiveTimestamp(name string) (int64, error) {
	if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, SnapshotExt) {
		return 0, fmt.Errorf("not an archived snapshot: %s", name)
	}
	return strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), SnapshotExt), 10, 64)
}
