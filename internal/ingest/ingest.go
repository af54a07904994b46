// Package ingest parses PostgreSQL csvlog files into log rows.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/nanoflow/internal/model"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// ZstdExt marks compressed log files.
const ZstdExt = ".zst"

// cancelCheckEvery is how many records are parsed between context checks.
const cancelCheckEvery = 1024

// Source is one named input. Open is called once, from the goroutine that
// parses it.
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileSource reads the log file at path.
func FileSource(path string) Source {
	return Source{
		Name: path,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Parse reads every CSV record from r. Records may have any number of
// fields; the classifier decides later which of them matter. Names ending in
// ".zst" are decompressed first.
func Parse(ctx context.Context, name string, r io.Reader) ([]model.LogRow, error) {
	if strings.EqualFold(filepath.Ext(name), ZstdExt) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, flowerr.Wrap(err, flowerr.CodeIngestParseFailure, "opening zstd stream", flowerr.FieldFile(name))
		}
		defer dec.Close()
		r = dec
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []model.LogRow
	for {
		if len(rows)%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, flowerr.Wrap(err, flowerr.CodeIngestParseFailure, "parsing csv log", flowerr.FieldFile(name))
		}
		rows = append(rows, model.LogRow(record))
	}
	return rows, nil
}

func parseSource(ctx context.Context, src Source) ([]model.LogRow, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, flowerr.Wrap(err, flowerr.CodeIngestOpenFailure, "opening log", flowerr.FieldFile(src.Name))
	}
	defer rc.Close()
	return Parse(ctx, src.Name, rc)
}

// Load parses all sources concurrently and concatenates their rows in
// argument order. If any source fails the remaining parses are cancelled and
// no rows are returned.
func Load(ctx context.Context, sources []Source) ([]model.LogRow, error) {
	if len(sources) == 0 {
		return nil, flowerr.New(flowerr.CodeIngestNoInput, "no log files given")
	}

	parts := make([][]model.LogRow, len(sources))
	g, gCtx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			rows, err := parseSource(gCtx, src)
			if err != nil {
				return err
			}
			parts[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	rows := make([]model.LogRow, 0, total)
	for _, p := range parts {
		rows = append(rows, p...)
	}
	return rows, nil
}

// LoadFiles is Load over file paths.
func LoadFiles(ctx context.Context, paths ...string) ([]model.LogRow, error) {
	sources := make([]Source, len(paths))
	for i, p := range paths {
		sources[i] = FileSource(p)
	}
	return Load(ctx, sources)
}
