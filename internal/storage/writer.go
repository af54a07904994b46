package storage

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/nanoflow/internal/model"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// MagicHeader opens every compressed snapshot.
var MagicHeader = []byte("NANOFLW1")

// SnapshotExt is the file extension of compressed snapshots.
const SnapshotExt = ".nfg"

// footerSize is NodeCount(4) + EdgeCount(4) + CreatedAt(8) + RawSize(4).
const footerSize = 20

// SnapshotWriter writes compressed snapshots:
//
//	Header "NANOFLW1" | Size uint32 | zstd(JSON snapshot) | Footer
//
// All integers are little endian.
type SnapshotWriter struct {
	encoder *zstd.Encoder
}

func NewSnapshotWriter() (*SnapshotWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{encoder: enc}, nil
}

// WriteSnapshot writes g to w, stamped with createdAt.
func (sw *SnapshotWriter) WriteSnapshot(w io.Writer, g *model.Graph, createdAt time.Time) error {
	raw, err := Marshal(g)
	if err != nil {
		return err
	}
	compressed := sw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	buf := new(bytes.Buffer)
	buf.Grow(len(MagicHeader) + 4 + len(compressed) + footerSize)
	buf.Write(MagicHeader)
	binary.Write(buf, binary.LittleEndian, uint32(len(compressed)))
	buf.Write(compressed)

	var nodes, edges int
	if g != nil {
		nodes, edges = len(g.Nodes), len(g.Edges)
	}
	binary.Write(buf, binary.LittleEndian, uint32(nodes))
	binary.Write(buf, binary.LittleEndian, uint32(edges))
	binary.Write(buf, binary.LittleEndian, createdAt.UnixNano())
	binary.Write(buf, binary.LittleEndian, uint32(len(raw)))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return flowerr.Wrap(err, flowerr.CodeSnapshotWriteFailure, "writing compressed snapshot")
	}
	return nil
}

// WriteFile writes g to path through a temporary file, so readers never
// see a partial snapshot.
func (sw *SnapshotWriter) WriteFile(path string, g *model.Graph, createdAt time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return flowerr.Wrap(err, flowerr.CodeSnapshotWriteFailure, "creating snapshot dir", flowerr.FieldFile(path))
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return flowerr.Wrap(err, flowerr.CodeSnapshotWriteFailure, "creating snapshot", flowerr.FieldFile(path))
	}
	if err := sw.WriteSnapshot(f, g, createdAt); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return flowerr.Wrap(err, flowerr.CodeSnapshotWriteFailure, "closing snapshot", flowerr.FieldFile(path))
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return flowerr.Wrap(err, flowerr.CodeSnapshotWriteFailure, "renaming snapshot", flowerr.FieldFile(path))
	}
	return nil
}
