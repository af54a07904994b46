package storage

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/nanoflow/internal/model"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// maxPrealloc caps the buffer reserved from an untrusted footer.
const maxPrealloc = 64 << 20

// Snapshot is a decoded compressed snapshot.
type Snapshot struct {
	Graph     *model.Graph
	CreatedAt time.Time
}

type SnapshotReader struct {
	decoder *zstd.Decoder
}

func NewSnapshotReader() (*SnapshotReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotReader{decoder: dec}, nil
}

// IsCompressed reports whether data starts with the snapshot magic header.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, MagicHeader)
}

// ReadSnapshot decodes a compressed snapshot held in memory. The footer
// counts must agree with the decoded graph.
func (sr *SnapshotReader) ReadSnapshot(data []byte) (*Snapshot, error) {
	if !IsCompressed(data) {
		return nil, invalid("missing %s header", MagicHeader)
	}
	if len(data) < len(MagicHeader)+4+footerSize {
		return nil, invalid("file too small")
	}

	footer := data[len(data)-footerSize:]
	nodeCount := binary.LittleEndian.Uint32(footer[0:4])
	edgeCount := binary.LittleEndian.Uint32(footer[4:8])
	createdAt := int64(binary.LittleEndian.Uint64(footer[8:16]))
	rawSize := binary.LittleEndian.Uint32(footer[16:20])

	body := data[len(MagicHeader) : len(data)-footerSize]
	size := binary.LittleEndian.Uint32(body[0:4])
	if int(size) != len(body)-4 {
		return nil, invalid("block size %d does not match file", size)
	}

	raw, err := sr.decoder.DecodeAll(body[4:], make([]byte, 0, min(int(rawSize), maxPrealloc)))
	if err != nil {
		return nil, flowerr.Wrap(err, flowerr.CodeSnapshotInvalid, "decompressing snapshot")
	}
	if uint32(len(raw)) != rawSize {
		return nil, invalid("decompressed %d bytes, footer says %d", len(raw), rawSize)
	}

	g, err := Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	if uint32(len(g.Nodes)) != nodeCount || uint32(len(g.Edges)) != edgeCount {
		return nil, invalid("graph has %d nodes and %d edges, footer says %d and %d",
			len(g.Nodes), len(g.Edges), nodeCount, edgeCount)
	}
	return &Snapshot{Graph: g, CreatedAt: time.Unix(0, createdAt)}, nil
}

// ReadFile decodes the compressed snapshot at path.
func (sr *SnapshotReader) ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, flowerr.Wrap(err, flowerr.CodeSnapshotReadFailure, "reading snapshot", flowerr.FieldFile(path))
	}
	return sr.ReadSnapshot(data)
}

// Decode accepts either a compressed or a plain JSON snapshot.
func (sr *SnapshotReader) Decode(r io.Reader) (*model.Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, flowerr.Wrap(err, flowerr.CodeSnapshotReadFailure, "reading snapshot")
	}
	if IsCompressed(data) {
		snap, err := sr.ReadSnapshot(data)
		if err != nil {
			return nil, err
		}
		return snap.Graph, nil
	}
	return Unmarshal(data)
}
