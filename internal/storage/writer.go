package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"

	"github.com/coffersTech/ruleast/internal/model"
	"github.com/coffersTech/ruleast/internal/pkg/security"
	"github.com/klauspost/compress/zstd"
)

// MagicHeader opens every snapshot file.
var MagicHeader = []byte("RULEAST1")

const (
	flagPlain  byte = 0
	flagSealed byte = 1

	// footerSize is RowCount (4) + NextID (8).
	footerSize = 12
)

// SnapshotWriter writes the rule table to a snapshot file.
//
// Layout: Header(8) Flags(1) [Size uint32][Block] Footer(RowCount uint32, NextID int64).
// Block is the zstd compressed record list, sealed with AES-GCM when a cipher is set.
type SnapshotWriter struct {
	encoder *zstd.Encoder
	cipher  *security.Cipher
}

// NewSnapshotWriter creates a writer. A nil cipher writes plain snapshots.
func NewSnapshotWriter(c *security.Cipher) (*SnapshotWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{encoder: enc, cipher: c}, nil
}

// WriteSnapshot atomically replaces the snapshot at path and returns its size in bytes.
func (sw *SnapshotWriter) WriteSnapshot(path string, rules []model.Rule, nextID int64) (int64, error) {
	raw := new(bytes.Buffer)
	// Serialize: [Len uint32][JSON]...
	for _, r := range rules {
		data, err := json.Marshal(r)
		if err != nil {
			return 0, err
		}
		binary.Write(raw, binary.LittleEndian, uint32(len(data)))
		raw.Write(data)
	}

	block := sw.encoder.EncodeAll(raw.Bytes(), make([]byte, 0, raw.Len()))
	flags := flagPlain
	if sw.cipher != nil {
		sealed, err := sw.cipher.Encrypt(block)
		if err != nil {
			return 0, err
		}
		block = sealed
		flags = flagSealed
	}

	out := new(bytes.Buffer)
	out.Write(MagicHeader)
	out.WriteByte(flags)
	binary.Write(out, binary.LittleEndian, uint32(len(block)))
	out.Write(block)
	binary.Write(out, binary.LittleEndian, uint32(len(rules)))
	binary.Write(out, binary.LittleEndian, nextID)

	// Write to temp file first
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out.Bytes(), 0600); err != nil {
		return 0, err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, err
	}
	return int64(out.Len()), nil
}
