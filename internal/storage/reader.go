package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/coffersTech/ruleast/internal/model"
	"github.com/coffersTech/ruleast/internal/pkg/security"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrInvalidHeader = errors.New("invalid snapshot header")
	ErrSealed        = errors.New("snapshot is encrypted but no key is configured")
)

// SnapshotReader reads snapshot files written by SnapshotWriter.
type SnapshotReader struct {
	decoder *zstd.Decoder
	cipher  *security.Cipher
}

// NewSnapshotReader creates a reader. The cipher is required only for sealed snapshots.
func NewSnapshotReader(c *security.Cipher) (*SnapshotReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotReader{decoder: dec, cipher: c}, nil
}

// ReadSnapshot returns the rules and the next id recorded in the snapshot at path.
func (sr *SnapshotReader) ReadSnapshot(path string) ([]model.Rule, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	// 1. Validate Header
	minSize := len(MagicHeader) + 1 + 4 + footerSize
	if len(data) < minSize {
		return nil, 0, errors.New("snapshot too small")
	}
	if !bytes.Equal(data[:len(MagicHeader)], MagicHeader) {
		return nil, 0, ErrInvalidHeader
	}
	flags := data[len(MagicHeader)]

	// 2. Read Footer (at end of file)
	footer := data[len(data)-footerSize:]
	rowCount := binary.LittleEndian.Uint32(footer[0:4])
	nextID := int64(binary.LittleEndian.Uint64(footer[4:12]))

	// 3. Read block
	body := bytes.NewReader(data[len(MagicHeader)+1 : len(data)-footerSize])
	var size uint32
	if err := binary.Read(body, binary.LittleEndian, &size); err != nil {
		return nil, 0, err
	}
	block := make([]byte, size)
	if _, err := io.ReadFull(body, block); err != nil {
		return nil, 0, fmt.Errorf("snapshot block: %w", err)
	}

	if flags == flagSealed {
		if sr.cipher == nil {
			return nil, 0, ErrSealed
		}
		block, err = sr.cipher.Decrypt(block)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decrypt snapshot (invalid key or corrupted file): %w", err)
		}
	}

	raw, err := sr.decoder.DecodeAll(block, nil)
	if err != nil {
		return nil, 0, err
	}

	rules, err := decodeRecords(raw)
	if err != nil {
		return nil, 0, err
	}
	if len(rules) != int(rowCount) {
		return nil, 0, errors.New("row count mismatch")
	}
	return rules, nextID, nil
}

// decodeRecords splits [Len uint32][JSON]... into rules.
func decodeRecords(raw []byte) ([]model.Rule, error) {
	var rules []model.Rule
	buf := bytes.NewReader(raw)

	for buf.Len() > 0 {
		var length uint32
		if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
			return nil, err
		}
		rec := make([]byte, length)
		if _, err := io.ReadFull(buf, rec); err != nil {
			return nil, err
		}
		var r model.Rule
		if err := json.Unmarshal(rec, &r); err != nil {
			return nil, fmt.Errorf("snapshot record: %w", err)
		}
		rules = append(rules, r)
	}

	return rules, nil
}
