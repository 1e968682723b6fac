package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/coffersTech/ruleast/internal/model"
)

// WAL records inserted rules until they are folded into a snapshot.
type WAL struct {
	file *os.File
	path string
	mu   sync.Mutex
}

// OpenWAL opens or creates a WAL file at the specified path.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &WAL{
		file: f,
		path: path,
	}, nil
}

// Write appends a rule record to the WAL.
func (w *WAL) Write(r model.Rule) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	// Format: [Len uint32][JSON Bytes]
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)

	_, err = w.file.Write(buf)
	return err
}

// Sync flushes the WAL file buffers to disk.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Reset truncates the WAL file.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, io.SeekStart)
	return err
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	return w.file.Close()
}

// Replay reads every record in the WAL.
// A torn record at the tail, left by a crash mid-write, ends the replay without error.
func (w *WAL) Replay() ([]model.Rule, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var rules []model.Rule
	lenBuf := make([]byte, 4)
	for {
		_, err := io.ReadFull(w.file, lenBuf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return rules, fmt.Errorf("WAL replay error (len): %w", err)
		}

		data := make([]byte, binary.LittleEndian.Uint32(lenBuf))
		if _, err := io.ReadFull(w.file, data); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return rules, fmt.Errorf("WAL replay error (data): %w", err)
		}

		var r model.Rule
		if err := json.Unmarshal(data, &r); err != nil {
			return rules, fmt.Errorf("WAL replay error (unmarshal): %w", err)
		}
		rules = append(rules, r)
	}

	return rules, nil
}
