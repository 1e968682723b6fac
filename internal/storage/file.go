package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coffersTech/ruleast/internal/model"
	"github.com/coffersTech/ruleast/internal/pkg/security"
	"github.com/dustin/go-humanize"
)

const (
	snapshotFileName = "rules.snap"
	walFileName      = "rules.wal"
)

// FileStore keeps the rule table in memory, logs every insert to a WAL and
// periodically folds the WAL into a compressed snapshot.
type FileStore struct {
	dir    string
	writer *SnapshotWriter
	wal    *WAL

	mu      sync.RWMutex
	rules   []model.Rule     // ascending id
	byID    map[int64]int    // id -> index in rules
	byName  map[string]int64 // name -> id
	nextID  int64
	pending int // inserts since the last snapshot
	closed  bool
}

// OpenFileStore loads the snapshot in dir and replays the WAL on top of it.
// A nil cipher stores snapshots unencrypted.
func OpenFileStore(dir string, c *security.Cipher) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	writer, err := NewSnapshotWriter(c)
	if err != nil {
		return nil, err
	}
	reader, err := NewSnapshotReader(c)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		dir:    dir,
		writer: writer,
		byID:   make(map[int64]int),
		byName: make(map[string]int64),
		nextID: 1,
	}

	rules, nextID, err := reader.ReadSnapshot(filepath.Join(dir, snapshotFileName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	default:
		for _, r := range rules {
			s.apply(r)
		}
		if nextID > s.nextID {
			s.nextID = nextID
		}
	}

	wal, err := OpenWAL(filepath.Join(dir, walFileName))
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}
	s.wal = wal

	// Crash Recovery: records already in the snapshot are skipped
	recovered, err := wal.Replay()
	if err != nil {
		log.Printf("WAL replay warning: %v", err)
	}
	for _, r := range recovered {
		if _, ok := s.byID[r.ID]; ok {
			continue
		}
		s.apply(r)
		s.pending++
	}
	if s.pending > 0 {
		log.Printf("Crash recovery: replayed %d rules from WAL", s.pending)
	}

	return s, nil
}

// apply adds a rule to the in-memory table. Callers hold mu or own s exclusively.
func (s *FileStore) apply(r model.Rule) {
	s.byID[r.ID] = len(s.rules)
	s.byName[r.RuleName] = r.ID
	s.rules = append(s.rules, r)
	if r.ID >= s.nextID {
		s.nextID = r.ID + 1
	}
}

// Insert implements Store.
func (s *FileStore) Insert(ctx context.Context, r model.Rule) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	if _, ok := s.byName[r.RuleName]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateName, r.RuleName)
	}

	r.ID = s.nextID

	// Write to WAL first for durability
	if err := s.wal.Write(r); err != nil {
		return 0, fmt.Errorf("WAL write: %w", err)
	}
	if err := s.wal.Sync(); err != nil {
		return 0, fmt.Errorf("WAL sync: %w", err)
	}

	s.apply(r)
	s.pending++
	return r.ID, nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, id int64) (model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.Rule{}, ErrStoreClosed
	}
	idx, ok := s.byID[id]
	if !ok {
		return model.Rule{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return s.rules[idx], nil
}

// GetMany implements Store.
func (s *FileStore) GetMany(_ context.Context, ids []int64) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	result := make([]model.Rule, 0, len(ids))
	for _, id := range ids {
		idx, ok := s.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		result = append(result, s.rules[idx])
	}
	return result, nil
}

// List implements Store.
func (s *FileStore) List(_ context.Context) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	result := make([]model.Rule, len(s.rules))
	copy(result, s.rules)
	return result, nil
}

// Compact writes a snapshot of the table and truncates the WAL.
func (s *FileStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	return s.compactLocked()
}

func (s *FileStore) compactLocked() error {
	if s.pending == 0 {
		return nil
	}

	path := filepath.Join(s.dir, snapshotFileName)
	size, err := s.writer.WriteSnapshot(path, s.rules, s.nextID)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	// WAL reset only after the snapshot is safely renamed into place
	if err := s.wal.Reset(); err != nil {
		return fmt.Errorf("WAL reset: %w", err)
	}

	log.Printf("Snapshot written: %s (%d rules, %s)", snapshotFileName, len(s.rules), humanize.Bytes(uint64(size)))
	s.pending = 0
	return nil
}

// RunCompactor compacts the store every interval until ctx is done.
func (s *FileStore) RunCompactor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Compactor started. Interval: %v", interval)

	for {
		select {
		case <-ticker.C:
			if err := s.Compact(); err != nil {
				if errors.Is(err, ErrStoreClosed) {
					return
				}
				log.Printf("Compactor error: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close writes a final snapshot and closes the WAL.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.compactLocked()
	if cerr := s.wal.Close(); err == nil {
		err = cerr
	}
	return err
}
