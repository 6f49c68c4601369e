package store

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrNotFound is returned by Get/Update when no record with the given id
// is indexed.
var ErrNotFound = errors.New("store: record not found")

// ErrStaleUpdate is returned by Update when the caller's view of a record
// is older than what is currently indexed, signalling a lost race that the
// caller should retry against a fresh Get.
var ErrStaleUpdate = errors.New("store: stale update")

// Store is the single source of truth for every loop record. It pairs an
// append-only log (durability) with a rebuilt in-memory index (queries),
// following the teacher's eventlog-plus-dirstore split.
type Store struct {
	log *EventLog
	ix  *Index
}

// Open opens or creates the store rooted at dir, replaying its event log
// to rebuild the index.
func Open(dir string) (*Store, error) {
	logPath := filepath.Join(dir, "records.jsonl")
	log, err := OpenEventLog(logPath)
	if err != nil {
		return nil, err
	}

	ix := NewIndex()
	if err := log.Replay(func(rec *Record) error {
		ix.apply(rec)
		return nil
	}); err != nil {
		log.Close()
		return nil, fmt.Errorf("store: rebuild index: %w", err)
	}

	return &Store{log: log, ix: ix}, nil
}

// Close releases the underlying log file.
func (s *Store) Close() error {
	return s.log.Close()
}

// Create persists a brand-new record. The caller owns rec's id; Create
// fails if an id collision is detected in the index.
func (s *Store) Create(rec *Record) error {
	if _, ok := s.ix.Get(rec.ID); ok {
		return fmt.Errorf("store: create %s: %w", rec.ID, errors.New("id already exists"))
	}
	if err := s.log.Append(rec); err != nil {
		return err
	}
	s.ix.apply(rec)
	return nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (*Record, error) {
	rec, ok := s.ix.Get(id)
	if !ok {
		return nil, fmt.Errorf("store: get %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

// Children returns the direct children of a record in creation order.
func (s *Store) Children(id string) []*Record {
	return s.ix.Children(id)
}

// List returns every record matching f.
func (s *Store) List(f Filter) []*Record {
	return s.ix.List(f)
}

// Depth returns how many ancestors id has (0 for a root Plan).
func (s *Store) Depth(id string) int {
	return s.ix.Depth(id)
}

// Mutate reads the current record, applies fn to a mutable copy, stamps
// UpdatedAt strictly later than its previous value, and durably persists
// the result. fn must not retain rec past its call.
func (s *Store) Mutate(id string, fn func(rec *Record) error) (*Record, error) {
	rec, ok := s.ix.Get(id)
	if !ok {
		return nil, fmt.Errorf("store: mutate %s: %w", id, ErrNotFound)
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	now := NowMillis()
	if now <= rec.UpdatedAt {
		now = rec.UpdatedAt + 1
	}
	rec.UpdatedAt = now

	if err := s.log.Append(rec); err != nil {
		return nil, err
	}
	s.ix.apply(rec)
	return rec, nil
}

// Len reports the number of records currently indexed.
func (s *Store) Len() int {
	return s.ix.Len()
}

// LogSize reports the current on-disk size of the append-only log in bytes.
func (s *Store) LogSize() int64 {
	return s.log.Size()
}
