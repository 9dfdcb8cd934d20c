// Package notestore keeps the ordered note history and persists it as a
// single JSON snapshot under a well-known key.
//
// The [Store] owns the in-memory ordering (most recently saved first, one
// entry per note ID) and rewrites the whole snapshot through a [Backend] on
// every mutation. Backends are plain key-value slots: a JSON file, an SQLite
// table or a PostgreSQL table.
package notestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/voicenotes/internal/note"
)

// SnapshotKey is the key the note history is stored under.
const SnapshotKey = "voiceNotesHistory"

// ErrNotFound is returned by Backend.Load when no value is stored under the key.
var ErrNotFound = errors.New("notestore: key not found")

// Backend is a durable key-value slot.
type Backend interface {
	// Load returns the value stored under key or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save replaces the value stored under key.
	Save(ctx context.Context, key string, value []byte) error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the ordered, deduplicated note history. It is safe for
// concurrent use; each mutation rewrites the full snapshot (last writer wins).
type Store struct {
	mu      sync.Mutex
	backend Backend
	notes   []note.Note
}

// Open loads the snapshot from backend. A missing snapshot yields an empty
// history. A snapshot that cannot be parsed is logged and also treated as
// empty; only backend I/O failures are returned as errors.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	s := &Store{backend: backend}

	raw, err := backend.Load(ctx, SnapshotKey)
	switch {
	case errors.Is(err, ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("notestore: load snapshot: %w", err)
	}

	var notes []note.Note
	if err := json.Unmarshal(raw, &notes); err != nil {
		slog.Warn("notestore: discarding malformed note history", "err", err, "bytes", len(raw))
		return s, nil
	}
	s.notes = dedup(notes)
	return s, nil
}

// List returns a copy of the history, most recently saved first.
func (s *Store) List() []note.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]note.Note, len(s.notes))
	copy(out, s.notes)
	return out
}

// Len returns the number of stored notes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// Get returns the note with the given ID.
func (s *Store) Get(id string) (note.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.notes[i], true
	}
	return note.Note{}, false
}

// Save inserts n or replaces the existing entry with the same ID, moving it
// to the front, and persists the snapshot. On a persistence failure the
// in-memory history is left unchanged.
func (s *Store) Save(ctx context.Context, n note.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]note.Note, 0, len(s.notes)+1)
	next = append(next, n)
	for _, existing := range s.notes {
		if existing.ID != n.ID {
			next = append(next, existing)
		}
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.notes = next
	return nil
}

// Delete removes the note with the given ID. It reports whether a note was
// removed; deleting an unknown ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return false, nil
	}
	next := make([]note.Note, 0, len(s.notes)-1)
	next = append(next, s.notes[:i]...)
	next = append(next, s.notes[i+1:]...)
	if err := s.persist(ctx, next); err != nil {
		return false, err
	}
	s.notes = next
	return true, nil
}

// Ping checks the backend when it supports health checks.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, notes []note.Note) error {
	if notes == nil {
		notes = []note.Note{}
	}
	raw, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("notestore: encode snapshot: %w", err)
	}
	if err := s.backend.Save(ctx, SnapshotKey, raw); err != nil {
		return fmt.Errorf("notestore: save snapshot: %w", err)
	}
	return nil
}

func (s *Store) index(id string) int {
	for i, n := range s.notes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// dedup keeps the first occurrence of each ID, preserving order.
func dedup(notes []note.Note) []note.Note {
	seen := make(map[string]struct{}, len(notes))
	out := notes[:0]
	for _, n := range notes {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}
