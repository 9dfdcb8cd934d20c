package notestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/voicenotes/internal/note"
)

// memBackend is an in-memory Backend for tests.
type memBackend struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	saveErr error
	loadErr error
}

func newMemBackend() *memBackend { return &memBackend{data: map[string][]byte{}} }

func (m *memBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *memBackend) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func mustOpen(t *testing.T, b Backend) *Store {
	t.Helper()
	s, err := Open(context.Background(), b)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func ids(notes []note.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func TestOpen_MissingSnapshot(t *testing.T) {
	t.Parallel()

	s := mustOpen(t, newMemBackend())
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestOpen_MalformedSnapshotIsEmpty(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	b.data[SnapshotKey] = []byte("{not json")
	s := mustOpen(t, b)
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestOpen_BackendError(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	b.loadErr = errors.New("disk gone")
	if _, err := Open(context.Background(), b); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpen_DedupsStoredDuplicates(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	b.data[SnapshotKey] = []byte(`[{"id":"a","title":"first"},{"id":"b"},{"id":"a","title":"stale"}]`)
	s := mustOpen(t, b)
	got := s.List()
	if len(got) != 2 || got[0].Title != "first" {
		t.Fatalf("got %+v", got)
	}
}

func TestSave_NewestFirstAndDedup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newMemBackend()
	s := mustOpen(t, b)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, note.Note{ID: id, RawTranscription: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Save(ctx, note.Note{ID: "a", RawTranscription: "updated"}); err != nil {
		t.Fatal(err)
	}

	got := s.List()
	if fmt.Sprint(ids(got)) != "[a c b]" {
		t.Fatalf("order = %v, want [a c b]", ids(got))
	}
	if got[0].RawTranscription != "updated" {
		t.Errorf("last write should win, got %q", got[0].RawTranscription)
	}
	if b.saves != 4 {
		t.Errorf("expected a full rewrite per mutation, got %d saves", b.saves)
	}

	reopened := mustOpen(t, b)
	if fmt.Sprint(ids(reopened.List())) != "[a c b]" {
		t.Errorf("reloaded order = %v", ids(reopened.List()))
	}
}

func TestSave_NeverDuplicatesUnderAnySequence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := mustOpen(t, newMemBackend())
	seq := []string{"x", "y", "x", "z", "y", "y", "x"}
	for i, id := range seq {
		if err := s.Save(ctx, note.Note{ID: id, Timestamp: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	seen := map[string]bool{}
	for _, n := range s.List() {
		if seen[n.ID] {
			t.Fatalf("duplicate id %q", n.ID)
		}
		seen[n.ID] = true
	}
	if s.Len() != 3 {
		t.Errorf("expected 3 notes, got %d", s.Len())
	}
}

func TestSave_PersistFailureKeepsMemory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newMemBackend()
	s := mustOpen(t, b)
	if err := s.Save(ctx, note.Note{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	b.saveErr = errors.New("quota exceeded")
	if err := s.Save(ctx, note.Note{ID: "b"}); err == nil {
		t.Fatal("expected error")
	}
	if s.Len() != 1 {
		t.Errorf("failed save must not change history, len=%d", s.Len())
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := mustOpen(t, newMemBackend())
	_ = s.Save(ctx, note.Note{ID: "a"})
	_ = s.Save(ctx, note.Note{ID: "b"})

	removed, err := s.Delete(ctx, "a")
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	if _, ok := s.Get("a"); ok {
		t.Error("a should be gone")
	}
	removed, err = s.Delete(ctx, "missing")
	if err != nil || removed {
		t.Errorf("deleting unknown id = %v, %v", removed, err)
	}
}

func TestPersistedShape(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	s := mustOpen(t, b)
	_ = s.Save(context.Background(), note.Note{ID: "a", Title: "T", RawTranscription: "r", PolishedNote: "p", Timestamp: 5})
	want := `[{"id":"a","title":"T","rawTranscription":"r","polishedNote":"p","timestamp":5}]`
	if got := string(b.data[SnapshotKey]); got != want {
		t.Errorf("snapshot = %s\nwant %s", got, want)
	}

	_, _ = s.Delete(context.Background(), "a")
	if got := string(b.data[SnapshotKey]); got != "[]" {
		t.Errorf("empty snapshot = %s, want []", got)
	}
}
