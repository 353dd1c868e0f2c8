package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/patrikhermansson/cbir/store"
)

func openTemp(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(context.Background(), path, store.DefaultOptions)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func doc(id string, field []byte) store.Document {
	return store.Document{ID: id, Fields: map[string][]byte{"f": field}}
}

func TestAppendCommitReopen(t *testing.T) {
	s, path := openTemp(t)
	w, err := s.Writer()
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		id, err := w.Append(doc(name, []byte{byte(i)}))
		if err != nil {
			t.Fatal(err)
		}
		if id != uint32(i) {
			t.Errorf("Append(%s) id = %d; want %d", name, id, i)
		}
	}
	if s.MaxDoc() != 0 {
		t.Errorf("uncommitted documents are visible")
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := w.Delete(1); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = store.Open(context.Background(), path, store.DefaultOptions)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.MaxDoc() != 3 || s.NumDocs() != 2 {
		t.Fatalf("MaxDoc, NumDocs = %d, %d; want 3, 2", s.MaxDoc(), s.NumDocs())
	}
	if !s.IsDeleted(1) || s.IsDeleted(0) {
		t.Errorf("deleted bitmap not restored")
	}
	live := s.LiveIDs()
	if len(live) != 2 || live[0] != 0 || live[1] != 2 {
		t.Errorf("LiveIDs = %v; want [0 2]", live)
	}
	d, err := s.Document(2)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "c.jpg" || d.Fields["f"][0] != 2 {
		t.Errorf("Document(2) = %+v", d)
	}
	if _, err := s.Document(1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Document(deleted) error = %v; want ErrNotFound", err)
	}
	if _, err := s.Document(9); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Document(9) error = %v; want ErrNotFound", err)
	}
}

func TestScanSkipsDeleted(t *testing.T) {
	s, _ := openTemp(t)
	w, _ := s.Writer()
	for _, name := range []string{"x", "y", "z"} {
		w.Append(doc(name, nil))
	}
	w.Delete(0)
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}
	var seen []string
	err := s.Scan(func(id uint32, d store.Document) error {
		seen = append(seen, d.ID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "y" || seen[1] != "z" {
		t.Errorf("Scan saw %v; want [y z]", seen)
	}

	stop := errors.New("stop")
	if err := s.Scan(func(uint32, store.Document) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("Scan error = %v; want callback error", err)
	}
}

func TestSingleWriter(t *testing.T) {
	s, _ := openTemp(t)
	w, err := s.Writer()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Writer(); !errors.Is(err, store.ErrWriterActive) {
		t.Errorf("second Writer error = %v; want ErrWriterActive", err)
	}
	w.Append(doc("lost", nil))
	w.Close()
	if _, err := w.Append(doc("late", nil)); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Append after Close error = %v; want ErrClosed", err)
	}
	w2, err := s.Writer()
	if err != nil {
		t.Fatalf("Writer after Close: %v", err)
	}
	if err := w2.Commit(); err != nil {
		t.Fatal(err)
	}
	if s.MaxDoc() != 0 {
		t.Errorf("discarded documents were committed")
	}
}

func TestWriterValidation(t *testing.T) {
	s, _ := openTemp(t)
	w, _ := s.Writer()
	if _, err := w.Append(store.Document{}); !errors.Is(err, store.ErrInvalidID) {
		t.Errorf("Append without id error = %v; want ErrInvalidID", err)
	}
	if err := w.Delete(0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete(0) on empty store error = %v; want ErrNotFound", err)
	}
	w.Append(doc("p", nil))
	if err := w.Delete(0); err != nil {
		t.Errorf("Delete of pending document: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}
	if !s.IsDeleted(0) || s.NumDocs() != 0 {
		t.Errorf("pending deletion not applied")
	}
}

func TestOpenLockedGivesUp(t *testing.T) {
	_, path := openTemp(t)
	opts := store.Options{LockTimeout: 20 * time.Millisecond, RetryFor: 100 * time.Millisecond}
	start := time.Now()
	if _, err := store.Open(context.Background(), path, opts); err == nil {
		t.Fatal("second Open of a locked store succeeded")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Open retried for %s", time.Since(start))
	}
}

func TestClosedStore(t *testing.T) {
	s, _ := openTemp(t)
	s.Close()
	if _, err := s.Document(0); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Document after Close error = %v; want ErrClosed", err)
	}
	if _, err := s.Writer(); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Writer after Close error = %v; want ErrClosed", err)
	}
}
