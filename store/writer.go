package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// Writer buffers appends and deletions until Commit. It is safe for concurrent
// use, but the pipeline funnels all writes through a single goroutine anyway.
type Writer struct {
	store *Store

	mu      sync.Mutex
	pending []Document
	deletes *roaring.Bitmap
}

// Writer opens the single writer of the store.
func (s *Store) Writer() (*Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.writer != nil {
		return nil, ErrWriterActive
	}
	s.writer = &Writer{store: s, deletes: roaring.New()}
	return s.writer, nil
}

// Append buffers doc and returns the internal id it will have once committed.
func (w *Writer) Append(doc Document) (uint32, error) {
	if doc.ID == "" {
		return 0, ErrInvalidID
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.store == nil {
		return 0, ErrClosed
	}
	id := w.store.MaxDoc() + uint32(len(w.pending))
	w.pending = append(w.pending, doc)
	return id, nil
}

// Delete marks id as deleted. It may name a committed or a pending document.
func (w *Writer) Delete(id uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.store == nil {
		return ErrClosed
	}
	if id >= w.store.MaxDoc()+uint32(len(w.pending)) {
		return fmt.Errorf("delete document %d: %w", id, ErrNotFound)
	}
	w.deletes.Add(id)
	return nil
}

// Pending returns the number of buffered appends.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Commit writes all buffered documents and deletions in one transaction.
// On failure nothing becomes visible and the buffer is kept.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.store == nil {
		return ErrClosed
	}
	s := w.store

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	deleted := s.deleted.Clone()
	deleted.Or(w.deletes)
	maxDoc := s.maxDoc + uint32(len(w.pending))

	err := s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(docsBucket)
		for i, doc := range w.pending {
			v, err := encodeDocument(doc)
			if err != nil {
				return fmt.Errorf("document %q: %w", doc.ID, err)
			}
			if err := docs.Put(idKey(s.maxDoc+uint32(i)), v); err != nil {
				return err
			}
		}
		meta := tx.Bucket(metaBucket)
		bm, err := deleted.ToBytes()
		if err != nil {
			return err
		}
		if err := meta.Put(deletedKey, bm); err != nil {
			return err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, maxDoc)
		return meta.Put(maxDocKey, buf)
	})
	if err != nil {
		return fmt.Errorf("commit %s: %w", s.path, err)
	}

	log.Debug().Int("appended", len(w.pending)).Uint64("deleted", w.deletes.GetCardinality()).Msg("Store committed")
	s.maxDoc = maxDoc
	s.deleted = deleted
	w.pending = nil
	w.deletes = roaring.New()
	return nil
}

// Close releases the writer slot, discarding uncommitted changes.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.store == nil {
		return nil
	}
	w.store.mu.Lock()
	if w.store.writer == w {
		w.store.writer = nil
	}
	w.store.mu.Unlock()
	w.store = nil
	w.pending = nil
	return nil
}
