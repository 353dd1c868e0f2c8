// Package store persists indexed documents in a bbolt file.
//
// Documents get dense internal ids in append order. Deletions only mark ids in a
// roaring bitmap, so ids stay stable for the lifetime of the file. One Writer may
// exist per Store; readers always see the last committed state.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrClosed       = errors.New("store closed")
	ErrWriterActive = errors.New("a writer is already open")
	ErrInvalidID    = errors.New("document id must not be empty")
)

var (
	docsBucket = []byte("docs")
	metaBucket = []byte("meta")
	maxDocKey  = []byte("maxdoc")
	deletedKey = []byte("deleted")
)

// IDField is the conventional field holding a document's external identifier.
const IDField = "id"

// Document is a stored record: an external id plus named binary fields.
type Document struct {
	ID     string
	Fields map[string][]byte
}

// Field returns the named field and whether it is present.
func (d Document) Field(name string) ([]byte, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

// Options configure Open.
type Options struct {
	// LockTimeout is how long a single open attempt waits for the file lock.
	LockTimeout time.Duration
	// RetryFor bounds the total time spent retrying a locked file. Zero disables retries.
	RetryFor time.Duration
	ReadOnly bool
}

// DefaultOptions wait up to ten seconds for a locked file.
var DefaultOptions = Options{LockTimeout: time.Second, RetryFor: 10 * time.Second}

// Store is an open document file.
type Store struct {
	path string
	db   *bolt.DB

	mu      sync.RWMutex
	maxDoc  uint32
	deleted *roaring.Bitmap
	writer  *Writer
	closed  bool
}

// Open opens or creates the store at path. A file locked by another process is
// retried with exponential backoff until opts.RetryFor elapses or ctx is done.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	var db *bolt.DB
	open := func() error {
		var err error
		db, err = bolt.Open(path, 0o600, &bolt.Options{Timeout: opts.LockTimeout, ReadOnly: opts.ReadOnly})
		if err != nil && !errors.Is(err, bolt.ErrTimeout) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = opts.RetryFor
	var bo backoff.BackOff = policy
	if opts.RetryFor <= 0 {
		bo = &backoff.StopBackOff{}
	}
	err := backoff.RetryNotify(open, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("path", path).Msgf("Store is locked, retrying in %s", wait)
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	s := &Store{path: path, db: db, deleted: roaring.New()}
	if !opts.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists(docsBucket); err != nil {
				return err
			}
			_, err := tx.CreateBucketIfNotExists(metaBucket)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open store %s: %w", path, err)
		}
	}
	if err := s.loadMeta(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Uint32("maxDoc", s.maxDoc).Msg("Store opened")
	return s, nil
}

func (s *Store) loadMeta() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return nil
		}
		if v := meta.Get(maxDocKey); v != nil {
			if len(v) != 4 {
				return fmt.Errorf("store %s: max doc: %d bytes", s.path, len(v))
			}
			s.maxDoc = binary.BigEndian.Uint32(v)
		}
		if v := meta.Get(deletedKey); v != nil {
			bm := roaring.New()
			if err := bm.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("store %s: deleted bitmap: %w", s.path, err)
			}
			s.deleted = bm
		}
		return nil
	})
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Close releases the file. An open writer loses its uncommitted changes.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.writer = nil
	return s.db.Close()
}

// MaxDoc returns one past the highest committed internal id.
func (s *Store) MaxDoc() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxDoc
}

// IsDeleted reports whether id was deleted in a committed change.
func (s *Store) IsDeleted(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted.Contains(id)
}

// NumDocs returns the number of live committed documents.
func (s *Store) NumDocs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(uint64(s.maxDoc) - s.deleted.GetCardinality())
}

// LiveIDs returns the committed, non-deleted ids in ascending order.
func (s *Store) LiveIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := roaring.New()
	live.AddRange(0, uint64(s.maxDoc))
	live.AndNot(s.deleted)
	return live.ToArray()
}

// Document reads a committed document. Deleted and unknown ids return ErrNotFound.
func (s *Store) Document(id uint32) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Document{}, ErrClosed
	}
	if id >= s.maxDoc || s.deleted.Contains(id) {
		return Document{}, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	var doc Document
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(docsBucket).Get(idKey(id))
		if v == nil {
			return fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		var err error
		doc, err = decodeDocument(v)
		return err
	})
	return doc, err
}

// Scan calls fn for every live committed document in id order within one read
// transaction. Returning an error from fn stops the scan.
func (s *Store) Scan(fn func(id uint32, doc Document) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(docsBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			id := binary.BigEndian.Uint32(k)
			if id >= s.maxDoc || s.deleted.Contains(id) {
				continue
			}
			doc, err := decodeDocument(v)
			if err != nil {
				return fmt.Errorf("document %d: %w", id, err)
			}
			if err := fn(id, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func idKey(id uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, id)
	return k
}

func encodeDocument(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDocument(b []byte) (Document, error) {
	var doc Document
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
