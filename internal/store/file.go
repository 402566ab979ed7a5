package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/nimbus/internal/weather"
)

const lockRetryDelay = 25 * time.Millisecond

// fileRecord is the on-disk form of a CacheEntry.
type fileRecord struct {
	ID        uuid.UUID `json:"id"`
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	FetchedAt int64     `json:"fetchedAt"` // epoch millis
}

type fileDocument struct {
	Entries map[string][]fileRecord `json:"entries"`
}

// FileStore keeps all entries in one JSON document on local disk.
//
// Every operation holds a file lock (shared for reads, exclusive for writes)
// on a sidecar ".lock" file, so several processes can share one cache file.
// Saves go through a temp file and rename, so readers never see a torn document.
type FileStore struct {
	path   string
	mu     sync.Mutex
	lock   *flock.Flock
	closed bool
	logger logrus.FieldLogger
}

// NewFileStore opens (or lazily creates) the cache document at path.
func NewFileStore(path string, logger logrus.FieldLogger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: create directory: %w", err)
	}
	return &FileStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}, nil
}

func (s *FileStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("file store: acquire lock: %w", err)
	}
	if !locked {
		return errors.New("file store: lock not acquired")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil && s.logger != nil {
			s.logger.WithError(err).Warn("file store: unlock failed")
		}
	}()
	return fn()
}

func (s *FileStore) load() (fileDocument, error) {
	doc := fileDocument{Entries: make(map[string][]fileRecord)}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("file store: read: %w", err)
	}
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("file store: decode: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string][]fileRecord)
	}
	return doc, nil
}

func (s *FileStore) save(doc fileDocument) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file store: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

func toRecord(e weather.CacheEntry) fileRecord {
	return fileRecord{
		ID:        e.ID,
		Category:  string(e.Category),
		Key:       e.Key,
		Payload:   e.Payload,
		FetchedAt: e.FetchedAtMillis(),
	}
}

func (r fileRecord) entry() weather.CacheEntry {
	return weather.CacheEntry{
		ID:        r.ID,
		Category:  weather.Category(r.Category),
		Key:       r.Key,
		Payload:   r.Payload,
		FetchedAt: weather.FromMillis(r.FetchedAt),
	}
}

// Write appends entry; records stay sorted by FetchedAt with ties in write order.
func (s *FileStore) Write(ctx context.Context, entry weather.CacheEntry) error {
	return s.withLock(ctx, true, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		k := compositeKey(entry.Category, entry.Key)
		records := append(doc.Entries[k], toRecord(entry))
		sort.SliceStable(records, func(i, j int) bool { return records[i].FetchedAt < records[j].FetchedAt })
		doc.Entries[k] = records
		return s.save(doc)
	})
}

// ReadLatest returns the newest record for (category, key).
func (s *FileStore) ReadLatest(ctx context.Context, category weather.Category, key string) (weather.CacheEntry, bool, error) {
	var (
		out weather.CacheEntry
		ok  bool
	)
	err := s.withLock(ctx, false, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		records := doc.Entries[compositeKey(category, key)]
		if len(records) == 0 {
			return nil
		}
		out, ok = records[len(records)-1].entry(), true
		return nil
	})
	return out, ok, err
}

// PurgeExpired drops expired records and rewrites the document if anything changed.
func (s *FileStore) PurgeExpired(ctx context.Context, category weather.Category, key string, now time.Time) (int, error) {
	var purged int
	err := s.withLock(ctx, true, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		k := compositeKey(category, key)
		cutoff := weather.ExpiryCutoff(category, now).UnixMilli()

		kept := doc.Entries[k][:0]
		for _, r := range doc.Entries[k] {
			if r.FetchedAt <= cutoff {
				purged++
				continue
			}
			kept = append(kept, r)
		}
		if purged == 0 {
			return nil
		}
		if len(kept) == 0 {
			delete(doc.Entries, k)
		} else {
			doc.Entries[k] = kept
		}
		return s.save(doc)
	})
	return purged, err
}

// Close releases the lock file handle. Later operations return ErrClosed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.lock.Close()
}
