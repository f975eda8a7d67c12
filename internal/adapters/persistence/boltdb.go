package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/rs/zerolog/log"
)

const (
	CacheBucket = "aggregator-cache"

	DefaultDBPath = "./data/aggregator.db"
)

// tombstone marks a removed key. The bucket is append-only from our side, so a
// removal is an overwrite that All and Get skip.
var tombstone = []byte{}

// BoltStore is the durable store.Store used in production. Every entry is
// mirrored in memory; reads never touch disk after Open.
type BoltStore struct {
	mu     sync.RWMutex
	db     *boltdb.BoltDatabase
	dbPath string
	cache  map[string][]byte
}

func NewBoltStore(dbPath string) (*BoltStore, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	s := &BoltStore{
		db:     db,
		dbPath: dbPath,
		cache:  make(map[string][]byte),
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Int("entries", len(s.cache)).Msg("[aggregatorStorage] opened database")
	return s, nil
}

func (s *BoltStore) load() error {
	data, err := s.db.List(CacheBucket)
	if err != nil {
		// a fresh database has no bucket yet
		log.Warn().Err(err).Str("bucket", CacheBucket).Msg("[aggregatorStorage] no entries loaded")
		return nil
	}
	for k, v := range data {
		if len(v) == 0 {
			continue
		}
		s.cache[k] = v
	}
	return nil
}

func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BoltStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *BoltStore) Set(key string, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("refusing to store empty value for %s", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set(CacheBucket, []byte(key), value); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	s.cache[key] = append([]byte(nil), value...)
	return nil
}

func (s *BoltStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[key]; !ok {
		return nil
	}
	if err := s.db.Set(CacheBucket, []byte(key), tombstone); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	delete(s.cache, key)
	return nil
}

func (s *BoltStore) All() (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.cache))
	for k, v := range s.cache {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// SetBatch writes several entries in one bolt transaction.
func (s *BoltStore) SetBatch(entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	for key, data := range entries {
		value := data
		op := &boltdb.WriteOperation{
			Bucket: []byte(CacheBucket),
			Key:    []byte(key),
			Value:  &value,
			Op:     boltdb.OpSet,
		}
		if err := batch.Add(op); err != nil {
			return fmt.Errorf("failed to add %s to batch: %w", key, err)
		}
	}

	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Int("count", len(entries)).Msg("[aggregatorStorage] FAILED to execute batch")
		return err
	}
	for k, v := range entries {
		s.cache[k] = append([]byte(nil), v...)
	}
	return nil
}

func (s *BoltStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
