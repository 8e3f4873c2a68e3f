package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"

	"go.etcd.io/bbolt"

	"embreduce/internal/domain"
)

var (
	bucketEmbeddings = []byte("embeddings")
	bucketMeta       = []byte("meta")
)

// BoltStore persists embedding cache entries keyed by content fingerprint.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEmbeddings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

// Get returns the raw entry stored for fingerprint. An entry that cannot be
// decoded is reported as ErrCacheCorruption; validation against the extractor
// version and checksum is the caller's job (see Validate).
func (s *BoltStore) Get(fingerprint string) (domain.CacheEntry, bool, error) {
	var entry domain.CacheEntry
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get([]byte(fingerprint))
		if data == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("%w: entry %s: %v", domain.ErrCacheCorruption, fingerprint, err)
		}
		return nil
	})
	return entry, found, err
}

func (s *BoltStore) Put(entry domain.CacheEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketEmbeddings).Put([]byte(entry.Fingerprint), data)
	})
}

func (s *BoltStore) Delete(fingerprint string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Delete([]byte(fingerprint))
	})
}

func (s *BoltStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n, err
}

// Fingerprints lists all stored keys.
func (s *BoltStore) Fingerprints() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Checksum returns the CRC-32 (IEEE) of the little-endian vector bytes.
func Checksum(v []float32) uint32 {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return crc32.ChecksumIEEE(buf)
}

// Validate checks an entry read for fingerprint against the active extractor
// version and dimension. It returns an ErrCacheCorruption-wrapped reason when
// the entry must not be trusted.
func Validate(entry domain.CacheEntry, fingerprint, version string, dimension int) error {
	switch {
	case entry.Fingerprint != fingerprint:
		return fmt.Errorf("%w: fingerprint %s does not match content hash %s", domain.ErrCacheCorruption, entry.Fingerprint, fingerprint)
	case entry.ExtractorVersion != version:
		return fmt.Errorf("%w: extractor version %q, want %q", domain.ErrCacheCorruption, entry.ExtractorVersion, version)
	case entry.Dimension != len(entry.Vector):
		return fmt.Errorf("%w: entry declares %d dims but holds %d", domain.ErrCacheCorruption, entry.Dimension, len(entry.Vector))
	case dimension > 0 && entry.Dimension != dimension:
		return fmt.Errorf("%w: entry has %d dims, dataset uses %d", domain.ErrCacheCorruption, entry.Dimension, dimension)
	case Checksum(entry.Vector) != entry.Checksum:
		return fmt.Errorf("%w: checksum mismatch", domain.ErrCacheCorruption)
	}
	return nil
}
