package memstore

import (
	"fmt"
	"sync"

	"embreduce/internal/domain"
)

// RecordStore holds the records of one dataset and their cache state.
// Embeddings are set at most once per record.
type RecordStore struct {
	mu        sync.RWMutex
	name      string
	dimension int
	records   []domain.Record
	pairs     []domain.Pair
	byID      map[string]int
}

func NewRecordStore(ds domain.Dataset, dimension int) *RecordStore {
	s := &RecordStore{
		name:      ds.Name,
		dimension: dimension,
		records:   make([]domain.Record, len(ds.Records)),
		pairs:     append([]domain.Pair(nil), ds.Pairs...),
		byID:      make(map[string]int, len(ds.Records)),
	}
	copy(s.records, ds.Records)
	for i, r := range s.records {
		s.byID[r.ID] = i
	}
	return s
}

func (s *RecordStore) Name() string { return s.name }

func (s *RecordStore) Dimension() int { return s.dimension }

func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *RecordStore) Record(i int) domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[i]
}

func (s *RecordStore) Lookup(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	return i, ok
}

func (s *RecordStore) Records() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *RecordStore) Pairs() []domain.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Pair(nil), s.pairs...)
}

// MarkCached records the fingerprint of a record whose entry is present in
// the embedding cache.
func (s *RecordStore) MarkCached(i int, fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &s.records[i]
	r.Fingerprint = fingerprint
	if r.Status == domain.Uncached {
		r.Status = domain.Cached
	}
}

// SetEmbedding stores the embedding for record i and marks it Embedded.
func (s *RecordStore) SetEmbedding(i int, emb []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &s.records[i]
	if r.Status == domain.Embedded {
		return fmt.Errorf("record %s already embedded", r.ID)
	}
	if len(emb) != s.dimension {
		return domain.DimensionMismatch(s.dimension, len(emb))
	}
	r.Embedding = append(domain.Embedding(nil), emb...)
	r.Status = domain.Embedded
	return nil
}

// Exclude drops record i from evaluation with the given reason.
func (s *RecordStore) Exclude(i int, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[i].Excluded = reason.Error()
}

// Excluded returns the number of excluded records.
func (s *RecordStore) Excluded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.Excluded != "" {
			n++
		}
	}
	return n
}

// Corpus snapshots embedded records and the pairs whose both sides are usable.
func (s *RecordStore) Corpus() (*domain.Corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &domain.Corpus{
		Dimension: s.dimension,
		Vectors:   make([][]float32, len(s.records)),
	}
	usable := 0
	for i, r := range s.records {
		if r.Excluded == "" && r.Status == domain.Embedded {
			c.Vectors[i] = r.Embedding
			usable++
		}
	}
	if usable == 0 && len(s.records) > 0 {
		return nil, fmt.Errorf("%w: all %d records excluded", domain.ErrExtraction, len(s.records))
	}
	for _, p := range s.pairs {
		if c.Vectors[p.A] != nil && c.Vectors[p.B] != nil {
			c.Pairs = append(c.Pairs, p)
		}
	}
	return c, nil
}

// EmbeddingStore is an in-memory port.EmbeddingStore used when the persistent
// cache is disabled.
type EmbeddingStore struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
}

func NewEmbeddingStore() *EmbeddingStore {
	return &EmbeddingStore{entries: make(map[string]domain.CacheEntry)}
}

func (s *EmbeddingStore) Get(fingerprint string) (domain.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[fingerprint]
	if ok {
		e.Vector = append([]float32(nil), e.Vector...)
	}
	return e, ok, nil
}

func (s *EmbeddingStore) Put(entry domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Vector = append([]float32(nil), entry.Vector...)
	s.entries[entry.Fingerprint] = entry
	return nil
}

func (s *EmbeddingStore) Delete(fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fingerprint)
	return nil
}

func (s *EmbeddingStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *EmbeddingStore) Close() error {
	return nil
}
