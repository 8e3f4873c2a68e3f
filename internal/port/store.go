package port

import "embreduce/internal/domain"

// EmbeddingStore persists extracted embeddings keyed by content fingerprint.
type EmbeddingStore interface {
	// Get returns the entry for fingerprint. found is false on a miss.
	Get(fingerprint string) (entry domain.CacheEntry, found bool, err error)

	// Put writes the entry under its fingerprint.
	Put(entry domain.CacheEntry) error

	// Delete removes the entry for fingerprint.
	Delete(fingerprint string) error

	// Count returns the number of stored entries.
	Count() (int, error)

	Close() error
}
