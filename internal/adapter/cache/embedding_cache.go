// Package cache memoizes extracted embeddings by image content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hupe1980/vecgo/distance"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"embreduce/internal/adapter/embedding"
	"embreduce/internal/adapter/fs"
	"embreduce/internal/adapter/memstore"
	"embreduce/internal/adapter/store"
	"embreduce/internal/domain"
	"embreduce/internal/logging"
	"embreduce/internal/port"
)

type Options struct {
	Dimension int
	Workers   int
	Retries   int
	// InitialBackoff is the first retry delay. Defaults to 200ms.
	InitialBackoff time.Duration
	Logger         *logging.Logger
	// ReadFile loads the source image. Defaults to fs.ReadFile.
	ReadFile func(path string) ([]byte, error)
	// Normalize L2-normalizes embeddings handed to records. Stored entries
	// keep the raw extractor output.
	Normalize bool
}

// EmbeddingCache wraps an extractor with a content-addressed store. Entries
// are written at most once per fingerprint and extractor version.
type EmbeddingCache struct {
	store     port.EmbeddingStore
	extractor port.Extractor
	opts      Options
	group     singleflight.Group
}

func NewEmbeddingCache(st port.EmbeddingStore, ext port.Extractor, opts Options) *EmbeddingCache {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.ReadFile == nil {
		opts.ReadFile = fs.ReadFile
	}
	return &EmbeddingCache{store: st, extractor: ext, opts: opts}
}

// Fingerprint is the hex SHA-256 of the image bytes.
func Fingerprint(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Lookup is the outcome of GetOrExtract.
type Lookup struct {
	Fingerprint string
	Vector      []float32
	Hit         bool
}

type flightResult struct {
	vector []float32
	hit    bool
}

// GetOrExtract returns the embedding for image, calling the extractor only
// when no valid entry exists. Concurrent calls for the same content share one
// extraction.
func (c *EmbeddingCache) GetOrExtract(ctx context.Context, path string, image []byte) (Lookup, error) {
	fp := Fingerprint(image)

	v, err, _ := c.group.Do(fp, func() (any, error) {
		entry, found, err := c.store.Get(fp)
		if err != nil && !errors.Is(err, domain.ErrCacheCorruption) {
			return nil, fmt.Errorf("cache read: %w", err)
		}
		if found {
			if err == nil {
				err = store.Validate(entry, fp, c.extractor.Version(), c.opts.Dimension)
			}
			if err == nil {
				return flightResult{vector: entry.Vector, hit: true}, nil
			}
			c.opts.Logger.DebugContext(ctx, "discarding cache entry",
				"record", path,
				"fingerprint", fp,
				"reason", err,
			)
			if err := c.store.Delete(fp); err != nil {
				return nil, fmt.Errorf("cache delete: %w", err)
			}
		}

		vec, err := c.extract(ctx, path, image)
		if err != nil {
			return nil, err
		}
		if c.opts.Dimension > 0 && len(vec) != c.opts.Dimension {
			return nil, domain.DimensionMismatch(c.opts.Dimension, len(vec))
		}

		err = c.store.Put(domain.CacheEntry{
			Fingerprint:      fp,
			ExtractorVersion: c.extractor.Version(),
			Dimension:        len(vec),
			Vector:           vec,
			Checksum:         store.Checksum(vec),
			CreatedAt:        time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("cache write: %w", err)
		}
		return flightResult{vector: vec}, nil
	})
	if err != nil {
		return Lookup{Fingerprint: fp}, err
	}

	res := v.(flightResult)
	return Lookup{
		Fingerprint: fp,
		Vector:      append([]float32(nil), res.vector...),
		Hit:         res.hit,
	}, nil
}

func (c *EmbeddingCache) extract(ctx context.Context, path string, image []byte) ([]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff

	retries := max(c.opts.Retries, 0)
	policy := backoff.WithMaxRetries(b, uint64(retries))

	vec, err := backoff.RetryWithData(func() ([]float32, error) {
		vec, err := c.extractor.Extract(ctx, path, image)
		if err != nil && embedding.IsPermanent(err) {
			return nil, backoff.Permanent(err)
		}
		return vec, err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	return vec, nil
}

// PopulateResult summarizes one population pass.
type PopulateResult struct {
	Total     int
	Hits      int
	Extracted int
	Failed    int
	Errors    []error
}

// Populate embeds every record of rs. Records that cannot be read or embedded
// are excluded and reported; only context cancellation aborts the pass.
func (c *EmbeddingCache) Populate(ctx context.Context, rs *memstore.RecordStore, progress func(done, total int)) (*PopulateResult, error) {
	result := &PopulateResult{Total: rs.Len()}

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(lookup *Lookup, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, err)
		case lookup.Hit:
			result.Hits++
		default:
			result.Extracted++
		}
		done++
		if progress != nil {
			progress(done, result.Total)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	for i := 0; i < rs.Len(); i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec := rs.Record(i)
			lookup, err := c.embedRecord(gctx, rs, i, rec)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				err = domain.RecordError("extract", rec.ID, err)
				rs.Exclude(i, err)
				c.opts.Logger.LogExcluded(gctx, rec.ID, err)
			}
			finish(lookup, err)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	c.opts.Logger.LogPopulate(ctx, result.Total, result.Hits, result.Extracted, result.Failed)
	return result, nil
}

func (c *EmbeddingCache) embedRecord(ctx context.Context, rs *memstore.RecordStore, i int, rec domain.Record) (*Lookup, error) {
	image, err := c.opts.ReadFile(rec.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable image: %v", domain.ErrExtraction, err)
	}

	lookup, err := c.GetOrExtract(ctx, rec.SourcePath, image)
	if err != nil {
		return nil, err
	}

	rs.MarkCached(i, lookup.Fingerprint)
	vec := lookup.Vector
	if c.opts.Normalize {
		var ok bool
		if vec, ok = distance.NormalizeL2Copy(vec); !ok {
			return nil, fmt.Errorf("%w: zero-norm embedding", domain.ErrExtraction)
		}
	}
	if err := rs.SetEmbedding(i, vec); err != nil {
		return nil, err
	}
	return &lookup, nil
}
