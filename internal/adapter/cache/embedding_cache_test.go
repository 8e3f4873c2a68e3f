package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embreduce/internal/adapter/embedding"
	"embreduce/internal/adapter/memstore"
	"embreduce/internal/adapter/store"
	"embreduce/internal/domain"
)

func newCache(t *testing.T, ext *embedding.MockExtractor, dim int, st *memstore.EmbeddingStore, files map[string][]byte) *EmbeddingCache {
	t.Helper()
	return NewEmbeddingCache(st, ext, Options{
		Dimension: dim,
		Workers:   4,
		ReadFile: func(path string) ([]byte, error) {
			data, ok := files[path]
			if !ok {
				return nil, fmt.Errorf("open %s: no such file", path)
			}
			return data, nil
		},
	})
}

func TestGetOrExtract_Idempotent(t *testing.T) {
	ctx := context.Background()
	ext := embedding.NewMockExtractor(8)
	st := memstore.NewEmbeddingStore()
	c := newCache(t, ext, 8, st, nil)

	first, err := c.GetOrExtract(ctx, "a.jpg", []byte("image-a"))
	require.NoError(t, err)
	assert.False(t, first.Hit)
	assert.Equal(t, 1, ext.Calls())

	second, err := c.GetOrExtract(ctx, "a.jpg", []byte("image-a"))
	require.NoError(t, err)
	assert.True(t, second.Hit)
	assert.Equal(t, 1, ext.Calls(), "hit must not call the extractor")
	assert.Equal(t, first.Vector, second.Vector)

	n, err := st.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// keyedStore stores entries under explicit keys, independent of their
// Fingerprint field.
type keyedStore struct {
	*memstore.EmbeddingStore
	raw map[string]domain.CacheEntry
}

func (s *keyedStore) Get(fp string) (domain.CacheEntry, bool, error) {
	if e, ok := s.raw[fp]; ok {
		return e, true, nil
	}
	return s.EmbeddingStore.Get(fp)
}

func (s *keyedStore) Delete(fp string) error {
	delete(s.raw, fp)
	return s.EmbeddingStore.Delete(fp)
}

func TestGetOrExtract_TamperedFingerprint(t *testing.T) {
	ctx := context.Background()
	ext := embedding.NewMockExtractor(4)

	image := []byte("image-x")
	fp := Fingerprint(image)
	bogus := []float32{9, 9, 9, 9}
	st := &keyedStore{
		EmbeddingStore: memstore.NewEmbeddingStore(),
		raw: map[string]domain.CacheEntry{
			fp: {
				Fingerprint:      "deadbeef",
				ExtractorVersion: ext.Version(),
				Dimension:        4,
				Vector:           bogus,
				Checksum:         store.Checksum(bogus),
			},
		},
	}
	c := NewEmbeddingCache(st, ext, Options{Dimension: 4})

	got, err := c.GetOrExtract(ctx, "x.jpg", image)
	require.NoError(t, err)
	assert.False(t, got.Hit)
	assert.NotEqual(t, bogus, got.Vector)
	assert.Equal(t, 1, ext.Calls())

	stored, found, err := st.Get(fp)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fp, stored.Fingerprint)
	assert.NoError(t, store.Validate(stored, fp, ext.Version(), 4))
}

func TestGetOrExtract_VersionChange(t *testing.T) {
	ctx := context.Background()
	st := memstore.NewEmbeddingStore()

	v1 := embedding.NewMockExtractor(4).WithVersion("v1")
	_, err := newCache(t, v1, 4, st, nil).GetOrExtract(ctx, "a.jpg", []byte("a"))
	require.NoError(t, err)

	v2 := embedding.NewMockExtractor(4).WithVersion("v2")
	got, err := newCache(t, v2, 4, st, nil).GetOrExtract(ctx, "a.jpg", []byte("a"))
	require.NoError(t, err)
	assert.False(t, got.Hit)
	assert.Equal(t, 1, v2.Calls())

	entry, _, err := st.Get(got.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, "v2", entry.ExtractorVersion)
}

func TestGetOrExtract_DimensionMismatch(t *testing.T) {
	ext := embedding.NewMockExtractor(3)
	st := memstore.NewEmbeddingStore()
	c := newCache(t, ext, 4, st, nil)

	_, err := c.GetOrExtract(context.Background(), "a.jpg", []byte("a"))
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	n, _ := st.Count()
	assert.Equal(t, 0, n)
}

func TestGetOrExtract_Concurrent(t *testing.T) {
	ext := embedding.NewMockExtractor(8)
	st := memstore.NewEmbeddingStore()
	c := newCache(t, ext, 8, st, nil)

	var wg sync.WaitGroup
	results := make([][]float32, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrExtract(context.Background(), "same.jpg", []byte("same"))
			assert.NoError(t, err)
			results[i] = got.Vector
		}()
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	n, _ := st.Count()
	assert.Equal(t, 1, n)
}

func TestPopulate(t *testing.T) {
	ds := domain.Dataset{
		Name: "lfw",
		Records: []domain.Record{
			{ID: "a", SourcePath: "a.jpg"},
			{ID: "b", SourcePath: "b.jpg"},
			{ID: "c", SourcePath: "c.jpg"},
			{ID: "missing", SourcePath: "missing.jpg"},
		},
		Pairs: []domain.Pair{
			{A: 0, B: 1, Genuine: true},
			{A: 1, B: 2, Genuine: false},
			{A: 2, B: 3, Genuine: false},
		},
	}
	files := map[string][]byte{
		"a.jpg": []byte("a"),
		"b.jpg": []byte("b"),
		"c.jpg": []byte("c"),
	}

	ext := embedding.NewMockExtractor(4)
	ext.FailOn("c.jpg", embedding.Permanent(errors.New("no face found")))
	st := memstore.NewEmbeddingStore()
	c := newCache(t, ext, 4, st, files)

	rs := memstore.NewRecordStore(ds, 4)
	var progressed int
	res, err := c.Populate(context.Background(), rs, func(done, total int) {
		progressed = done
		assert.Equal(t, 4, total)
	})
	require.NoError(t, err)
	assert.Equal(t, 4, progressed)
	assert.Equal(t, 2, res.Extracted)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		var se *domain.StageError
		require.ErrorAs(t, e, &se)
		assert.ErrorIs(t, e, domain.ErrExtraction)
	}

	assert.Equal(t, 2, rs.Excluded())
	assert.Equal(t, domain.Embedded, rs.Record(0).Status)

	corpus, err := rs.Corpus()
	require.NoError(t, err)
	assert.Equal(t, []domain.Pair{{A: 0, B: 1, Genuine: true}}, corpus.Pairs)

	// second pass over fresh records is served from the store
	rs2 := memstore.NewRecordStore(ds, 4)
	calls := ext.Calls()
	res, err = c.Populate(context.Background(), rs2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Hits)
	assert.Equal(t, calls+1, ext.Calls(), "only the failing record is retried")
}

func TestPopulate_AllExcluded(t *testing.T) {
	ds := domain.Dataset{
		Records: []domain.Record{{ID: "a", SourcePath: "a.jpg"}, {ID: "b", SourcePath: "b.jpg"}},
		Pairs:   []domain.Pair{{A: 0, B: 1, Genuine: true}},
	}
	c := newCache(t, embedding.NewMockExtractor(4), 4, memstore.NewEmbeddingStore(), map[string][]byte{})
	rs := memstore.NewRecordStore(ds, 4)

	_, err := c.Populate(context.Background(), rs, nil)
	require.NoError(t, err)

	_, err = rs.Corpus()
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func readFrom(files map[string][]byte) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		data, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("open %s: no such file", path)
		}
		return data, nil
	}
}

func TestPopulate_ReopenBoltStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lfw.db")
	ds := domain.Dataset{
		Name: "lfw",
		Records: []domain.Record{
			{ID: "a", SourcePath: "a.jpg"},
			{ID: "b", SourcePath: "b.jpg"},
			{ID: "c", SourcePath: "c.jpg"},
		},
		Pairs: []domain.Pair{
			{A: 0, B: 1, Genuine: true},
			{A: 1, B: 2, Genuine: false},
		},
	}
	files := map[string][]byte{"a.jpg": []byte("a"), "b.jpg": []byte("b"), "c.jpg": []byte("c")}
	ext := embedding.NewMockExtractor(6)

	populate := func() (*PopulateResult, *domain.Corpus) {
		st, err := store.NewBoltStore(path)
		require.NoError(t, err)
		defer st.Close()
		_, err = st.Prepare(ext.Version(), 6)
		require.NoError(t, err)

		c := NewEmbeddingCache(st, ext, Options{Dimension: 6, Workers: 2, ReadFile: readFrom(files)})
		rs := memstore.NewRecordStore(ds, 6)
		res, err := c.Populate(ctx, rs, nil)
		require.NoError(t, err)
		corpus, err := rs.Corpus()
		require.NoError(t, err)
		return res, corpus
	}

	first, before := populate()
	assert.Equal(t, 3, first.Extracted)
	assert.Equal(t, 3, ext.Calls())

	second, after := populate()
	assert.Equal(t, 3, second.Hits)
	assert.Zero(t, second.Extracted)
	assert.Equal(t, 3, ext.Calls(), "a reopened store must serve every record")
	assert.Equal(t, before.Vectors, after.Vectors)
}

// tableExtractor returns fixed vectors per path.
type tableExtractor map[string][]float32

func (e tableExtractor) Extract(_ context.Context, path string, _ []byte) ([]float32, error) {
	return e[path], nil
}

func (tableExtractor) Version() string { return "table-v1" }

func TestPopulate_Normalize(t *testing.T) {
	ds := domain.Dataset{
		Records: []domain.Record{
			{ID: "a", SourcePath: "a.jpg"},
			{ID: "b", SourcePath: "b.jpg"},
			{ID: "z", SourcePath: "z.jpg"},
		},
		Pairs: []domain.Pair{{A: 0, B: 1, Genuine: true}, {A: 1, B: 2, Genuine: false}},
	}
	files := map[string][]byte{"a.jpg": []byte("a"), "b.jpg": []byte("b"), "z.jpg": []byte("z")}
	ext := tableExtractor{
		"a.jpg": {3, 0, 4},
		"b.jpg": {0, 2, 0},
		"z.jpg": {0, 0, 0},
	}
	st := memstore.NewEmbeddingStore()
	c := NewEmbeddingCache(st, ext, Options{Dimension: 3, Workers: 1, Normalize: true, ReadFile: readFrom(files)})

	rs := memstore.NewRecordStore(ds, 3)
	res, err := c.Populate(context.Background(), rs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], domain.ErrExtraction)

	corpus, err := rs.Corpus()
	require.NoError(t, err)
	assert.Equal(t, []domain.Pair{{A: 0, B: 1, Genuine: true}}, corpus.Pairs)
	assert.InDeltaSlice(t, []float32{0.6, 0, 0.8}, corpus.Vectors[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1, 0}, corpus.Vectors[1], 1e-6)

	var norm float64
	for _, x := range corpus.Vectors[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	// stored entries keep the raw extractor output
	stored, ok, err := st.Get(Fingerprint([]byte("a")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 0, 4}, stored.Vector)
}
