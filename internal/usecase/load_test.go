package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embreduce/internal/adapter/cache"
	"embreduce/internal/adapter/dataset"
	"embreduce/internal/adapter/embedding"
	"embreduce/internal/adapter/fs"
	"embreduce/internal/adapter/memstore"
	"embreduce/internal/adapter/quantizer"
	"embreduce/internal/adapter/reducer"
	"embreduce/internal/adapter/report"
	"embreduce/internal/adapter/verifier"
	"embreduce/internal/domain"
)

const testDim = 8

// writeLFW lays out a small LFW tree: two identities with two images each,
// two genuine and two impostor pairs.
func writeLFW(t *testing.T) (pairsFile, root string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "lfw")
	for _, rel := range []string{
		"Ann/Ann_0001.jpg", "Ann/Ann_0002.jpg",
		"Bob/Bob_0001.jpg", "Bob/Bob_0002.jpg",
	} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("pixels of "+rel), 0o644))
	}
	pairsFile = filepath.Join(dir, "pairs.txt")
	require.NoError(t, os.WriteFile(pairsFile, []byte("1\t4\n"+
		"Ann\t1\t2\n"+
		"Bob\t1\t2\n"+
		"Ann\t1\tBob\t1\n"+
		"Ann\t2\tBob\t2\n"), 0o644))
	return pairsFile, root
}

func newLoad(ext *embedding.MockExtractor) (*LoadUseCase, *memstore.EmbeddingStore) {
	st := memstore.NewEmbeddingStore()
	c := cache.NewEmbeddingCache(st, ext, cache.Options{Dimension: testDim, Workers: 2})
	return NewLoadUseCase(dataset.LFW{}, c, testDim, nil), st
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	pairsFile, root := writeLFW(t)
	ext := embedding.NewMockExtractor(testDim)
	u, st := newLoad(ext)

	var last int
	s, err := u.Load(ctx, pairsFile, root, func(done, total int) { last = done })
	require.NoError(t, err)
	assert.Equal(t, "lfw", s.Dataset)
	assert.Equal(t, 4, last)
	assert.Equal(t, 4, s.Populate.Extracted)
	require.Len(t, s.Corpus.Pairs, 4)
	assert.Equal(t, 2, s.Corpus.Genuine())

	n, err := st.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// A second load hits the cache for every record.
	s2, err := u.Load(ctx, pairsFile, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, s2.Populate.Hits)
	assert.Equal(t, 4, ext.Calls())
	assert.Equal(t, s.Corpus.Vectors, s2.Corpus.Vectors)
}

func TestLoad_ExcludesFailedRecords(t *testing.T) {
	pairsFile, root := writeLFW(t)
	ext := embedding.NewMockExtractor(testDim)
	ext.FailOn(filepath.Join(root, "Bob", "Bob_0002.jpg"), embedding.Permanent(errors.New("no face")))
	u, _ := newLoad(ext)

	s, err := u.Load(context.Background(), pairsFile, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Populate.Failed)
	assert.Equal(t, 1, s.Records.Excluded())
	// Bob's genuine pair and the second impostor pair are dropped.
	assert.Len(t, s.Corpus.Pairs, 2)
}

func TestLoad_InvalidRoot(t *testing.T) {
	pairsFile, _ := writeLFW(t)
	u, _ := newLoad(embedding.NewMockExtractor(testDim))

	_, err := u.Load(context.Background(), pairsFile, filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidDatasetPath)

	var se *domain.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "load", se.Stage)
}

func TestCacheWarm(t *testing.T) {
	_, root := writeLFW(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("skip"), 0o644))

	ext := embedding.NewMockExtractor(testDim)
	st := memstore.NewEmbeddingStore()
	c := cache.NewEmbeddingCache(st, ext, cache.Options{Dimension: testDim, Workers: 2})
	u := NewCacheUseCase(fs.NewWalker([]string{"**/*.jpg"}, nil), c, testDim)

	res, err := u.Warm(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 4, res.Extracted)

	n, err := st.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestIdentityOf(t *testing.T) {
	assert.Equal(t, "Ann", identityOf("Ann/Ann_0001.jpg"))
	assert.Equal(t, "face", identityOf("face.jpg"))
}

func TestExtractEmbeddings(t *testing.T) {
	ctx := context.Background()
	pairsFile, root := writeLFW(t)
	u, _ := newLoad(embedding.NewMockExtractor(testDim))
	s, err := u.Load(ctx, pairsFile, root, nil)
	require.NoError(t, err)

	spec, err := reducer.Truncate(testDim, 3)
	require.NoError(t, err)
	dir := t.TempDir()
	res, err := ExtractEmbeddings(ctx, s, spec, dir, true, 2)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "embeddings_full.json.zst"), res.Full)
	assert.Equal(t, filepath.Join(dir, "embeddings_3.json.zst"), res.Reduced)

	full, err := report.ReadExport(res.Full)
	require.NoError(t, err)
	reduced, err := report.ReadExport(res.Reduced)
	require.NoError(t, err)
	require.Len(t, full, 4)
	require.Len(t, reduced, 4)

	assert.Equal(t, "Ann/Ann_0001.jpg", full[0].A)
	assert.True(t, full[0].Genuine)
	assert.Len(t, full[0].EmbA, testDim)
	assert.Equal(t, full[2].EmbA[:3], reduced[2].EmbA)
}

func TestExtractEmbeddings_ProposedCodes(t *testing.T) {
	ctx := context.Background()
	pairsFile, root := writeLFW(t)
	u, _ := newLoad(embedding.NewMockExtractor(testDim))
	s, err := u.Load(ctx, pairsFile, root, nil)
	require.NoError(t, err)

	e := NewEngine(s.Corpus, verifier.NewEvaluator(verifier.Euclidean, 2, false), nil)
	spec, sel, err := e.ProposedSpec(ctx, ProposedOptions{
		Fixed: []int{6, 1, 4},
		Bits:  8,
		Mode:  domain.QuantPerDimension,
	})
	require.NoError(t, err)
	assert.Nil(t, sel)

	dir := t.TempDir()
	res, err := ExtractEmbeddings(ctx, s, spec, dir, false, 2)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "embeddings_3.json"), res.Reduced)

	lines, err := report.ReadExport(res.Reduced)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	for i, l := range lines {
		assert.Nil(t, l.EmbA)
		require.Len(t, l.CodesA, 3)
		require.Len(t, l.CodesB, 3)
		for _, c := range append(l.CodesA, l.CodesB...) {
			assert.LessOrEqual(t, c, uint16(255))
		}
		p := s.Corpus.Pairs[i]
		a := s.Corpus.Vectors[p.A]
		want := quantizer.Quantize(spec.Quant, []float32{a[1], a[4], a[6]})
		assert.Equal(t, want, l.CodesA)
	}
}

func TestExportSelection(t *testing.T) {
	assert.Equal(t, ArcFace512Selection, ExportSelection(512, nil))
	assert.Nil(t, ExportSelection(128, nil))
	assert.Equal(t, []int{3, 1}, ExportSelection(512, []int{3, 1}))
}
