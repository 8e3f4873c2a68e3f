package verifier

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embreduce/internal/domain"
)

func TestEvaluate_PerfectSeparation(t *testing.T) {
	vectors := [][]float32{
		{1, 1, 1, 1, 1, 1, 1, 1},
		{-1, -1, -1, -1, -1, -1, -1, -1},
	}
	pairs := []domain.Pair{
		{A: 0, B: 0, Genuine: true},
		{A: 0, B: 1, Genuine: false},
	}

	for _, m := range []Metric{Euclidean, Cosine} {
		t.Run(string(m), func(t *testing.T) {
			res, err := NewEvaluator(m, 2, true).Evaluate(context.Background(), vectors, pairs)
			require.NoError(t, err)
			assert.Equal(t, 1.0, res.Accuracy)
			assert.Equal(t, 0, res.FalseAccepts)
			assert.Equal(t, 0, res.FalseRejects)
			assert.InDelta(t, 0.0, res.Threshold, 1e-9)
			assert.InDelta(t, 1.0, res.AUC, 1e-9)
			assert.Len(t, res.Curve, 2)
		})
	}
}

func TestEvaluate_SquaredEuclidean(t *testing.T) {
	vectors := [][]float32{{0, 0}, {3, 4}}
	d, err := NewEvaluator(Euclidean, 1, false).Distances(context.Background(), vectors, []domain.Pair{{A: 0, B: 1}})
	require.NoError(t, err)
	assert.Equal(t, []float64{25}, d)
}

func TestEvaluate_Errors(t *testing.T) {
	ev := NewEvaluator(Euclidean, 1, false)
	ctx := context.Background()

	_, err := ev.Evaluate(ctx, [][]float32{{1}, {2}}, []domain.Pair{{A: 0, B: 1, Genuine: true}})
	assert.ErrorIs(t, err, domain.ErrDegeneratePairSet)

	_, err = ev.Evaluate(ctx, [][]float32{{1}, {2, 3}}, []domain.Pair{{A: 0, B: 1}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = ev.Evaluate(ctx, [][]float32{{1}, nil}, []domain.Pair{{A: 0, B: 1}})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestScore_Sweep(t *testing.T) {
	// g: genuine, i: impostor, sorted by distance: g1 g2 i3 g4 i5 i6
	dists := []float64{1, 2, 3, 4, 5, 6}
	genuine := []bool{true, true, false, true, false, false}

	res, err := Score(dists, genuine, true)
	require.NoError(t, err)

	// t=2: fn=1 fp=0; t=4: fn=0 fp=1. Tie resolves to the lower threshold.
	assert.Equal(t, 2.0, res.Threshold)
	assert.Equal(t, 1, res.Errors())
	assert.InDelta(t, 5.0/6.0, res.Accuracy, 1e-12)
	assert.Equal(t, 3, res.Genuine)
	assert.Equal(t, 3, res.Impostor)
	assert.InDelta(t, 0.0, res.FAR, 1e-12)
	assert.InDelta(t, 1.0/3.0, res.FRR, 1e-12)
	assert.InDelta(t, 0.0, res.FalseDiscoveryRate, 1e-12)
	assert.InDelta(t, 1.0/4.0, res.FalseOmissionRate, 1e-12)
	// 8 of 9 genuine/impostor orderings are correct
	assert.InDelta(t, 8.0/9.0, res.AUC, 1e-9)
	require.Len(t, res.Curve, 6)
	assert.Equal(t, domain.CurvePoint{Threshold: 6, FAR: 1, FRR: 0}, res.Curve[5])
}

func TestScore_TiedDistances(t *testing.T) {
	res, err := Score([]float64{1, 1, 1, 1}, []bool{true, false, true, false}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Errors())
	assert.Equal(t, 0.5, res.Accuracy)
	assert.InDelta(t, 0.5, res.AUC, 1e-9)
}

func fixture() ([][]float32, []domain.Pair) {
	vectors := [][]float32{
		{1, 0, 2, 5},
		{1, 3, 2, 0},
		{2, 0, 0, 1},
		{0, 1, 2, 4},
		{1, 1, 0, 5},
	}
	pairs := []domain.Pair{
		{A: 0, B: 3, Genuine: true},
		{A: 0, B: 4, Genuine: true},
		{A: 1, B: 2, Genuine: false},
		{A: 0, B: 1, Genuine: false},
		{A: 2, B: 4, Genuine: false},
		{A: 2, B: 3, Genuine: true},
	}
	return vectors, pairs
}

func TestPairTable_MatchesEvaluator(t *testing.T) {
	vectors, pairs := fixture()
	ctx := context.Background()

	for _, m := range []Metric{Euclidean, Cosine} {
		t.Run(string(m), func(t *testing.T) {
			table, err := NewPairTable(ctx, m, vectors, pairs, 2)
			require.NoError(t, err)
			assert.Equal(t, 4, table.Dimension())
			assert.Equal(t, 6, table.Pairs())

			full, err := table.NewScratch().ScoreSubset([]int{0, 1, 2, 3})
			require.NoError(t, err)

			want, err := NewEvaluator(m, 2, false).Evaluate(ctx, vectors, pairs)
			require.NoError(t, err)
			assert.Equal(t, want.Errors(), full.Errors())
			assert.InDelta(t, want.Threshold, full.Threshold, 1e-6)

			s := table.NewScratch()
			s.Add(3)
			got, err := s.Score()
			require.NoError(t, err)
			only3, err := table.NewScratch().ScoreSubset([]int{3})
			require.NoError(t, err)
			assert.Equal(t, only3, got)
		})
	}
}

func TestPairTable_DistancesMatchMetric(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 3))
	const dim = 37
	vectors := make([][]float32, 24)
	for i := range vectors {
		vectors[i] = make([]float32, dim)
		for d := range vectors[i] {
			vectors[i][d] = float32(rng.NormFloat64() * 0.37)
		}
	}
	var pairs []domain.Pair
	for i := 0; i+1 < len(vectors); i += 2 {
		pairs = append(pairs, domain.Pair{A: i, B: i + 1, Genuine: true})
		pairs = append(pairs, domain.Pair{A: i, B: (i + 3) % len(vectors), Genuine: false})
	}
	all := make([]int, dim)
	for d := range all {
		all[d] = d
	}
	ctx := context.Background()

	for _, m := range []Metric{Euclidean, Cosine} {
		t.Run(string(m), func(t *testing.T) {
			table, err := NewPairTable(ctx, m, vectors, pairs, 3)
			require.NoError(t, err)
			s := table.NewScratch()
			fromTable, err := s.ScoreSubset(all)
			require.NoError(t, err)
			got := s.Distances()

			want, err := NewEvaluator(m, 2, false).Distances(ctx, vectors, pairs)
			require.NoError(t, err)
			for i := range want {
				assert.Equalf(t, want[i], got[i], "pair %d", i)
			}

			direct, err := NewEvaluator(m, 2, false).Evaluate(ctx, vectors, pairs)
			require.NoError(t, err)
			assert.Equal(t, direct.Threshold, fromTable.Threshold)
			assert.Equal(t, direct.Errors(), fromTable.Errors())
		})
	}
}

func TestPairTable_InvalidDimension(t *testing.T) {
	vectors, pairs := fixture()
	table, err := NewPairTable(context.Background(), Euclidean, vectors, pairs, 1)
	require.NoError(t, err)

	_, err = table.NewScratch().ScoreSubset([]int{4})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, Euclidean, m)

	m, err = ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, Cosine, m)

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)
}
