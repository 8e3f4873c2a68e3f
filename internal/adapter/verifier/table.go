package verifier

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"embreduce/internal/domain"
)

// PairTable holds the per-dimension additive distance components of every
// pair so that any dimension subset can be scored without touching vectors.
// For the euclidean metric a component is (a_d - b_d)^2; for cosine it is the
// triple (a_d*b_d, a_d^2, b_d^2).
type PairTable struct {
	metric Metric
	dim    int
	width  int
	labels []bool
	// comp[d] holds width values per pair for dimension d.
	comp [][]float64
}

// NewPairTable builds the table for pairs over vectors.
func NewPairTable(ctx context.Context, metric Metric, vectors [][]float32, pairs []domain.Pair, workers int) (*PairTable, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no pairs", domain.ErrDegeneratePairSet)
	}
	dim := -1
	for _, p := range pairs {
		for _, idx := range [2]int{p.A, p.B} {
			if idx < 0 || idx >= len(vectors) || vectors[idx] == nil {
				return nil, fmt.Errorf("%w: pair references record %d without an embedding", domain.ErrInvalidParameter, idx)
			}
			if dim < 0 {
				dim = len(vectors[idx])
			} else if len(vectors[idx]) != dim {
				return nil, domain.DimensionMismatch(dim, len(vectors[idx]))
			}
		}
	}

	t := &PairTable{
		metric: metric,
		dim:    dim,
		width:  metric.width(),
		labels: labels(pairs),
		comp:   make([][]float64, dim),
	}

	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, span := range chunks(dim, workers) {
		g.Go(func() error {
			for d := span[0]; d < span[1]; d++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				col := make([]float64, len(pairs)*t.width)
				for i, p := range pairs {
					a := float64(vectors[p.A][d])
					b := float64(vectors[p.B][d])
					if t.width == 1 {
						diff := a - b
						col[i] = diff * diff
					} else {
						col[3*i] = a * b
						col[3*i+1] = a * a
						col[3*i+2] = b * b
					}
				}
				t.comp[d] = col
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *PairTable) Dimension() int { return t.dim }

func (t *PairTable) Pairs() int { return len(t.labels) }

func (t *PairTable) Labels() []bool { return t.labels }

func (t *PairTable) Metric() Metric { return t.metric }

// SquaredDiff returns (a_d - b_d)^2 for pair i under either metric.
func (t *PairTable) SquaredDiff(d, i int) float64 {
	c := t.comp[d]
	if t.width == 1 {
		return c[i]
	}
	return c[3*i+1] + c[3*i+2] - 2*c[3*i]
}

// Scratch is a per-goroutine accumulator over a PairTable.
type Scratch struct {
	t     *PairTable
	acc   []float64
	dists []float64
}

func (t *PairTable) NewScratch() *Scratch {
	return &Scratch{
		t:     t,
		acc:   make([]float64, len(t.labels)*t.width),
		dists: make([]float64, len(t.labels)),
	}
}

// Reset clears the accumulated dimensions.
func (s *Scratch) Reset() {
	clear(s.acc)
}

// Add accumulates dimension d.
func (s *Scratch) Add(d int) {
	for i, v := range s.t.comp[d] {
		s.acc[i] += v
	}
}

// Distances returns the pair distances for the accumulated dimensions. The
// slice is reused by the next call.
func (s *Scratch) Distances() []float64 {
	if s.t.width == 1 {
		copy(s.dists, s.acc)
		return s.dists
	}
	for i := range s.dists {
		s.dists[i] = cosineDistance(s.acc[3*i], s.acc[3*i+1], s.acc[3*i+2])
	}
	return s.dists
}

// Score evaluates the accumulated dimensions.
func (s *Scratch) Score() (domain.EvaluationResult, error) {
	return Score(s.Distances(), s.t.labels, false)
}

// ScoreSubset evaluates dims from scratch.
func (s *Scratch) ScoreSubset(dims []int) (domain.EvaluationResult, error) {
	s.Reset()
	for _, d := range dims {
		if d < 0 || d >= s.t.dim {
			return domain.EvaluationResult{}, domain.InvalidParameter("dimension %d outside [0, %d)", d, s.t.dim)
		}
		s.Add(d)
	}
	return s.Score()
}
