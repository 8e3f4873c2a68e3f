package reducer

import (
	"context"
	"fmt"
	"math/big"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/combin"

	"embreduce/internal/adapter/verifier"
	"embreduce/internal/domain"
)

// SearchOptions configures the best-subset searches.
type SearchOptions struct {
	// Pool restricts candidates to dimensions [0, Pool). 0 means all.
	Pool int
	// MaxEvaluations caps the exhaustive search. 0 means unbounded.
	MaxEvaluations int64
	Workers        int
	// StopOnPlateau ends the greedy search once no candidate strictly
	// reduces the error count. The first step always runs.
	StopOnPlateau bool
	Progress      func(done, total int64)
}

// SearchResult is the outcome of a best-subset search.
type SearchResult struct {
	Spec domain.ReductionSpec
	Best domain.SubsetScore
	// BySize[i] is the best subset of size i+1 that was found.
	BySize      []domain.SubsetScore
	Evaluations int64
}

func (o SearchOptions) pool(dim int) (int, error) {
	if o.Pool == 0 {
		return dim, nil
	}
	if o.Pool < 0 || o.Pool > dim {
		return 0, domain.InvalidParameter("candidate pool %d outside 1..%d", o.Pool, dim)
	}
	return o.Pool, nil
}

func (o SearchOptions) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

// ExhaustiveCost is the number of subsets of size 1..k drawn from n.
func ExhaustiveCost(n, k int) *big.Int {
	total := new(big.Int)
	c := new(big.Int)
	for i := 1; i <= k; i++ {
		total.Add(total, c.Binomial(int64(n), int64(i)))
	}
	return total
}

// better orders scores by error count, then lexicographically by dims.
func better(a, b domain.SubsetScore) bool {
	if a.Result.Errors() != b.Result.Errors() {
		return a.Result.Errors() < b.Result.Errors()
	}
	return slices.Compare(a.Dims, b.Dims) < 0
}

const batchSize = 256

// Exhaustive evaluates every subset of size 1..k of the candidate pool and
// returns the best subset of size k. Subsets are generated lazily; the cost
// is checked against MaxEvaluations before anything is evaluated.
func Exhaustive(ctx context.Context, table *verifier.PairTable, k int, opts SearchOptions) (*SearchResult, error) {
	dim := table.Dimension()
	n, err := opts.pool(dim)
	if err != nil {
		return nil, err
	}
	if k < 1 || k > n {
		return nil, domain.InvalidParameter("subset size %d, want 1..%d", k, n)
	}

	cost := ExhaustiveCost(n, k)
	if opts.MaxEvaluations > 0 && cost.Cmp(big.NewInt(opts.MaxEvaluations)) > 0 {
		return nil, fmt.Errorf("%w: %s subsets of %d candidates up to size %d exceed the limit of %d",
			domain.ErrSearchTooLarge, cost, n, k, opts.MaxEvaluations)
	}
	total := int64(-1)
	if cost.IsInt64() {
		total = cost.Int64()
	}

	res := &SearchResult{}
	var done atomic.Int64
	for size := 1; size <= k; size++ {
		best, err := exhaustiveSize(ctx, table, n, size, opts, &done, total)
		if err != nil {
			return nil, err
		}
		res.BySize = append(res.BySize, best)
	}

	res.Best = res.BySize[k-1]
	res.Evaluations = done.Load()
	spec, err := Select(domain.MethodBestFull, dim, res.Best.Dims)
	if err != nil {
		return nil, err
	}
	res.Spec = spec
	return res, nil
}

// exhaustiveSize streams all size-subsets of [0, n) to a worker pool and
// returns the best one.
func exhaustiveSize(ctx context.Context, table *verifier.PairTable, n, size int, opts SearchOptions, done *atomic.Int64, total int64) (domain.SubsetScore, error) {
	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan [][]int, opts.workers())

	g.Go(func() error {
		defer close(batches)
		gen := combin.NewCombinationGenerator(n, size)
		batch := make([][]int, 0, batchSize)
		for gen.Next() {
			batch = append(batch, gen.Combination(nil))
			if len(batch) == batchSize {
				select {
				case batches <- batch:
				case <-ctx.Done():
					return ctx.Err()
				}
				batch = make([][]int, 0, batchSize)
			}
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var (
		mu    sync.Mutex
		best  domain.SubsetScore
		found bool
	)
	for w := 0; w < opts.workers(); w++ {
		g.Go(func() error {
			scratch := table.NewScratch()
			var local domain.SubsetScore
			var have bool
			for batch := range batches {
				for _, dims := range batch {
					r, err := scratch.ScoreSubset(dims)
					if err != nil {
						return err
					}
					cand := domain.SubsetScore{Dims: dims, Result: r}
					if !have || better(cand, local) {
						local, have = cand, true
					}
				}
				d := done.Add(int64(len(batch)))
				if opts.Progress != nil {
					opts.Progress(d, total)
				}
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if have {
				mu.Lock()
				if !found || better(local, best) {
					best, found = local, true
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.SubsetScore{}, err
	}
	return best, nil
}

// Greedy grows a subset one dimension at a time, adding the candidate that
// gives the fewest errors (ties go to the lowest index). Candidates of one
// step are scored in parallel. Every candidate subset is accumulated in
// ascending dimension order, as Exhaustive does, so a subset scores the same
// in both searches.
func Greedy(ctx context.Context, table *verifier.PairTable, k int, opts SearchOptions) (*SearchResult, error) {
	dim := table.Dimension()
	n, err := opts.pool(dim)
	if err != nil {
		return nil, err
	}
	if k < 1 || k > n {
		return nil, domain.InvalidParameter("subset size %d, want 1..%d", k, n)
	}

	total := int64(0)
	for step := 0; step < k; step++ {
		total += int64(n - step)
	}

	var (
		order    []int
		selected []int // ascending
		chosen   = make([]bool, n)
		res      = &SearchResult{}
		scratchs = make([]*verifier.Scratch, opts.workers())
	)
	for i := range scratchs {
		scratchs[i] = table.NewScratch()
	}

	for step := 0; step < k; step++ {
		candidates := make([]int, 0, n-step)
		for d := 0; d < n; d++ {
			if !chosen[d] {
				candidates = append(candidates, d)
			}
		}

		best, err := greedyStep(ctx, selected, scratchs, candidates)
		if err != nil {
			return nil, err
		}
		res.Evaluations += int64(len(candidates))
		if opts.Progress != nil {
			opts.Progress(res.Evaluations, total)
		}

		if step > 0 && opts.StopOnPlateau && best.Result.Errors() >= res.Best.Result.Errors() {
			break
		}

		c := best.Dims[0]
		chosen[c] = true
		order = append(order, c)
		selected = withDim(selected, c)

		res.Best = domain.SubsetScore{Dims: slices.Clone(selected), Result: best.Result}
		res.BySize = append(res.BySize, res.Best)
	}

	spec, err := Select(domain.MethodBestGreedy, dim, order)
	if err != nil {
		return nil, err
	}
	res.Spec = spec
	return res, nil
}

// withDim returns a new ascending slice holding sorted and d.
func withDim(sorted []int, d int) []int {
	out := make([]int, 0, len(sorted)+1)
	i, _ := slices.BinarySearch(sorted, d)
	out = append(out, sorted[:i]...)
	out = append(out, d)
	return append(out, sorted[i:]...)
}

// greedyStep scores selected+c for every candidate c. The returned score's
// Dims holds only the winning candidate.
func greedyStep(ctx context.Context, selected []int, scratchs []*verifier.Scratch, candidates []int) (domain.SubsetScore, error) {
	results := make([]domain.EvaluationResult, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	for w, span := range spans(len(candidates), len(scratchs)) {
		s := scratchs[w]
		g.Go(func() error {
			for i := span[0]; i < span[1]; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				r, err := s.ScoreSubset(withDim(selected, candidates[i]))
				if err != nil {
					return err
				}
				results[i] = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.SubsetScore{}, err
	}

	bestIdx := 0
	for i := 1; i < len(results); i++ {
		if results[i].Errors() < results[bestIdx].Errors() {
			bestIdx = i
		}
	}
	return domain.SubsetScore{Dims: []int{candidates[bestIdx]}, Result: results[bestIdx]}, nil
}
