package usecase

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"embreduce/internal/adapter/profiler"
	"embreduce/internal/adapter/reducer"
	"embreduce/internal/adapter/verifier"
	"embreduce/internal/domain"
	"embreduce/internal/logging"
)

// Engine runs the reduction actions over one corpus. Subset strategies are
// scored through a shared pair table; value-transforming strategies are
// applied by the reducer and re-evaluated.
type Engine struct {
	corpus    *domain.Corpus
	evaluator *verifier.Evaluator
	logger    *logging.Logger

	tableOnce sync.Once
	table     *verifier.PairTable
	tableErr  error
}

// NewEngine creates an engine for corpus.
func NewEngine(corpus *domain.Corpus, evaluator *verifier.Evaluator, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{corpus: corpus, evaluator: evaluator, logger: logger}
}

func (e *Engine) Dimension() int { return e.corpus.Dimension }

// Table returns the pair table, building it on first use.
func (e *Engine) Table(ctx context.Context) (*verifier.PairTable, error) {
	e.tableOnce.Do(func() {
		e.table, e.tableErr = verifier.NewPairTable(ctx, e.evaluator.Metric(), e.corpus.Vectors, e.corpus.Pairs, e.evaluator.Workers())
		if e.tableErr == nil {
			e.logger.DebugContext(ctx, "pair table built",
				"pairs", e.table.Pairs(),
				"dimensions", e.table.Dimension(),
			)
		}
	})
	if e.tableErr != nil {
		return nil, stage("evaluate", e.tableErr)
	}
	return e.table, nil
}

// Row is one evaluated reduction.
type Row struct {
	Spec   domain.ReductionSpec
	Result domain.EvaluationResult
}

// Baseline evaluates the full embeddings.
func (e *Engine) Baseline(ctx context.Context) (domain.EvaluationResult, error) {
	res, err := e.evaluator.Evaluate(ctx, e.corpus.Vectors, e.corpus.Pairs)
	return res, stage("evaluate", err)
}

// Evaluate applies spec to every record and scores the reduced vectors.
func (e *Engine) Evaluate(ctx context.Context, spec domain.ReductionSpec) (domain.EvaluationResult, error) {
	r, err := reducer.New(spec)
	if err != nil {
		return domain.EvaluationResult{}, stage("reduce", err)
	}
	reduced, err := reducer.Apply(ctx, r, e.corpus.Vectors, e.evaluator.Workers())
	if err != nil {
		return domain.EvaluationResult{}, stage("reduce", err)
	}
	res, err := e.evaluator.Evaluate(ctx, reduced, e.corpus.Pairs)
	return res, stage("evaluate", err)
}

// Truncate evaluates the first k dimensions. k == 0 sweeps k = D..1.
func (e *Engine) Truncate(ctx context.Context, k int) ([]Row, error) {
	if k == 0 {
		return e.prefixSweep(ctx, false)
	}
	spec, err := reducer.Truncate(e.Dimension(), k)
	if err != nil {
		return nil, stage("reduce", err)
	}
	res, err := e.Evaluate(ctx, spec)
	if err != nil {
		return nil, err
	}
	return []Row{{Spec: spec, Result: res}}, nil
}

// TruncateRel evaluates the first round(p*D) dimensions. p == 0 sweeps all
// sizes D..1.
func (e *Engine) TruncateRel(ctx context.Context, p float64) ([]Row, error) {
	if p == 0 {
		return e.prefixSweep(ctx, true)
	}
	spec, err := reducer.TruncateRel(e.Dimension(), p)
	if err != nil {
		return nil, stage("reduce", err)
	}
	res, err := e.Evaluate(ctx, spec)
	if err != nil {
		return nil, err
	}
	return []Row{{Spec: spec, Result: res}}, nil
}

// prefixSweep scores every prefix [0, k) by accumulating one dimension at a
// time. Rows are returned for k = D..1.
func (e *Engine) prefixSweep(ctx context.Context, relative bool) ([]Row, error) {
	table, err := e.Table(ctx)
	if err != nil {
		return nil, err
	}
	dim := e.Dimension()
	rows := make([]Row, dim)
	s := table.NewScratch()
	for k := 1; k <= dim; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.Add(k - 1)
		res, err := s.Score()
		if err != nil {
			return nil, stage("evaluate", err)
		}
		spec, err := reducer.Truncate(dim, k)
		if err != nil {
			return nil, stage("reduce", err)
		}
		if relative {
			spec.Method = domain.MethodTruncateRel
			spec.Fraction = float64(k) / float64(dim)
		}
		rows[dim-k] = Row{Spec: spec, Result: res}
	}
	return rows, nil
}

// RandomReport summarizes the trials of one random-dimensions size.
type RandomReport struct {
	K      int
	Rows   []Row
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Random scores trials independent random selections of k dimensions. Trial
// t draws from stream t of the seeded generator.
func (e *Engine) Random(ctx context.Context, k int, seed uint64, trials int) (*RandomReport, error) {
	return e.randomTrials(ctx, k, seed, 0, trials)
}

// RandomFull sweeps k = D..1. Without resample each size gets one selection;
// with resample each size runs trials selections.
func (e *Engine) RandomFull(ctx context.Context, seed uint64, trials int, resample bool) ([]*RandomReport, error) {
	dim := e.Dimension()
	reports := make([]*RandomReport, 0, dim)
	for k := dim; k >= 1; k-- {
		var (
			rep *RandomReport
			err error
		)
		if resample {
			rep, err = e.randomTrials(ctx, k, seed, 0, trials)
		} else {
			rep, err = e.randomTrials(ctx, k, seed, k, 1)
		}
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (e *Engine) randomTrials(ctx context.Context, k int, seed uint64, first, trials int) (*RandomReport, error) {
	if trials < 1 {
		return nil, stage("reduce", domain.InvalidParameter("random trials %d, want at least 1", trials))
	}
	table, err := e.Table(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, trials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.evaluator.Workers())
	for t := 0; t < trials; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			spec, err := reducer.Random(e.Dimension(), k, seed, first+t)
			if err != nil {
				return stage("reduce", err)
			}
			res, err := table.NewScratch().ScoreSubset(spec.Dims)
			if err != nil {
				return stage("evaluate", err)
			}
			rows[t] = Row{Spec: spec, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	acc := make([]float64, trials)
	for i, r := range rows {
		acc[i] = r.Result.Accuracy
	}
	rep := &RandomReport{
		K:    k,
		Rows: rows,
		Min:  floats.Min(acc),
		Max:  floats.Max(acc),
	}
	if trials > 1 {
		rep.Mean, rep.StdDev = stat.MeanStdDev(acc, nil)
	} else {
		rep.Mean = acc[0]
	}
	return rep, nil
}

// BestFull runs the exhaustive subset search.
func (e *Engine) BestFull(ctx context.Context, k int, opts reducer.SearchOptions) (*reducer.SearchResult, error) {
	table, err := e.Table(ctx)
	if err != nil {
		return nil, err
	}
	res, err := reducer.Exhaustive(ctx, table, k, opts)
	if err != nil {
		return nil, stage("search", err)
	}
	return res, nil
}

// BestGreedy runs the greedy forward selection.
func (e *Engine) BestGreedy(ctx context.Context, k int, opts reducer.SearchOptions) (*reducer.SearchResult, error) {
	table, err := e.Table(ctx)
	if err != nil {
		return nil, err
	}
	res, err := reducer.Greedy(ctx, table, k, opts)
	if err != nil {
		return nil, stage("search", err)
	}
	return res, nil
}

// Heatmap profiles the first amount dimensions.
func (e *Engine) Heatmap(ctx context.Context, mode profiler.Mode, amount int) (*profiler.Profile, error) {
	table, err := e.Table(ctx)
	if err != nil {
		return nil, err
	}
	p, err := profiler.Run(ctx, table, mode, amount, e.evaluator.Workers())
	if err != nil {
		return nil, stage("profile", err)
	}
	return p, nil
}

// stage wraps a non-nil error in a StageError unless it already is one.
func stage(name string, err error) error {
	if err == nil {
		return nil
	}
	var se *domain.StageError
	if errors.As(err, &se) {
		return err
	}
	return domain.NewStageError(name, err)
}
