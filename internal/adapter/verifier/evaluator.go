package verifier

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"embreduce/internal/domain"
)

// Evaluator scores a set of vectors against labeled pairs.
type Evaluator struct {
	metric  Metric
	workers int
	curve   bool
}

func NewEvaluator(metric Metric, workers int, curve bool) *Evaluator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Evaluator{metric: metric, workers: workers, curve: curve}
}

func (e *Evaluator) Metric() Metric { return e.metric }

func (e *Evaluator) Workers() int { return e.workers }

// Evaluate computes pair distances in parallel and sweeps the threshold.
func (e *Evaluator) Evaluate(ctx context.Context, vectors [][]float32, pairs []domain.Pair) (domain.EvaluationResult, error) {
	dists, err := e.Distances(ctx, vectors, pairs)
	if err != nil {
		return domain.EvaluationResult{}, err
	}
	return Score(dists, labels(pairs), e.curve)
}

// Distances returns one distance per pair, aligned with pairs.
func (e *Evaluator) Distances(ctx context.Context, vectors [][]float32, pairs []domain.Pair) ([]float64, error) {
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

	out := make([]float64, len(pairs))
	g, ctx := errgroup.WithContext(ctx)
	for _, span := range chunks(len(pairs), e.workers) {
		g.Go(func() error {
			for i := span[0]; i < span[1]; i++ {
				if i%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				p := pairs[i]
				out[i] = e.metric.Distance(vectors[p.A], vectors[p.B])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Score sweeps every candidate threshold (the distinct pair distances) and
// keeps the one with the fewest false accepts plus false rejects; ties go to
// the lowest threshold. A pair is accepted as genuine when its distance is at
// most the threshold.
func Score(dists []float64, genuine []bool, withCurve bool) (domain.EvaluationResult, error) {
	if len(dists) != len(genuine) {
		return domain.EvaluationResult{}, fmt.Errorf("%w: %d distances for %d labels", domain.ErrInvalidParameter, len(dists), len(genuine))
	}

	var nGenuine int
	for _, g := range genuine {
		if g {
			nGenuine++
		}
	}
	nImpostor := len(genuine) - nGenuine
	if nGenuine == 0 || nImpostor == 0 {
		return domain.EvaluationResult{}, fmt.Errorf("%w: %d genuine and %d impostor pairs", domain.ErrDegeneratePairSet, nGenuine, nImpostor)
	}

	order := make([]int, len(dists))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return dists[order[a]] < dists[order[b]] })

	var (
		tp, fp     int
		bestErrors = -1
		bestTP     int
		bestFP     int
		bestT      float64
		curve      []domain.CurvePoint
	)
	for i := 0; i < len(order); {
		t := dists[order[i]]
		for ; i < len(order) && dists[order[i]] == t; i++ {
			if genuine[order[i]] {
				tp++
			} else {
				fp++
			}
		}
		errs := fp + nGenuine - tp
		if bestErrors < 0 || errs < bestErrors {
			bestErrors, bestTP, bestFP, bestT = errs, tp, fp, t
		}
		if withCurve {
			curve = append(curve, domain.CurvePoint{
				Threshold: t,
				FAR:       float64(fp) / float64(nImpostor),
				FRR:       float64(nGenuine-tp) / float64(nGenuine),
			})
		}
	}

	fn := nGenuine - bestTP
	tn := nImpostor - bestFP
	return domain.EvaluationResult{
		Accuracy:           1 - float64(bestErrors)/float64(len(dists)),
		Threshold:          bestT,
		FalseAccepts:       bestFP,
		FalseRejects:       fn,
		Genuine:            nGenuine,
		Impostor:           nImpostor,
		FAR:                float64(bestFP) / float64(nImpostor),
		FRR:                float64(fn) / float64(nGenuine),
		FalseDiscoveryRate: ratio(bestFP, bestFP+bestTP),
		FalseOmissionRate:  ratio(fn, fn+tn),
		AUC:                auc(dists, genuine),
		Curve:              curve,
	}, nil
}

// auc is the area under the ROC curve with genuine as the positive class and
// smaller distances scoring higher.
func auc(dists []float64, genuine []bool) float64 {
	y := make([]float64, len(dists))
	classes := make([]bool, len(genuine))
	for i, d := range dists {
		y[i] = -d
	}
	copy(classes, genuine)
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)

	pts := make([][2]float64, len(fpr))
	for i := range fpr {
		pts[i] = [2]float64{fpr[i], tpr[i]}
	}
	sort.Slice(pts, func(a, b int) bool {
		if pts[a][0] != pts[b][0] {
			return pts[a][0] < pts[b][0]
		}
		return pts[a][1] < pts[b][1]
	})
	for i := range pts {
		fpr[i], tpr[i] = pts[i][0], pts[i][1]
	}
	if len(fpr) < 2 {
		return 0
	}
	return integrate.Trapezoidal(fpr, tpr)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func labels(pairs []domain.Pair) []bool {
	out := make([]bool, len(pairs))
	for i, p := range pairs {
		out[i] = p.Genuine
	}
	return out
}

// chunks splits [0, n) into at most parts contiguous spans.
func chunks(n, parts int) [][2]int {
	if n == 0 {
		return nil
	}
	if parts > n {
		parts = n
	}
	size := (n + parts - 1) / parts
	out := make([][2]int, 0, parts)
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}
