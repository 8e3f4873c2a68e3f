// Package profiler estimates how much each embedding dimension contributes
// to verification accuracy. The scores feed the heatmap renderer.
package profiler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"embreduce/internal/adapter/verifier"
	"embreduce/internal/domain"
)

type Mode string

const (
	// Ablation scores full accuracy minus accuracy without the dimension.
	Ablation Mode = "ablation"
	// Single scores the dimension's own accuracy minus the chance baseline.
	Single Mode = "single"
	// Separation scores the impostor minus the genuine sum of squared
	// per-dimension differences.
	Separation Mode = "separation"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Ablation, "":
		return Ablation, nil
	case Single:
		return Single, nil
	case Separation:
		return Separation, nil
	default:
		return "", domain.InvalidParameter("unknown heatmap mode %q, possible values: ablation, single, separation", s)
	}
}

// Profile holds one score per profiled dimension, aligned with the
// dimension index.
type Profile struct {
	Mode Mode
	// Baseline is the reference accuracy: all dimensions for ablation,
	// majority-class accuracy for single, 0 for separation.
	Baseline   float64
	Raw        []float64
	Normalized []float64
}

// Run profiles dimensions [0, amount). amount 0 profiles all of them.
func Run(ctx context.Context, table *verifier.PairTable, mode Mode, amount, workers int) (*Profile, error) {
	dim := table.Dimension()
	if amount == 0 {
		amount = dim
	}
	if amount < 1 || amount > dim {
		return nil, domain.InvalidParameter("profiled dimension count %d, want 1..%d", amount, dim)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Profile{Mode: mode, Raw: make([]float64, amount)}

	var err error
	switch mode {
	case Ablation:
		err = ablation(ctx, table, p, workers)
	case Single:
		err = single(ctx, table, p, workers)
	case Separation:
		err = separation(ctx, table, p, workers)
	default:
		return nil, domain.InvalidParameter("unknown heatmap mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	p.Normalized = Normalize(p.Raw)
	return p, nil
}

func ablation(ctx context.Context, table *verifier.PairTable, p *Profile, workers int) error {
	dim := table.Dimension()
	all := make([]int, dim)
	for d := range all {
		all[d] = d
	}
	ref, err := table.NewScratch().ScoreSubset(all)
	if err != nil {
		return err
	}
	p.Baseline = ref.Accuracy

	// subsets are summed in ascending order, as in the searches
	return forEach(ctx, len(p.Raw), workers, table, func(s *verifier.Scratch, d int) error {
		rest := make([]int, 0, dim-1)
		rest = append(rest, all[:d]...)
		rest = append(rest, all[d+1:]...)
		r, err := s.ScoreSubset(rest)
		if err != nil {
			return err
		}
		p.Raw[d] = ref.Accuracy - r.Accuracy
		return nil
	})
}

func single(ctx context.Context, table *verifier.PairTable, p *Profile, workers int) error {
	var nGenuine int
	for _, g := range table.Labels() {
		if g {
			nGenuine++
		}
	}
	n := table.Pairs()
	p.Baseline = float64(max(nGenuine, n-nGenuine)) / float64(n)

	return forEach(ctx, len(p.Raw), workers, table, func(s *verifier.Scratch, d int) error {
		r, err := s.ScoreSubset([]int{d})
		if err != nil {
			return err
		}
		p.Raw[d] = r.Accuracy - p.Baseline
		return nil
	})
}

func separation(ctx context.Context, table *verifier.PairTable, p *Profile, workers int) error {
	labels := table.Labels()
	return forEach(ctx, len(p.Raw), workers, table, func(_ *verifier.Scratch, d int) error {
		var score float64
		for i, genuine := range labels {
			sq := table.SquaredDiff(d, i)
			if genuine {
				score -= sq
			} else {
				score += sq
			}
		}
		p.Raw[d] = score
		return nil
	})
}

// forEach runs fn for dimensions [0, n) on workers goroutines, each with its
// own scratch accumulator.
func forEach(ctx context.Context, n, workers int, table *verifier.PairTable, fn func(s *verifier.Scratch, d int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	next := make(chan int)

	g.Go(func() error {
		defer close(next)
		for d := 0; d < n; d++ {
			select {
			case next <- d:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < min(workers, n); w++ {
		g.Go(func() error {
			s := table.NewScratch()
			for d := range next {
				if err := fn(s, d); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Normalize maps scores linearly onto [0, 1]. Constant input maps to zeros.
func Normalize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	lo, hi := floats.Min(raw), floats.Max(raw)
	if hi == lo {
		return out
	}
	for i, v := range raw {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
