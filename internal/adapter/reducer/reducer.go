// Package reducer applies reduction strategies to embeddings and searches for
// good dimension subsets.
package reducer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"embreduce/internal/adapter/quantizer"
	"embreduce/internal/domain"
)

// Reducer applies one ReductionSpec. It never mutates its input.
type Reducer struct {
	spec domain.ReductionSpec
}

// New validates spec and returns its reducer.
func New(spec domain.ReductionSpec) (*Reducer, error) {
	if spec.Dimension < 1 {
		return nil, domain.InvalidParameter("input dimension %d", spec.Dimension)
	}

	switch spec.Method {
	case domain.MethodTruncate, domain.MethodTruncateRel, domain.MethodRandom,
		domain.MethodBestFull, domain.MethodBestGreedy:
		if _, err := normalizeDims(spec.Dimension, spec.Dims); err != nil {
			return nil, err
		}
	case domain.MethodQuant:
		if spec.Quant == nil {
			return nil, domain.InvalidParameter("quant spec without parameters")
		}
	case domain.MethodProposed:
		if _, err := normalizeDims(spec.Dimension, spec.Dims); err != nil {
			return nil, err
		}
		if spec.Quant == nil {
			return nil, domain.InvalidParameter("proposed spec without quantization parameters")
		}
	default:
		return nil, domain.InvalidParameter("unknown method %q", spec.Method)
	}
	return &Reducer{spec: spec}, nil
}

func (r *Reducer) Spec() domain.ReductionSpec { return r.spec }

// OutputDimension is the length of reduced vectors.
func (r *Reducer) OutputDimension() int {
	if r.spec.Method == domain.MethodQuant {
		return r.spec.Dimension
	}
	return len(r.spec.Dims)
}

// Reduce maps one full embedding to its reduced representation.
func (r *Reducer) Reduce(v []float32) ([]float32, error) {
	if len(v) != r.spec.Dimension {
		return nil, domain.DimensionMismatch(r.spec.Dimension, len(v))
	}

	switch r.spec.Method {
	case domain.MethodQuant:
		return quantizer.Roundtrip(r.spec.Quant, v), nil
	case domain.MethodProposed:
		return quantizer.Roundtrip(r.spec.Quant, gather(v, r.spec.Dims)), nil
	default:
		return gather(v, r.spec.Dims), nil
	}
}

// Encode maps one full embedding to its integer codes. Only quantizing specs
// have codes.
func (r *Reducer) Encode(v []float32) ([]uint16, error) {
	if len(v) != r.spec.Dimension {
		return nil, domain.DimensionMismatch(r.spec.Dimension, len(v))
	}

	switch r.spec.Method {
	case domain.MethodQuant:
		return quantizer.Quantize(r.spec.Quant, v), nil
	case domain.MethodProposed:
		return quantizer.Quantize(r.spec.Quant, gather(v, r.spec.Dims)), nil
	default:
		return nil, domain.InvalidParameter("%s reduction has no integer codes", r.spec.Method)
	}
}

func gather(v []float32, dims []int) []float32 {
	out := make([]float32, len(dims))
	for i, d := range dims {
		out[i] = v[d]
	}
	return out
}

// Apply reduces every vector in parallel. nil entries (excluded records) stay
// nil.
func Apply(ctx context.Context, r *Reducer, vectors [][]float32, workers int) ([][]float32, error) {
	out := make([][]float32, len(vectors))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, span := range spans(len(vectors), max(workers, 1)) {
		g.Go(func() error {
			for i := span[0]; i < span[1]; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if vectors[i] == nil {
					continue
				}
				red, err := r.Reduce(vectors[i])
				if err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				out[i] = red
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func spans(n, parts int) [][2]int {
	if n == 0 {
		return nil
	}
	parts = min(parts, n)
	size := (n + parts - 1) / parts
	out := make([][2]int, 0, parts)
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}
