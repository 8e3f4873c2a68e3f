package reducer

import (
	"math"
	"math/rand/v2"
	"slices"

	"embreduce/internal/domain"
)

// Truncate keeps dimensions [0, k).
func Truncate(dim, k int) (domain.ReductionSpec, error) {
	if k < 1 || k > dim {
		return domain.ReductionSpec{}, domain.InvalidParameter("truncation to %d dims, want 1..%d", k, dim)
	}
	return domain.ReductionSpec{
		Method:    domain.MethodTruncate,
		Dimension: dim,
		K:         k,
		Dims:      prefix(k),
	}, nil
}

// TruncateRel keeps the first round(p*dim) dimensions, at least one.
func TruncateRel(dim int, p float64) (domain.ReductionSpec, error) {
	if !(p > 0 && p <= 1) {
		return domain.ReductionSpec{}, domain.InvalidParameter("relative size %v outside (0, 1]", p)
	}
	k := max(1, int(math.Round(p*float64(dim))))
	return domain.ReductionSpec{
		Method:    domain.MethodTruncateRel,
		Dimension: dim,
		K:         k,
		Fraction:  p,
		Dims:      prefix(k),
	}, nil
}

// Random samples k distinct dimensions. The same seed and trial always yield
// the same selection.
func Random(dim, k int, seed uint64, trial int) (domain.ReductionSpec, error) {
	if k < 1 || k > dim {
		return domain.ReductionSpec{}, domain.InvalidParameter("random selection of %d dims, want 1..%d", k, dim)
	}
	rng := rand.New(rand.NewPCG(seed, uint64(trial)))
	dims := rng.Perm(dim)[:k]
	slices.Sort(dims)
	return domain.ReductionSpec{
		Method:    domain.MethodRandom,
		Dimension: dim,
		K:         k,
		Seed:      seed,
		Dims:      dims,
	}, nil
}

// Select builds a spec for an explicit dimension set, e.g. a search result
// or a configured list.
func Select(method domain.Method, dim int, dims []int) (domain.ReductionSpec, error) {
	sorted, err := normalizeDims(dim, dims)
	if err != nil {
		return domain.ReductionSpec{}, err
	}
	return domain.ReductionSpec{
		Method:    method,
		Dimension: dim,
		K:         len(sorted),
		Dims:      sorted,
		Order:     append([]int(nil), dims...),
	}, nil
}

// Quantized builds a quantization spec over all dimensions.
func Quantized(dim int, params *domain.QuantParams) (domain.ReductionSpec, error) {
	if params == nil {
		return domain.ReductionSpec{}, domain.InvalidParameter("missing quantization parameters")
	}
	if params.Mode == domain.QuantPerDimension && len(params.Scale) != dim {
		return domain.ReductionSpec{}, domain.DimensionMismatch(dim, len(params.Scale))
	}
	return domain.ReductionSpec{
		Method:    domain.MethodQuant,
		Dimension: dim,
		Bits:      params.Bits,
		Quant:     params,
	}, nil
}

// Proposed selects dims and quantizes the retained values. params are fitted
// on the selected dimensions in ascending order.
func Proposed(dim int, dims []int, params *domain.QuantParams) (domain.ReductionSpec, error) {
	spec, err := Select(domain.MethodProposed, dim, dims)
	if err != nil {
		return domain.ReductionSpec{}, err
	}
	if params == nil {
		return domain.ReductionSpec{}, domain.InvalidParameter("missing quantization parameters")
	}
	if params.Mode == domain.QuantPerDimension && len(params.Scale) != len(spec.Dims) {
		return domain.ReductionSpec{}, domain.DimensionMismatch(len(spec.Dims), len(params.Scale))
	}
	spec.Bits = params.Bits
	spec.Quant = params
	return spec, nil
}

func normalizeDims(dim int, dims []int) ([]int, error) {
	if len(dims) == 0 {
		return nil, domain.InvalidParameter("empty dimension set")
	}
	if len(dims) > dim {
		return nil, domain.InvalidParameter("%d dims selected from %d", len(dims), dim)
	}
	sorted := slices.Clone(dims)
	slices.Sort(sorted)
	for i, d := range sorted {
		if d < 0 || d >= dim {
			return nil, domain.InvalidParameter("dimension %d outside [0, %d)", d, dim)
		}
		if i > 0 && sorted[i-1] == d {
			return nil, domain.InvalidParameter("dimension %d selected twice", d)
		}
	}
	return sorted, nil
}

func prefix(k int) []int {
	dims := make([]int, k)
	for i := range dims {
		dims[i] = i
	}
	return dims
}
