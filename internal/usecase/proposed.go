package usecase

import (
	"context"

	"embreduce/internal/adapter/quantizer"
	"embreduce/internal/adapter/reducer"
	"embreduce/internal/domain"
)

// ArcFace512Selection is a fixed 70-dimension selection for 512-dimensional
// ArcFace embeddings, found by greedy search on LFW.
var ArcFace512Selection = []int{
	7, 9, 11, 21, 23, 30, 33, 35, 60, 61, 68, 84, 87, 92, 100, 120, 133, 134, 136, 156,
	163, 165, 167, 172, 180, 193, 202, 208, 209, 210, 211, 220, 241, 249, 262, 264, 265,
	268, 276, 279, 280, 281, 283, 294, 308, 322, 324, 325, 327, 338, 354, 360, 364, 366,
	371, 382, 408, 420, 421, 427, 433, 458, 464, 469, 470, 478, 479, 485, 488, 490,
}

// ExportSelection returns the fixed selection of the proposed export: the
// configured list, else ArcFace512Selection for 512-dimensional embeddings.
// nil means the selection has to be searched.
func ExportSelection(dim int, configured []int) []int {
	if len(configured) > 0 {
		return configured
	}
	if dim != 512 {
		return nil
	}
	return ArcFace512Selection
}

// ProposedOptions configures the select-then-quantize pipeline.
type ProposedOptions struct {
	Dims int
	Bits int
	Mode domain.QuantMode
	// Fixed skips the search and uses this selection.
	Fixed  []int
	Search reducer.SearchOptions
}

// ProposedReport compares the proposed representation with the full
// embeddings.
type ProposedReport struct {
	Baseline  domain.EvaluationResult
	Selection *reducer.SearchResult // nil for a fixed selection
	Spec      domain.ReductionSpec
	Result    domain.EvaluationResult
}

// Proposed selects dimensions, quantizes the retained values and evaluates
// the result.
func (e *Engine) Proposed(ctx context.Context, opts ProposedOptions) (*ProposedReport, error) {
	base, err := e.Baseline(ctx)
	if err != nil {
		return nil, err
	}
	spec, sel, err := e.ProposedSpec(ctx, opts)
	if err != nil {
		return nil, err
	}
	res, err := e.Evaluate(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &ProposedReport{Baseline: base, Selection: sel, Spec: spec, Result: res}, nil
}

// ProposedSpec builds the select-then-quantize spec. Quantization parameters
// are fitted on the selected dimensions only.
func (e *Engine) ProposedSpec(ctx context.Context, opts ProposedOptions) (domain.ReductionSpec, *reducer.SearchResult, error) {
	dims := opts.Fixed
	var sel *reducer.SearchResult
	if len(dims) == 0 {
		var err error
		sel, err = e.BestGreedy(ctx, opts.Dims, opts.Search)
		if err != nil {
			return domain.ReductionSpec{}, nil, err
		}
		dims = sel.Spec.Order
	}

	picked, err := reducer.Select(domain.MethodProposed, e.Dimension(), dims)
	if err != nil {
		return domain.ReductionSpec{}, nil, stage("reduce", err)
	}
	r, err := reducer.New(domain.ReductionSpec{Method: domain.MethodTruncate, Dimension: e.Dimension(), Dims: picked.Dims})
	if err != nil {
		return domain.ReductionSpec{}, nil, stage("reduce", err)
	}
	selected, err := reducer.Apply(ctx, r, e.corpus.Vectors, e.evaluator.Workers())
	if err != nil {
		return domain.ReductionSpec{}, nil, stage("reduce", err)
	}

	params, err := quantizer.Fit(selected, opts.Bits, opts.Mode)
	if err != nil {
		return domain.ReductionSpec{}, nil, stage("quantize", err)
	}
	spec, err := reducer.Proposed(e.Dimension(), dims, params)
	if err != nil {
		return domain.ReductionSpec{}, nil, stage("quantize", err)
	}
	return spec, sel, nil
}
