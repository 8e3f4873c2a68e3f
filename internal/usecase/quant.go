package usecase

import (
	"context"

	"embreduce/internal/adapter/quantizer"
	"embreduce/internal/adapter/reducer"
	"embreduce/internal/domain"
)

// QuantRow is one evaluated bit width.
type QuantRow struct {
	Bits     int
	Mode     domain.QuantMode
	MaxError float64
	Params   *domain.QuantParams
	Result   domain.EvaluationResult
}

// ScaleRow is one fixed-point scale of the scale sweep.
type ScaleRow struct {
	Scale   int
	MinCode int64
	MaxCode int64
	Result  domain.EvaluationResult
}

// QuantReport holds the float baseline, the affine quantization results and
// the optional scale sweep.
type QuantReport struct {
	Baseline domain.EvaluationResult
	Rows     []QuantRow
	Sweep    []ScaleRow
}

// Quant evaluates affine quantization at bits (0 sweeps every supported
// width). maxScale > 0 adds the fixed-point sweep over scales 1..maxScale.
func (e *Engine) Quant(ctx context.Context, bits int, mode domain.QuantMode, maxScale int) (*QuantReport, error) {
	base, err := e.Baseline(ctx)
	if err != nil {
		return nil, err
	}
	rep := &QuantReport{Baseline: base}

	widths := []int{bits}
	if bits == 0 {
		widths = widths[:0]
		for b := quantizer.MinBits; b <= quantizer.MaxBits; b++ {
			widths = append(widths, b)
		}
	}

	for _, b := range widths {
		row, err := e.quantize(ctx, b, mode)
		if err != nil {
			return nil, err
		}
		rep.Rows = append(rep.Rows, row)
	}

	for s := 1; s <= maxScale; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scaled, lo, hi := quantizer.Scaled(e.corpus.Vectors, float64(s))
		res, err := e.evaluator.Evaluate(ctx, scaled, e.corpus.Pairs)
		if err != nil {
			return nil, stage("evaluate", err)
		}
		rep.Sweep = append(rep.Sweep, ScaleRow{Scale: s, MinCode: lo, MaxCode: hi, Result: res})
	}
	return rep, nil
}

func (e *Engine) quantize(ctx context.Context, bits int, mode domain.QuantMode) (QuantRow, error) {
	params, err := quantizer.Fit(e.corpus.Vectors, bits, mode)
	if err != nil {
		return QuantRow{}, stage("quantize", err)
	}
	spec, err := reducer.Quantized(e.Dimension(), params)
	if err != nil {
		return QuantRow{}, stage("quantize", err)
	}
	res, err := e.Evaluate(ctx, spec)
	if err != nil {
		return QuantRow{}, err
	}
	return QuantRow{
		Bits:     bits,
		Mode:     params.Mode,
		MaxError: quantizer.MaxError(params, e.corpus.Vectors),
		Params:   params,
		Result:   res,
	}, nil
}
