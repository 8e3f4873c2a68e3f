// Package quantizer implements affine b-bit quantization of embeddings.
//
// For each dimension (or once globally) the fitted parameters map the
// observed range [min, max] onto the codes 0..2^b-1:
//
//	scale = (max - min) / (2^b - 1)
//	q     = round((x - min) / scale)
//	x'    = min + q*scale
//
// so the reconstruction error of any fitted value is at most scale/2.
package quantizer

import (
	"math"

	"embreduce/internal/domain"
)

const (
	MinBits = 1
	MaxBits = 16
)

// Fit computes quantization parameters over the non-nil vectors.
func Fit(vectors [][]float32, bits int, mode domain.QuantMode) (*domain.QuantParams, error) {
	if bits < MinBits || bits > MaxBits {
		return nil, domain.InvalidParameter("bit width %d outside [%d, %d]", bits, MinBits, MaxBits)
	}
	if mode == "" {
		mode = domain.QuantPerDimension
	}
	if mode != domain.QuantPerDimension && mode != domain.QuantGlobal {
		return nil, domain.InvalidParameter("unknown quantization mode %q", mode)
	}

	dim := -1
	for _, v := range vectors {
		if v == nil {
			continue
		}
		if dim < 0 {
			dim = len(v)
		} else if len(v) != dim {
			return nil, domain.DimensionMismatch(dim, len(v))
		}
	}
	if dim <= 0 {
		return nil, domain.InvalidParameter("no vectors to fit")
	}

	slots := dim
	if mode == domain.QuantGlobal {
		slots = 1
	}
	lo := make([]float64, slots)
	hi := make([]float64, slots)
	for i := range lo {
		lo[i] = math.Inf(1)
		hi[i] = math.Inf(-1)
	}
	for _, v := range vectors {
		for d, x := range v {
			s := d
			if mode == domain.QuantGlobal {
				s = 0
			}
			lo[s] = math.Min(lo[s], float64(x))
			hi[s] = math.Max(hi[s], float64(x))
		}
	}

	levels := float64(uint32(1)<<bits - 1)
	p := &domain.QuantParams{
		Bits:      bits,
		Mode:      mode,
		Scale:     make([]float64, slots),
		ZeroPoint: lo,
	}
	for i := range p.Scale {
		p.Scale[i] = (hi[i] - lo[i]) / levels
		if p.Scale[i] == 0 {
			// constant dimension; every value decodes exactly from code 0
			p.Scale[i] = 1
		}
	}
	return p, nil
}

func zeroPoint(p *domain.QuantParams, d int) float64 {
	if p.Mode == domain.QuantGlobal {
		return p.ZeroPoint[0]
	}
	return p.ZeroPoint[d]
}

// Quantize encodes v into codes in [0, 2^bits-1].
func Quantize(p *domain.QuantParams, v []float32) []uint16 {
	maxCode := float64(uint32(1)<<p.Bits - 1)
	codes := make([]uint16, len(v))
	for d, x := range v {
		q := math.Round((float64(x) - zeroPoint(p, d)) / p.Step(d))
		codes[d] = uint16(math.Max(0, math.Min(maxCode, q)))
	}
	return codes
}

// Dequantize decodes codes back to real values.
func Dequantize(p *domain.QuantParams, codes []uint16) []float32 {
	out := make([]float32, len(codes))
	for d, q := range codes {
		out[d] = float32(zeroPoint(p, d) + float64(q)*p.Step(d))
	}
	return out
}

// Roundtrip quantizes and dequantizes v.
func Roundtrip(p *domain.QuantParams, v []float32) []float32 {
	return Dequantize(p, Quantize(p, v))
}

// MaxError returns the largest absolute reconstruction error over vectors.
func MaxError(p *domain.QuantParams, vectors [][]float32) float64 {
	var worst float64
	for _, v := range vectors {
		if v == nil {
			continue
		}
		r := Roundtrip(p, v)
		for d := range v {
			worst = math.Max(worst, math.Abs(float64(v[d])-float64(r[d])))
		}
	}
	return worst
}

// Scaled multiplies every value by scale and truncates toward zero, the
// fixed-point encoding evaluated by the quant scale sweep. It returns the
// encoded vectors and the smallest and largest code.
func Scaled(vectors [][]float32, scale float64) ([][]float32, int64, int64) {
	out := make([][]float32, len(vectors))
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	for i, v := range vectors {
		if v == nil {
			continue
		}
		o := make([]float32, len(v))
		for d, x := range v {
			q := int64(math.Trunc(float64(x) * scale))
			lo = min(lo, q)
			hi = max(hi, q)
			o[d] = float32(q)
		}
		out[i] = o
	}
	if lo > hi {
		lo, hi = 0, 0
	}
	return out, lo, hi
}
