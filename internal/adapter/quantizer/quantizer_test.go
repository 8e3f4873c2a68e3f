package quantizer

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embreduce/internal/domain"
)

func randomVectors(n, dim int, seed uint64) [][]float32 {
	rng := rand.New(rand.NewPCG(seed, 0))
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		for d := range out[i] {
			out[i][d] = float32(rng.NormFloat64() * float64(d+1))
		}
	}
	return out
}

func TestRoundtrip_ErrorBound(t *testing.T) {
	vectors := randomVectors(50, 6, 7)

	for _, mode := range []domain.QuantMode{domain.QuantPerDimension, domain.QuantGlobal} {
		for _, bits := range []int{1, 2, 4, 8, 12, 16} {
			p, err := Fit(vectors, bits, mode)
			require.NoError(t, err)

			for _, v := range vectors {
				r := Roundtrip(p, v)
				for d := range v {
					bound := p.Step(d)/2 + 1e-5
					assert.LessOrEqualf(t, abs(float64(v[d])-float64(r[d])), bound,
						"mode=%s bits=%d dim=%d", mode, bits, d)
				}
			}
		}
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestFit_Parameters(t *testing.T) {
	vectors := [][]float32{
		{0, 10, 5},
		{3, 20, 5},
		nil,
	}

	p, err := Fit(vectors, 2, domain.QuantPerDimension)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10, 5}, p.ZeroPoint)
	assert.Equal(t, []float64{1, 10.0 / 3.0, 1}, p.Scale)

	codes := Quantize(p, []float32{3, 20, 5})
	assert.Equal(t, []uint16{3, 3, 0}, codes)
	assert.Equal(t, []float32{3, 20, 5}, Dequantize(p, codes))

	g, err := Fit(vectors, 3, domain.QuantGlobal)
	require.NoError(t, err)
	assert.Len(t, g.Scale, 1)
	assert.Equal(t, 0.0, g.ZeroPoint[0])
	assert.InDelta(t, 20.0/7.0, g.Step(2), 1e-12)
}

func TestQuantize_Clamps(t *testing.T) {
	p, err := Fit([][]float32{{0}, {1}}, 1, domain.QuantPerDimension)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0}, Quantize(p, []float32{-5}))
	assert.Equal(t, []uint16{1}, Quantize(p, []float32{5}))
}

func TestFit_Invalid(t *testing.T) {
	v := [][]float32{{1, 2}}
	for _, bits := range []int{0, 17} {
		_, err := Fit(v, bits, domain.QuantPerDimension)
		assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	}
	_, err := Fit(v, 4, "log")
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = Fit([][]float32{{1, 2}, {1}}, 4, domain.QuantGlobal)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = Fit(nil, 4, domain.QuantGlobal)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestMaxError(t *testing.T) {
	vectors := randomVectors(20, 4, 3)
	p8, err := Fit(vectors, 8, domain.QuantPerDimension)
	require.NoError(t, err)
	p2, err := Fit(vectors, 2, domain.QuantPerDimension)
	require.NoError(t, err)
	assert.Less(t, MaxError(p8, vectors), MaxError(p2, vectors))
}

func TestScaled(t *testing.T) {
	out, lo, hi := Scaled([][]float32{{0.55, -0.27}, nil, {0.1, 0.95}}, 10)
	assert.Equal(t, []float32{5, -2}, out[0])
	assert.Nil(t, out[1])
	assert.Equal(t, []float32{1, 9}, out[2])
	assert.Equal(t, int64(-2), lo)
	assert.Equal(t, int64(9), hi)
}
