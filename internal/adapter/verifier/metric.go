// Package verifier scores face-verification pairs: one distance per labeled
// pair, then a threshold sweep that minimizes misclassifications.
package verifier

import (
	"fmt"
	"math"
)

// Metric is the pair distance used for one run.
type Metric string

const (
	// Euclidean is the squared L2 distance.
	Euclidean Metric = "euclidean"
	// Cosine is 1 - cos(a, b).
	Cosine Metric = "cosine"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case Euclidean, "":
		return Euclidean, nil
	case Cosine:
		return Cosine, nil
	default:
		return "", fmt.Errorf("unknown metric %q, possible values: euclidean, cosine", s)
	}
}

// Distance computes the metric between two vectors of equal length. Per
// dimension terms are formed in float64 and summed in ascending dimension
// order, the same arithmetic a PairTable performs for the same dimensions, so
// both paths yield bitwise identical distances.
func (m Metric) Distance(a, b []float32) float64 {
	if m == Cosine {
		var dot, na, nb float64
		for d := range a {
			x, y := float64(a[d]), float64(b[d])
			// Explicit conversions keep the products from being fused into
			// the sums.
			dot += float64(x * y)
			na += float64(x * x)
			nb += float64(y * y)
		}
		return cosineDistance(dot, na, nb)
	}
	var sum float64
	for d := range a {
		diff := float64(a[d]) - float64(b[d])
		sum += float64(diff * diff)
	}
	return sum
}

// width is the number of additive per-dimension components the metric needs.
func (m Metric) width() int {
	if m == Cosine {
		return 3
	}
	return 1
}

func cosineDistance(dot, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/math.Sqrt(na*nb)
}
