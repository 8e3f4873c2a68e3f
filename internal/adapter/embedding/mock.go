package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vecgo/distance"
)

// MockExtractor derives a unit-length embedding from the image bytes, so equal
// images always embed identically.
type MockExtractor struct {
	dimension int
	version   string
	calls     atomic.Int64

	mu   sync.RWMutex
	fail map[string]error
}

func NewMockExtractor(dimension int) *MockExtractor {
	return &MockExtractor{
		dimension: dimension,
		version:   "mock",
		fail:      make(map[string]error),
	}
}

// WithVersion overrides the reported extractor version.
func (e *MockExtractor) WithVersion(v string) *MockExtractor {
	e.version = v
	return e
}

// FailOn makes every extraction of path return err.
func (e *MockExtractor) FailOn(path string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail[path] = err
}

// Calls returns how many times Extract was invoked.
func (e *MockExtractor) Calls() int {
	return int(e.calls.Load())
}

func (e *MockExtractor) Extract(ctx context.Context, path string, image []byte) ([]float32, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	err := e.fail[path]
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(image)
	rng := rand.New(rand.NewPCG(binary.LittleEndian.Uint64(sum[:8]), binary.LittleEndian.Uint64(sum[8:16])))

	vec := make([]float32, e.dimension)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}
	distance.NormalizeL2InPlace(vec)
	return vec, nil
}

func (e *MockExtractor) Version() string {
	return e.version
}
