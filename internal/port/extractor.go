package port

import "context"

// Extractor produces an embedding for one face image. It is treated as an
// opaque external model.
type Extractor interface {
	// Extract returns the embedding for the image at path with content image.
	Extract(ctx context.Context, path string, image []byte) ([]float32, error)

	// Version identifies the extractor; cache entries written by a different
	// version are rejected.
	Version() string
}
