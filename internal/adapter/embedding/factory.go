// Package embedding provides the face embedding extractors: an external
// command, an HTTP service and a deterministic mock.
package embedding

import (
	"fmt"

	"embreduce/config"
	"embreduce/internal/port"
)

// New builds the extractor selected by cfg.Provider.
func New(cfg config.ExtractorConfig) (port.Extractor, error) {
	switch cfg.Provider {
	case "command", "":
		return NewCommandExtractor(cfg.Command, cfg.Model)
	case "http":
		return NewHTTPExtractor(cfg.URL, cfg.APIKeyEnv, cfg.Model, cfg.Timeout)
	case "mock":
		return NewMockExtractor(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown extractor provider %q, possible values: command, http, mock", cfg.Provider)
	}
}
