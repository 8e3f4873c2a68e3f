package port

import "embreduce/internal/domain"

// FileWalker lists files under a root directory.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// DatasetLoader parses a pairs file into records and labeled pairs.
type DatasetLoader interface {
	Load(pairsFile, root string) (domain.Dataset, error)
	Name() string
}
