package usecase

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"embreduce/internal/adapter/cache"
	"embreduce/internal/adapter/fs"
	"embreduce/internal/adapter/memstore"
	"embreduce/internal/domain"
	"embreduce/internal/port"
)

// CacheUseCase fills the embedding cache for every image under a dataset
// root, independent of any pairs file.
type CacheUseCase struct {
	walker    port.FileWalker
	cache     *cache.EmbeddingCache
	dimension int
}

// NewCacheUseCase creates a new cache use case.
func NewCacheUseCase(walker port.FileWalker, c *cache.EmbeddingCache, dimension int) *CacheUseCase {
	return &CacheUseCase{walker: walker, cache: c, dimension: dimension}
}

// Warm embeds all matching images below root.
func (u *CacheUseCase) Warm(ctx context.Context, root string, progress func(done, total int)) (*cache.PopulateResult, error) {
	if err := fs.CheckRoot(root); err != nil {
		return nil, domain.NewStageError("load", err)
	}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, domain.NewStageError("load", fmt.Errorf("failed to walk directory: %w", err))
	}

	ds := domain.Dataset{Name: "images", Root: root}
	for _, f := range files {
		ds.Records = append(ds.Records, domain.Record{
			ID:         f.Path,
			Identity:   identityOf(f.Path),
			SourcePath: filepath.Join(root, filepath.FromSlash(f.Path)),
		})
	}

	res, err := u.cache.Populate(ctx, memstore.NewRecordStore(ds, u.dimension), progress)
	if err != nil {
		return nil, domain.NewStageError("extract", err)
	}
	return res, nil
}

// identityOf uses the parent directory as the identity label, the LFW layout.
func identityOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return strings.TrimSuffix(rel, path.Ext(rel))
	}
	return path.Base(dir)
}
