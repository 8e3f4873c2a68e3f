package usecase

import (
	"context"

	"embreduce/internal/adapter/cache"
	"embreduce/internal/adapter/memstore"
	"embreduce/internal/domain"
	"embreduce/internal/logging"
	"embreduce/internal/port"
)

// Session is a dataset whose records have been embedded and is ready for
// evaluation.
type Session struct {
	Dataset  string
	Records  *memstore.RecordStore
	Corpus   *domain.Corpus
	Populate *cache.PopulateResult
}

// LoadUseCase parses a dataset and embeds its records through the cache.
type LoadUseCase struct {
	loader    port.DatasetLoader
	cache     *cache.EmbeddingCache
	dimension int
	logger    *logging.Logger
}

// NewLoadUseCase creates a new load use case.
func NewLoadUseCase(loader port.DatasetLoader, c *cache.EmbeddingCache, dimension int, logger *logging.Logger) *LoadUseCase {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LoadUseCase{
		loader:    loader,
		cache:     c,
		dimension: dimension,
		logger:    logger,
	}
}

// Load reads the pairs file, populates embeddings and snapshots the corpus.
// Records that fail extraction are excluded; a dataset with no usable record
// is an error.
func (u *LoadUseCase) Load(ctx context.Context, pairsFile, root string, progress func(done, total int)) (*Session, error) {
	ds, err := u.loader.Load(pairsFile, root)
	if err != nil {
		return nil, domain.NewStageError("load", err)
	}
	u.logger.InfoContext(ctx, "dataset loaded",
		"dataset", u.loader.Name(),
		"records", len(ds.Records),
		"pairs", len(ds.Pairs),
	)

	rs := memstore.NewRecordStore(ds, u.dimension)
	res, err := u.cache.Populate(ctx, rs, progress)
	if err != nil {
		return nil, domain.NewStageError("extract", err)
	}

	corpus, err := rs.Corpus()
	if err != nil {
		return nil, domain.NewStageError("extract", err)
	}
	if dropped := len(ds.Pairs) - len(corpus.Pairs); dropped > 0 {
		u.logger.WarnContext(ctx, "pairs dropped",
			"dropped", dropped,
			"remaining", len(corpus.Pairs),
		)
	}

	return &Session{
		Dataset:  u.loader.Name(),
		Records:  rs,
		Corpus:   corpus,
		Populate: res,
	}, nil
}
