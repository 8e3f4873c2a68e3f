package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"embreduce/config"
	"embreduce/internal/adapter/cache"
	"embreduce/internal/adapter/dataset"
	"embreduce/internal/adapter/embedding"
	"embreduce/internal/adapter/memstore"
	"embreduce/internal/adapter/report"
	"embreduce/internal/adapter/store"
	"embreduce/internal/adapter/verifier"
	"embreduce/internal/domain"
	"embreduce/internal/logging"
	"embreduce/internal/port"
	"embreduce/internal/usecase"
)

// runEnv holds everything an action needs: the resolved dataset, logger,
// embedding cache and result writer.
type runEnv struct {
	cfg    *config.Config
	runID  string
	logger *logging.Logger
	loader port.DatasetLoader
	paths  config.DatasetPaths
	store  port.EmbeddingStore
	cache  *cache.EmbeddingCache
	out    *report.Writer
}

// setup resolves the dataset for --data, opens the embedding cache and builds
// the extractor. Callers must call close.
func setup(cmd *cobra.Command) (*runEnv, error) {
	cfg := GetConfig()

	loader, err := dataset.ForClass(dataClass)
	if err != nil {
		return nil, domain.NewStageError("load", fmt.Errorf("%w: %v", domain.ErrInvalidParameter, err))
	}
	paths, err := cfg.Paths(dataClass)
	if err != nil {
		return nil, domain.NewStageError("load", fmt.Errorf("%w: %v", domain.ErrInvalidParameter, err))
	}
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	runID := report.NewRunID()
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format).
		WithRun(runID).
		WithAction(cmd.Name()).
		WithDataset(loader.Name())

	// Create extractor
	ext, err := embedding.New(cfg.Extractor)
	if err != nil {
		return nil, domain.NewStageError("extract", err)
	}

	// Open the embedding cache
	st, err := openStore(cmd.Context(), cfg, loader.Name(), ext.Version(), logger)
	if err != nil {
		return nil, err
	}

	c := cache.NewEmbeddingCache(st, ext, cache.Options{
		Dimension: cfg.Extractor.Dimension,
		Workers:   cfg.Engine.Workers,
		Retries:   cfg.Extractor.Retries,
		Logger:    logger,
		Normalize: cfg.Extractor.Normalize,
	})

	return &runEnv{
		cfg:    cfg,
		runID:  runID,
		logger: logger,
		loader: loader,
		paths:  paths,
		store:  st,
		cache:  c,
		out:    report.NewWriter(cmd.OutOrStdout(), format, runID),
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, name, version string, logger *logging.Logger) (port.EmbeddingStore, error) {
	if !cfg.Cache.Enabled {
		logger.DebugContext(ctx, "persistent cache disabled")
		return memstore.NewEmbeddingStore(), nil
	}
	if err := config.EnsureCacheDir(cfg.Cache.Dir); err != nil {
		return nil, domain.NewStageError("cache", fmt.Errorf("failed to create cache directory: %w", err))
	}

	dbPath := config.CacheDBPath(cfg.Cache.Dir, name)
	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return nil, domain.NewStageError("cache", fmt.Errorf("failed to open cache: %w", err))
	}

	// Check for schema migration or rebuild
	result, err := st.Prepare(version, cfg.Extractor.Dimension)
	if err != nil {
		st.Close()
		return nil, domain.NewStageError("cache", fmt.Errorf("migration failed: %w", err))
	}
	if result.NeedsRebuild {
		logger.WarnContext(ctx, "cache rebuilt", "path", dbPath, "reason", result.Reason)
	} else if result.NeedsMigration {
		logger.InfoContext(ctx, "cache migrated", "path", dbPath, "reason", result.Reason)
	}
	return st, nil
}

func (e *runEnv) close() error {
	if err := e.out.Flush(); err != nil {
		e.store.Close()
		return err
	}
	return e.store.Close()
}

// session loads the pairs file and embeds its records.
func (e *runEnv) session(ctx context.Context) (*usecase.Session, error) {
	load := usecase.NewLoadUseCase(e.loader, e.cache, e.cfg.Extractor.Dimension, e.logger)
	s, err := load.Load(ctx, e.paths.PairsFile, e.paths.Root, newProgress("Embedding"))
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "corpus ready",
		"pairs", len(s.Corpus.Pairs),
		"genuine", s.Corpus.Genuine(),
		"excluded", s.Records.Excluded(),
	)
	return s, nil
}

// engine loads the session and builds the evaluation engine over it.
func (e *runEnv) engine(ctx context.Context) (*usecase.Engine, error) {
	s, err := e.session(ctx)
	if err != nil {
		return nil, err
	}
	return e.engineFor(s)
}

func (e *runEnv) engineFor(s *usecase.Session) (*usecase.Engine, error) {
	metric, err := verifier.ParseMetric(e.cfg.Engine.Metric)
	if err != nil {
		return nil, domain.NewStageError("evaluate", err)
	}
	ev := verifier.NewEvaluator(metric, e.cfg.Engine.Workers, e.cfg.Engine.Curve)
	return usecase.NewEngine(s.Corpus, ev, e.logger), nil
}

// amountOr returns --amount when it was given, def otherwise.
func amountOr(cmd *cobra.Command, def int) int {
	if cmd.Flags().Changed("amount") {
		return amount
	}
	return def
}

// withEnv runs fn with a prepared environment and closes it afterwards.
func withEnv(cmd *cobra.Command, fn func(ctx context.Context, env *runEnv) error) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := fn(cmd.Context(), env); err != nil {
		env.close()
		return err
	}
	return env.close()
}
