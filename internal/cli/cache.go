package cli

import (
	"context"

	"github.com/spf13/cobra"

	"embreduce/internal/adapter/fs"
	"embreduce/internal/usecase"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Embed every dataset image into the cache",
	Long: `Walk the dataset image root and extract an embedding for every image that
is not cached yet. Images are matched by dataset.<class>.includes.

Examples:
  embreduce cache --data easy --lfw-path ./lfw
  embreduce cache --data hard --cplfw-path ./cplfw/images`,
	Args: cobra.NoArgs,
	RunE: runCache,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}

func runCache(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		walker := fs.NewWalker(env.paths.Includes, nil)
		uc := usecase.NewCacheUseCase(walker, env.cache, env.cfg.Extractor.Dimension)

		result, err := uc.Warm(ctx, env.paths.Root, newProgress("Caching"))
		if err != nil {
			return err
		}

		entries, err := env.store.Count()
		if err != nil {
			return err
		}

		if err := env.out.Header("images", "hits", "extracted", "failed", "entries"); err != nil {
			return err
		}
		if err := env.out.Row(result.Total, result.Hits, result.Extracted, result.Failed, entries); err != nil {
			return err
		}
		for _, e := range result.Errors {
			if err := env.out.Comment("%v", e); err != nil {
				return err
			}
		}
		return nil
	})
}
