package cli

import (
	"context"

	"github.com/spf13/cobra"

	"embreduce/internal/adapter/reducer"
)

var (
	bestPool           int
	bestMaxEvaluations int64
	bestStopOnPlateau  bool
)

var bestFullCmd = &cobra.Command{
	Use:   "best-elements-full",
	Short: "Exhaustively search the best dimension subsets",
	Long: `Evaluate every subset of up to --amount dimensions and report the best
subset of each size. The search refuses to start when the number of subsets
exceeds --max-evaluations; --pool restricts the candidates to the first N
dimensions.

Examples:
  embreduce best-elements-full --amount 3 --pool 32`,
	Args: cobra.NoArgs,
	RunE: runBestFull,
}

var bestGreedyCmd = &cobra.Command{
	Use:   "best-elements-greedy",
	Short: "Greedily select the best dimensions",
	Long: `Add one dimension at a time, always the one that reduces verification
errors the most, up to --amount dimensions.

Examples:
  embreduce best-elements-greedy --amount 70
  embreduce best-elements-greedy --amount 512 --stop-on-plateau=false`,
	Args: cobra.NoArgs,
	RunE: runBestGreedy,
}

func init() {
	rootCmd.AddCommand(bestFullCmd)
	rootCmd.AddCommand(bestGreedyCmd)
	for _, c := range []*cobra.Command{bestFullCmd, bestGreedyCmd} {
		c.Flags().IntVar(&bestPool, "pool", 0, "restrict candidates to the first N dimensions (default from config)")
	}
	bestFullCmd.Flags().Int64Var(&bestMaxEvaluations, "max-evaluations", 0, "subset evaluation limit (default from config)")
	bestGreedyCmd.Flags().BoolVar(&bestStopOnPlateau, "stop-on-plateau", false, "stop when no dimension reduces errors (default from config)")
}

func searchOptions(cmd *cobra.Command, env *runEnv, desc string) reducer.SearchOptions {
	opts := reducer.SearchOptions{
		Pool:           env.cfg.Search.Pool,
		MaxEvaluations: env.cfg.Search.MaxEvaluations,
		Workers:        env.cfg.Engine.Workers,
		StopOnPlateau:  env.cfg.Search.StopOnPlateau,
		Progress:       newProgress64(desc),
	}
	if f := cmd.Flags().Lookup("pool"); f != nil && f.Changed {
		opts.Pool = bestPool
	}
	if f := cmd.Flags().Lookup("max-evaluations"); f != nil && f.Changed {
		opts.MaxEvaluations = bestMaxEvaluations
	}
	if f := cmd.Flags().Lookup("stop-on-plateau"); f != nil && f.Changed {
		opts.StopOnPlateau = bestStopOnPlateau
	}
	return opts
}

func runBestFull(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		e, err := env.engine(ctx)
		if err != nil {
			return err
		}
		res, err := e.BestFull(ctx, amountOr(cmd, 1), searchOptions(cmd, env, "Searching"))
		if err != nil {
			return err
		}
		return writeSearch(env, res)
	})
}

func runBestGreedy(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		e, err := env.engine(ctx)
		if err != nil {
			return err
		}
		res, err := e.BestGreedy(ctx, amountOr(cmd, e.Dimension()), searchOptions(cmd, env, "Selecting"))
		if err != nil {
			return err
		}
		return writeSearch(env, res)
	})
}

func writeSearch(env *runEnv, res *reducer.SearchResult) error {
	if err := env.out.Header(columns("k", "dims")...); err != nil {
		return err
	}
	for i, s := range res.BySize {
		if err := env.out.Row(values(s.Result, i+1, s.Dims)...); err != nil {
			return err
		}
	}
	return env.out.Comment("method=%s evaluations=%d best=%v order=%v",
		res.Spec.Method, res.Evaluations, res.Best.Dims, res.Spec.Order)
}
