package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	randomSeed     uint64
	randomTrials   int
	randomResample bool
)

var randomCmd = &cobra.Command{
	Use:   "random-dimensions",
	Short: "Evaluate random dimension subsets",
	Long: `Draw --trials independent random subsets of --amount dimensions and
evaluate each. The same seed reproduces the same subsets.

Examples:
  embreduce random-dimensions --amount 64 --trials 100 --seed 7`,
	Args: cobra.NoArgs,
	RunE: runRandom,
}

var randomFullCmd = &cobra.Command{
	Use:   "random-dimensions-full",
	Short: "Sweep random dimension subsets over every size",
	Long: `Evaluate a random subset for every size from the full dimension down to 1.
With --resample every size draws --trials subsets and reports their spread.

Examples:
  embreduce random-dimensions-full --seed 1
  embreduce random-dimensions-full --resample --trials 20`,
	Args: cobra.NoArgs,
	RunE: runRandomFull,
}

func init() {
	rootCmd.AddCommand(randomCmd)
	rootCmd.AddCommand(randomFullCmd)
	for _, c := range []*cobra.Command{randomCmd, randomFullCmd} {
		c.Flags().Uint64Var(&randomSeed, "seed", 0, "random seed (default from config)")
		c.Flags().IntVar(&randomTrials, "trials", 0, "number of subsets per size (default from config)")
	}
	randomFullCmd.Flags().BoolVar(&randomResample, "resample", false, "draw --trials subsets per size (default from config)")
}

func randomParams(cmd *cobra.Command, env *runEnv) (seed uint64, trials int, resample bool) {
	seed, trials, resample = env.cfg.Random.Seed, env.cfg.Random.Trials, env.cfg.Random.Resample
	if cmd.Flags().Changed("seed") {
		seed = randomSeed
	}
	if cmd.Flags().Changed("trials") {
		trials = randomTrials
	}
	if cmd.Flags().Changed("resample") {
		resample = randomResample
	}
	return seed, trials, resample
}

func runRandom(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		e, err := env.engine(ctx)
		if err != nil {
			return err
		}
		seed, trials, _ := randomParams(cmd, env)

		rep, err := e.Random(ctx, amountOr(cmd, e.Dimension()), seed, trials)
		if err != nil {
			return err
		}

		if err := env.out.Header(columns("trial", "k", "dims")...); err != nil {
			return err
		}
		for i, r := range rep.Rows {
			if err := env.out.Row(values(r.Result, i, r.Spec.K, r.Spec.Dims)...); err != nil {
				return err
			}
		}
		return env.out.Comment("seed=%d trials=%d mean=%v std=%v min=%v max=%v",
			seed, trials, rep.Mean, rep.StdDev, rep.Min, rep.Max)
	})
}

func runRandomFull(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		e, err := env.engine(ctx)
		if err != nil {
			return err
		}
		seed, trials, resample := randomParams(cmd, env)

		reps, err := e.RandomFull(ctx, seed, trials, resample)
		if err != nil {
			return err
		}

		if err := env.out.Header("k", "trials", "mean", "std", "min", "max"); err != nil {
			return err
		}
		for _, rep := range reps {
			if err := env.out.Row(rep.K, len(rep.Rows), rep.Mean, rep.StdDev, rep.Min, rep.Max); err != nil {
				return err
			}
		}
		return env.out.Comment("seed=%d resample=%v", seed, resample)
	})
}
