package cli

import (
	"context"

	"github.com/spf13/cobra"

	"embreduce/internal/usecase"
)

var truncateFraction float64

var truncateCmd = &cobra.Command{
	Use:   "truncate-embedding-size",
	Short: "Evaluate embeddings truncated to their first dimensions",
	Long: `Keep the first --amount dimensions of every embedding and evaluate
verification accuracy. --amount 0 sweeps every size from the full dimension
down to 1.

Examples:
  embreduce truncate-embedding-size --amount 128
  embreduce truncate-embedding-size --amount 0 --output json`,
	Args: cobra.NoArgs,
	RunE: runTruncate,
}

var truncateRelCmd = &cobra.Command{
	Use:   "truncate-embedding-size-rel",
	Short: "Evaluate embeddings truncated to a fraction of their dimensions",
	Long: `Keep the first round(fraction * D) dimensions, at least one. A fraction of
0 sweeps every size.

Examples:
  embreduce truncate-embedding-size-rel --fraction 0.25
  embreduce truncate-embedding-size-rel --fraction 0`,
	Args: cobra.NoArgs,
	RunE: runTruncateRel,
}

func init() {
	rootCmd.AddCommand(truncateCmd)
	rootCmd.AddCommand(truncateRelCmd)
	truncateRelCmd.Flags().Float64Var(&truncateFraction, "fraction", 0, "retained fraction in (0, 1]; 0 sweeps all sizes")
}

func runTruncate(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		e, err := env.engine(ctx)
		if err != nil {
			return err
		}
		rows, err := e.Truncate(ctx, amountOr(cmd, 0))
		if err != nil {
			return err
		}
		return writeTruncation(env, rows)
	})
}

func runTruncateRel(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		e, err := env.engine(ctx)
		if err != nil {
			return err
		}
		rows, err := e.TruncateRel(ctx, truncateFraction)
		if err != nil {
			return err
		}
		return writeTruncation(env, rows)
	})
}

func writeTruncation(env *runEnv, rows []usecase.Row) error {
	if err := env.out.Header(columns("method", "k", "fraction")...); err != nil {
		return err
	}
	for _, r := range rows {
		fraction := r.Spec.Fraction
		if fraction == 0 {
			fraction = float64(r.Spec.K) / float64(r.Spec.Dimension)
		}
		if err := env.out.Row(values(r.Result, string(r.Spec.Method), r.Spec.K, fraction)...); err != nil {
			return err
		}
	}
	return nil
}
