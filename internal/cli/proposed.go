package cli

import (
	"context"

	"github.com/spf13/cobra"

	"embreduce/internal/domain"
	"embreduce/internal/usecase"
)

var (
	proposedBits  int
	proposedMode  string
	proposedFixed bool
)

var proposedCmd = &cobra.Command{
	Use:   "proposed",
	Short: "Select dimensions, then quantize them",
	Long: `Pick --amount dimensions with the greedy search (or use a fixed selection)
and quantize the retained values to --bits bits. Quantization parameters are
fitted on the selected dimensions only.

--fixed uses the published 70-dimension selection for 512-dimensional ArcFace
embeddings; proposed.dimensions in the config supplies any other list.

Examples:
  embreduce proposed --amount 70 --bits 8
  embreduce proposed --fixed --bits 6`,
	Args: cobra.NoArgs,
	RunE: runProposed,
}

func init() {
	rootCmd.AddCommand(proposedCmd)
	proposedCmd.Flags().IntVar(&proposedBits, "bits", 0, "bit width of the retained values (default from config)")
	proposedCmd.Flags().StringVar(&proposedMode, "mode", "", "per-dimension or global (default from config quant.mode)")
	proposedCmd.Flags().BoolVar(&proposedFixed, "fixed", false, "use the published ArcFace 512 selection")
	proposedCmd.Flags().IntVar(&bestPool, "pool", 0, "restrict greedy candidates to the first N dimensions (default from config)")
}

func runProposed(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		opts := usecase.ProposedOptions{
			Dims:   amountOr(cmd, env.cfg.Proposed.Dims),
			Bits:   env.cfg.Proposed.Bits,
			Mode:   domain.QuantMode(env.cfg.Quant.Mode),
			Fixed:  env.cfg.Proposed.Dimensions,
			Search: searchOptions(cmd, env, "Selecting"),
		}
		if proposedBits > 0 {
			opts.Bits = proposedBits
		}
		if proposedMode != "" {
			opts.Mode = domain.QuantMode(proposedMode)
		}
		if proposedFixed {
			opts.Fixed = usecase.ArcFace512Selection
		}

		e, err := env.engine(ctx)
		if err != nil {
			return err
		}
		rep, err := e.Proposed(ctx, opts)
		if err != nil {
			return err
		}

		if err := env.out.Header(columns("method", "k", "bits", "dims")...); err != nil {
			return err
		}
		if err := env.out.Row(values(rep.Baseline, "full", e.Dimension(), 32, []int(nil))...); err != nil {
			return err
		}
		return env.out.Row(values(rep.Result, string(rep.Spec.Method), rep.Spec.K, rep.Spec.Bits, rep.Spec.Order)...)
	})
}
