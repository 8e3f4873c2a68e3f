package cli

import (
	"context"

	"github.com/spf13/cobra"

	"embreduce/internal/domain"
)

var (
	quantMode        string
	quantSweepScales bool
	quantMaxScale    int
)

var quantCmd = &cobra.Command{
	Use:   "quant",
	Short: "Evaluate quantized embeddings",
	Long: `Quantize every embedding value to --amount bits (1-16) with an affine
scale and zero point, fitted per dimension or globally, and evaluate the
dequantized vectors. --amount 0 evaluates every bit width. --sweep-scales adds
a fixed-point sweep: values multiplied by 1..--max-scale and truncated.

Examples:
  embreduce quant --amount 8
  embreduce quant --amount 0 --mode global
  embreduce quant --amount 4 --sweep-scales --max-scale 50`,
	Args: cobra.NoArgs,
	RunE: runQuant,
}

func init() {
	rootCmd.AddCommand(quantCmd)
	quantCmd.Flags().StringVar(&quantMode, "mode", "", "per-dimension or global (default from config)")
	quantCmd.Flags().BoolVar(&quantSweepScales, "sweep-scales", false, "add the fixed-point scale sweep (default from config)")
	quantCmd.Flags().IntVar(&quantMaxScale, "max-scale", 0, "largest scale of the sweep (default from config)")
}

func runQuant(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		mode := domain.QuantMode(env.cfg.Quant.Mode)
		if quantMode != "" {
			mode = domain.QuantMode(quantMode)
		}
		sweep := env.cfg.Quant.SweepScales
		if cmd.Flags().Changed("sweep-scales") {
			sweep = quantSweepScales
		}
		maxScale := 0
		if sweep {
			maxScale = env.cfg.Quant.MaxScale
			if quantMaxScale > 0 {
				maxScale = quantMaxScale
			}
		}

		e, err := env.engine(ctx)
		if err != nil {
			return err
		}
		rep, err := e.Quant(ctx, amountOr(cmd, 8), mode, maxScale)
		if err != nil {
			return err
		}

		if err := writeBaseline(env, rep.Baseline); err != nil {
			return err
		}
		if err := env.out.Header(columns("bits", "mode", "max_error")...); err != nil {
			return err
		}
		for _, r := range rep.Rows {
			if err := env.out.Row(values(r.Result, r.Bits, string(r.Mode), r.MaxError)...); err != nil {
				return err
			}
		}
		if len(rep.Sweep) == 0 {
			return nil
		}

		if err := env.out.Header(columns("scale", "min_code", "max_code")...); err != nil {
			return err
		}
		for _, r := range rep.Sweep {
			if err := env.out.Row(values(r.Result, r.Scale, r.MinCode, r.MaxCode)...); err != nil {
				return err
			}
		}
		return nil
	})
}
