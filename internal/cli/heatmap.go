package cli

import (
	"context"

	"github.com/spf13/cobra"

	"embreduce/internal/adapter/profiler"
	"embreduce/internal/domain"
)

var heatmapMode string

var heatmapCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "Score the importance of every dimension",
	Long: `Profile how much each dimension contributes to verification. Modes:
  ablation    accuracy lost when the dimension is removed
  single      accuracy of the dimension alone above chance
  separation  impostor minus genuine squared difference

--amount limits profiling to the first N dimensions (0 = all). Rows carry the
raw score and the score scaled to [0, 1].

Examples:
  embreduce heatmap --mode ablation
  embreduce heatmap --mode separation --amount 128`,
	Args: cobra.NoArgs,
	RunE: runHeatmap,
}

func init() {
	rootCmd.AddCommand(heatmapCmd)
	heatmapCmd.Flags().StringVar(&heatmapMode, "mode", "", "ablation, single or separation (default from config)")
}

func runHeatmap(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		name := env.cfg.Heatmap.Mode
		if heatmapMode != "" {
			name = heatmapMode
		}
		mode, err := profiler.ParseMode(name)
		if err != nil {
			return domain.NewStageError("profile", err)
		}

		e, err := env.engine(ctx)
		if err != nil {
			return err
		}
		p, err := e.Heatmap(ctx, mode, amountOr(cmd, 0))
		if err != nil {
			return err
		}

		if err := env.out.Header("dimension", "raw", "normalized"); err != nil {
			return err
		}
		for d := range p.Raw {
			if err := env.out.Row(d, p.Raw[d], p.Normalized[d]); err != nil {
				return err
			}
		}
		return env.out.Comment("mode=%s baseline=%v", p.Mode, p.Baseline)
	})
}
