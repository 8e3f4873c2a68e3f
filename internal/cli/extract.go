package cli

import (
	"context"

	"github.com/spf13/cobra"

	"embreduce/internal/adapter/reducer"
	"embreduce/internal/domain"
	"embreduce/internal/usecase"
)

var (
	extractCompress bool
	extractTruncate bool
	extractBits     int
)

var extractCmd = &cobra.Command{
	Use:   "extract-emb",
	Short: "Export full and proposed embeddings for every pair",
	Long: `Write the embeddings of every usable pair to output.export_dir, once with
all dimensions (embeddings_full.json) and once in the proposed representation
(embeddings_<k>.json): the selected dimensions quantized to --bits bits, stored
as integer codes. Each line is one JSON object.

The selection is proposed.dimensions from the config, the published ArcFace
selection for 512-dimensional embeddings, or a greedy search for --amount
dimensions. --truncate exports the first --amount real-valued dimensions
instead.

Examples:
  embreduce extract-emb
  embreduce extract-emb --amount 32 --bits 6 --compress
  embreduce extract-emb --truncate --amount 128`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&extractCompress, "compress", false, "zstd-compress the exports (default from config)")
	extractCmd.Flags().BoolVar(&extractTruncate, "truncate", false, "export truncated real values instead of quantized codes")
	extractCmd.Flags().IntVar(&extractBits, "bits", 0, "bit width of the exported codes (default from config)")
	extractCmd.Flags().IntVar(&bestPool, "pool", 0, "restrict greedy candidates to the first N dimensions (default from config)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, env *runEnv) error {
		s, err := env.session(ctx)
		if err != nil {
			return err
		}

		dim := s.Corpus.Dimension
		var spec domain.ReductionSpec
		if extractTruncate {
			spec, err = reducer.Truncate(dim, amountOr(cmd, dim))
			if err != nil {
				return domain.NewStageError("reduce", err)
			}
		} else {
			spec, err = exportSpec(ctx, cmd, env, s)
			if err != nil {
				return err
			}
		}

		compress := env.cfg.Output.Compress
		if cmd.Flags().Changed("compress") {
			compress = extractCompress
		}

		res, err := usecase.ExtractEmbeddings(ctx, s, spec, env.cfg.Output.ExportDir, compress, env.cfg.Engine.Workers)
		if err != nil {
			return err
		}

		if err := env.out.Header("file", "method", "dimensions", "bits", "pairs"); err != nil {
			return err
		}
		if err := env.out.Row(res.Full, "full", dim, 32, res.Pairs); err != nil {
			return err
		}
		bits := spec.Bits
		if spec.Quant == nil {
			bits = 32
		}
		return env.out.Row(res.Reduced, string(spec.Method), spec.K, bits, res.Pairs)
	})
}

// exportSpec builds the proposed spec of the export. An explicit --amount
// forces the greedy search.
func exportSpec(ctx context.Context, cmd *cobra.Command, env *runEnv, s *usecase.Session) (domain.ReductionSpec, error) {
	dim := s.Corpus.Dimension
	opts := usecase.ProposedOptions{
		Dims:   min(amountOr(cmd, env.cfg.Proposed.Dims), dim),
		Bits:   env.cfg.Proposed.Bits,
		Mode:   domain.QuantMode(env.cfg.Quant.Mode),
		Search: searchOptions(cmd, env, "Selecting"),
	}
	if !cmd.Flags().Changed("amount") {
		opts.Fixed = usecase.ExportSelection(dim, env.cfg.Proposed.Dimensions)
	}
	if extractBits > 0 {
		opts.Bits = extractBits
	}

	e, err := env.engineFor(s)
	if err != nil {
		return domain.ReductionSpec{}, err
	}
	spec, _, err := e.ProposedSpec(ctx, opts)
	return spec, err
}
