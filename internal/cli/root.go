package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"embreduce/config"
	"embreduce/internal/domain"
)

var (
	cfgFile   string
	cfg       *config.Config
	rootDir   string
	dataClass string
	lfwPath   string
	cplfwPath string
	amount    int
	output    string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "embreduce",
	Short: "Face embedding dimension reduction and verification benchmark",
	Long: `embreduce extracts face embeddings for a verification benchmark (LFW or
CPLFW), caches them, and measures how verification accuracy changes when the
embeddings are truncated, subsampled, searched for the best dimensions or
quantized.

Example usage:
  embreduce cache --data easy                      # Embed every image once
  embreduce truncate-embedding-size --amount 128   # Keep the first 128 dims
  embreduce best-elements-greedy --amount 70       # Greedy dimension search
  embreduce quant --amount 8 --output json         # 8-bit quantization`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Flags override config values
		if lfwPath != "" {
			cfg.Dataset.Easy.Root = lfwPath
		}
		if cplfwPath != "" {
			cfg.Dataset.Hard.Root = cplfwPath
		}
		if cmd.Flags().Changed("output") {
			cfg.Output.Format = output
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Logging.Level = logLevel
		}

		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./embreduce.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "working directory for config lookup (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&dataClass, "data", "easy", "dataset complexity class: easy (LFW) or hard (CPLFW)")
	rootCmd.PersistentFlags().StringVar(&lfwPath, "lfw-path", "", "LFW image root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&cplfwPath, "cplfw-path", "", "CPLFW image root (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&amount, "amount", "a", 0, "dimension count, bit width or profiled dimensions, depending on the action")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "csv", "result format: csv or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func GetConfig() *config.Config {
	return cfg
}

// hintFor suggests a remedy for well-known failures.
func hintFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrSearchTooLarge):
		return "lower --amount, restrict the candidates with --pool or raise search.max_evaluations"
	case errors.Is(err, domain.ErrInvalidDatasetPath):
		return "check --lfw-path/--cplfw-path and the dataset section of the config"
	case errors.Is(err, domain.ErrCacheCorruption):
		return "delete the cache file to rebuild it"
	case errors.Is(err, domain.ErrDegeneratePairSet):
		return "the pairs file needs both genuine and impostor pairs with usable images"
	}
	return ""
}
