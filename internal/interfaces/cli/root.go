// Package cli defines the mrcpipe command tree: one subcommand per
// preprocessing stage plus `run` for the whole pipeline, all reading NDJSON
// samples from a file or stdin and writing NDJSON to a file or stdout.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/config"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/storage/minio"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/pipeline"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Workers    int
	MaxDocLen  int
	Input      string
	Output     string
}

// CLIContext carries the initialized dependencies through the command tree.
type CLIContext struct {
	Config *config.Config
	Logger logging.Logger
	Opts   *RootOptions

	// Collaborators for the feature stage.  Left zero, the fallback
	// rune-level segmenter is used.
	Collaborators pipeline.Collaborators

	// Shards backs minio:// input and output paths.  Left nil, a store is
	// dialed from Config.MinIO on first use.
	Shards *minio.ShardStore
}

type cliContextKey struct{}

// NewRootCommand builds the root command with global flags and the stage
// subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "mrcpipe",
		Short:   "Preprocessing pipeline for military MRC samples",
		Long:    "mrcpipe turns raw crawled QA samples into model-ready training records:\ntext cleaning, low-relevance paragraph filtering, passage selection,\nanswer span labeling and char-level feature projection, streamed one\nNDJSON line at a time.",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: env only)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.IntVar(&opts.Workers, "workers", 0, "parallel pipeline workers (default: config)")
	pf.IntVar(&opts.MaxDocLen, "max-doc-len", 0, "passage token budget per document (default: config)")
	pf.StringVarP(&opts.Input, "input", "i", "-", "input NDJSON file, - for stdin, minio://<key> for a shard")
	pf.StringVarP(&opts.Output, "output", "o", "-", "output NDJSON file, - for stdout, minio://<key> for a shard")

	cmd.AddCommand(
		newStageCommand("clean", "Normalize question, titles and paragraphs", []string{"clean"}),
		newStageCommand("filter", "Drop paragraphs with low question relevance", []string{"filter"}),
		newStageCommand("rank", "Select passage paragraphs under the length budget", []string{"rank"}),
		newStageCommand("labels", "Resolve marker answers into span labels", []string{"labels"}),
		newStageCommand("features", "Project char-level linguistic features", []string{"features"}),
		newStageCommand("run", "Run the full configured pipeline", nil),
	)

	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}

	// Flags override config.
	if opts.Workers > 0 {
		cfg.Pipeline.Workers = opts.Workers
	}
	if opts.MaxDocLen > 0 {
		cfg.Pipeline.MaxDocLen = opts.MaxDocLen
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx := context.WithValue(cmd.Context(), cliContextKey{}, &CLIContext{
		Config: cfg,
		Logger: logger,
		Opts:   opts,
	})
	cmd.SetContext(ctx)
	return nil
}

// GetCLIContext extracts the CLIContext stored by persistentPreRun.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, fmt.Errorf("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, fmt.Errorf("command not initialized, run through the root command")
	}
	return cliCtx, nil
}

// Execute runs the root command; the entry point of cmd/mrcpipe.
func Execute() error {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	return nil
}
