package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/storage/minio"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/pipeline"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

// shardScheme marks an input or output path stored as an object-store shard.
const shardScheme = "minio://"

// newStageCommand builds a subcommand that streams input through the named
// stages.  nil stageNames means the configured stage list (the `run`
// command).
func newStageCommand(use, short string, stageNames []string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runStream(cmd, cliCtx, stageNames)
		},
	}
}

func runStream(cmd *cobra.Command, cliCtx *CLIContext, stageNames []string) error {
	pcfg := cliCtx.Config.Pipeline
	if stageNames != nil {
		pcfg.Stages = stageNames
	}

	// Validate the stage list once; workers rebuild from the same config.
	if _, err := pipeline.BuildStages(pcfg, cliCtx.Collaborators, nil, cliCtx.Logger); err != nil {
		return err
	}
	factory := func() *pipeline.Pipeline {
		stages, err := pipeline.BuildStages(pcfg, cliCtx.Collaborators, nil, cliCtx.Logger)
		if err != nil {
			// Unreachable: the list validated above.
			cliCtx.Logger.Fatal("stage build failed", logging.Err(err))
		}
		return pipeline.New(stages, pipeline.WithLogger(cliCtx.Logger))
	}

	in, closeIn, err := openInput(cmd.Context(), cliCtx, cliCtx.Opts.Input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer closeIn()

	out, closeOut, err := openOutput(cmd.Context(), cliCtx, cliCtx.Opts.Output, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	stream := pipeline.NewStream(factory, pcfg.Workers, pcfg.MaxLineBytes,
		pipeline.WithStreamLogger(cliCtx.Logger))

	stats, runErr := stream.Run(cmd.Context(), in, out)
	if err := closeOut(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s: read=%d skipped=%d processed=%d failed=%d\n",
		cmd.Name(), stats.Read, stats.Skipped, stats.Processed, stats.Failed)
	return nil
}

// openInput resolves "-" to the command's stdin and minio:// keys to a
// shard read from the bucket.
func openInput(ctx context.Context, cliCtx *CLIContext, path string, stdin io.Reader) (io.Reader, func() error, error) {
	switch {
	case path == "" || path == "-":
		return stdin, func() error { return nil }, nil
	case strings.HasPrefix(path, shardScheme):
		store, err := shardStore(cliCtx)
		if err != nil {
			return nil, nil, err
		}
		rc, err := store.Open(ctx, strings.TrimPrefix(path, shardScheme))
		if err != nil {
			return nil, nil, err
		}
		return rc, rc.Close, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// openOutput resolves "-" to the command's stdout and minio:// keys to a
// streaming shard upload.  The returned close func finishes the upload and
// reports its error.
func openOutput(ctx context.Context, cliCtx *CLIContext, path string, stdout io.Writer) (io.Writer, func() error, error) {
	switch {
	case path == "" || path == "-":
		return stdout, func() error { return nil }, nil
	case strings.HasPrefix(path, shardScheme):
		store, err := shardStore(cliCtx)
		if err != nil {
			return nil, nil, err
		}
		key := strings.TrimPrefix(path, shardScheme)
		pr, pw := io.Pipe()
		done := make(chan error, 1)
		go func() {
			_, err := store.Upload(ctx, key, pr, -1)
			pr.CloseWithError(err)
			done <- err
		}()
		closeFn := func() error {
			if err := pw.Close(); err != nil {
				return err
			}
			return <-done
		}
		return pw, closeFn, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// shardStore returns the injected store or dials one from the config.
func shardStore(cliCtx *CLIContext) (*minio.ShardStore, error) {
	if cliCtx.Shards != nil {
		return cliCtx.Shards, nil
	}
	if cliCtx.Config.MinIO.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "minio endpoint not configured")
	}
	store, err := minio.NewShardStore(cliCtx.Config.MinIO, cliCtx.Logger)
	if err != nil {
		return nil, err
	}
	cliCtx.Shards = store
	return store, nil
}
