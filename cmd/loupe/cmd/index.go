package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loupe-search/loupe/internal/output"
	"github.com/loupe-search/loupe/internal/watch"
)

func newIndexCmd() *cobra.Command {
	var watchChanges bool
	var watchDir string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the search collections from the document source",
		Long: `Read every record from the document source, build the keyword
index and embed file-level and chunk-level vectors.

With --watch the command keeps running: source file changes invalidate
the index and the next search rebuilds it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, watchChanges, watchDir)
		},
	}

	cmd.Flags().BoolVarP(&watchChanges, "watch", "w", false, "Keep running and invalidate on source changes")
	cmd.Flags().StringVar(&watchDir, "watch-dir", ".", "Directory to watch for source changes")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, watchChanges bool, watchDir string) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.pipeline.Run(ctx)
	if err != nil {
		return err
	}

	out.Successf("Indexed %d documents (version %d) in %s",
		stats.Documents, stats.IndexVersion, stats.Duration.Round(time.Millisecond))
	if stats.VectorsSkipped {
		out.Warning("embedder unavailable, vector collections skipped")
	} else {
		out.Statusf("", "file vectors: %d, chunk vectors: %d", stats.FileVectors, stats.ChunkVectors)
	}

	if !watchChanges {
		return nil
	}

	w, err := watch.NewSourceWatcher(a.engine, watch.Options{
		Debounce:   a.cfg.Watch.Debounce.Std(),
		Extensions: a.cfg.Watch.Extensions,
	})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx, watchDir); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	out.Statusf("👀", "Watching %s for source changes (Ctrl-C to stop)", watchDir)
	<-ctx.Done()
	out.Newline()
	out.Status("", "watch stopped")
	return nil
}
