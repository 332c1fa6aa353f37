package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/loupe-search/loupe/internal/output"
)

func newInvalidateCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Force an index rebuild on the next search",
		Long: `Mark the keyword index stale and drop the persisted snapshot
cache, so the next search rebuilds from the document source.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvalidate(cmd.Context(), cmd, reason)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual invalidation", "Reason recorded in the logs")

	return cmd
}

func runInvalidate(ctx context.Context, cmd *cobra.Command, reason string) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.engine.InvalidateIndex(reason)

	if path := a.cfg.Index.CachePath; path != "" {
		if err := os.Remove(path); err == nil {
			out.Statusf("", "dropped snapshot cache %s", path)
		} else if !os.IsNotExist(err) {
			out.Warningf("could not drop snapshot cache %s: %v", path, err)
		}
	}

	out.Successf("index invalidated: %s", reason)
	return nil
}
