package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/loupe-search/loupe/internal/output"
	"github.com/loupe-search/loupe/internal/store"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and collection status",
		Long: `Display the current state of the retrieval collections:
  - Keyword index version, document count and staleness
  - File and chunk vector populations
  - Document source record count
  - Query telemetry for this run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statusInfo is the JSON shape of the status command.
type statusInfo struct {
	SourcePath    string    `json:"source_path"`
	SourceRecords int       `json:"source_records"`
	HasIndex      bool      `json:"has_index"`
	IndexVersion  int       `json:"index_version"`
	Documents     int       `json:"documents"`
	BuiltAt       time.Time `json:"built_at"`
	Stale         bool      `json:"stale"`
	FileVectors   int       `json:"file_vectors"`
	ChunkVectors  int       `json:"chunk_vectors"`
	TotalQueries  int64     `json:"total_queries"`
	ZeroResults   int64     `json:"zero_results"`
	Fallbacks     int64     `json:"fallbacks"`
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.ensureIngested(ctx); err != nil {
		return err
	}

	records, err := a.source.Count(ctx)
	if err != nil {
		return err
	}
	st := a.idx.Status()
	snap := a.metrics.Snapshot()

	info := statusInfo{
		SourcePath:    a.cfg.Source.Path,
		SourceRecords: records,
		HasIndex:      st.HasIndex,
		IndexVersion:  st.Version,
		Documents:     st.DocumentCount,
		BuiltAt:       st.BuiltAt,
		Stale:         st.IsStale,
		FileVectors:   a.vectors.Count(store.CollectionFiles),
		ChunkVectors:  a.vectors.Count(store.CollectionChunks),
		TotalQueries:  snap.TotalQueries,
		ZeroResults:   snap.ZeroResultCount,
		Fallbacks:     snap.FallbackCount,
	}

	if jsonOutput {
		return printJSON(cmd, info)
	}

	out := output.New(cmd.OutOrStdout())
	out.Status("📇", "Loupe status")
	out.Field("Source", info.SourcePath)
	out.Field("Source records", info.SourceRecords)
	out.Field("Index version", info.IndexVersion)
	out.Field("Documents", info.Documents)
	out.Field("Built at", info.BuiltAt.Format(time.RFC3339))
	out.Field("Stale", info.Stale)
	out.Field("File vectors", info.FileVectors)
	out.Field("Chunk vectors", info.ChunkVectors)
	out.Field("Queries this run", info.TotalQueries)
	return nil
}
