package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loupe-search/loupe/internal/output"
	"github.com/loupe-search/loupe/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	mode     string
	fusion   string
	minScore float64
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the document records",
		Long: `Search the analyzed document records with hybrid retrieval.

Keyword (BM25) and vector similarity rankings are fused with
Reciprocal Rank Fusion by default; a weighted blend is available.

Examples:
  loupe search "acme invoice march"
  loupe search "travel receipts" --limit 5 --mode lexical
  loupe search "contract renewal" --fusion weighted --min-score 0.2
  loupe search "quarterly report" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: hybrid, lexical, vector")
	cmd.Flags().StringVar(&opts.fusion, "fusion", "", "Fusion method: rrf, weighted (default from config)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results below this fused score")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.ensureIngested(ctx); err != nil {
		return fmt.Errorf("build collections: %w", err)
	}

	resp, err := a.engine.Search(ctx, query, search.SearchOptions{
		TopK:     opts.limit,
		Mode:     search.Mode(strings.ToLower(opts.mode)),
		MinScore: opts.minScore,
		Fusion:   search.FusionMethod(strings.ToLower(opts.fusion)),
	})
	if err != nil {
		return err
	}

	switch strings.ToLower(opts.format) {
	case "json":
		return printJSON(cmd, resp)
	default:
		printResults(output.New(cmd.OutOrStdout()), query, resp)
		return nil
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(out *output.Writer, query string, resp *search.Response) {
	if resp.Meta.Fallback {
		out.Warningf("degraded to %s: %s", resp.Mode, resp.Meta.FallbackReason)
	}
	for _, w := range resp.Meta.Warnings {
		out.Warning(w)
	}

	if len(resp.Results) == 0 {
		out.Statusf("🔍", "No results for %q", query)
		return
	}

	out.Statusf("🔍", "%d results for %q (%s, %s)",
		len(resp.Results), query, resp.Mode, resp.Meta.Duration.Round(time.Millisecond))
	out.Newline()

	for i, r := range resp.Results {
		path := r.Metadata["path"]
		if path == "" {
			path = r.ID
		}
		out.Statusf("", "%2d. %-50s %.3f  [%s]", i+1, path, r.Score, joinSources(r.Sources))
		if len(r.Match.Terms) > 0 {
			out.Statusf("", "    matched: %s", strings.Join(r.Match.Terms, ", "))
		}
		if r.Match.Snippet != "" {
			out.Statusf("", "    %s", r.Match.Snippet)
		}
	}
}

func joinSources(sources []search.Source) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = string(s)
	}
	return strings.Join(parts, "+")
}
