package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loupe-search/loupe/internal/diag"
	"github.com/loupe-search/loupe/internal/output"
)

func newDiagnoseCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check the health of the retrieval collections",
		Long: `Run the diagnostic checks over the current collections:
  - Keyword index population and staleness
  - Vector collection populations
  - Embedding dimension consistency
  - Population skew between index and vector store

Exits non-zero when a critical finding is present.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDiagnose(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.ensureIngested(ctx); err != nil {
		return err
	}

	report := a.runner.Diagnose(ctx)

	if jsonOutput {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		printReport(output.New(cmd.OutOrStdout()), report)
	}

	if report.HasSeverity(diag.SeverityCritical) {
		return fmt.Errorf("critical finding present")
	}
	return nil
}

func printReport(out *output.Writer, report *diag.Report) {
	out.Status("🩺", "Diagnostics")
	out.Field("Index documents", report.IndexDocuments)
	out.Field("File vectors", report.FileVectors)
	out.Field("Chunk vectors", report.ChunkVectors)
	out.Field("Source records", report.SourceRecords)
	out.Field("Index stale", report.IndexStale)
	out.Newline()

	if report.Healthy() {
		out.Success("all checks passed")
		return
	}
	for _, f := range report.Findings {
		switch f.Severity {
		case diag.SeverityCritical, diag.SeverityHigh:
			out.Errorf("[%s] %s: %s", f.Severity, f.Check, f.Message)
		default:
			out.Warningf("[%s] %s: %s", f.Severity, f.Check, f.Message)
		}
	}
}
