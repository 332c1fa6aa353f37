package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-search/loupe/internal/config"
	"github.com/loupe-search/loupe/internal/store"
)

// seedSource creates a SQLite record database in dir and returns the path of
// a config file referencing it, to be passed to commands via --config.
func seedSource(t *testing.T, dir string) string {
	t.Helper()

	dbPath := filepath.Join(dir, "records.db")
	src, err := store.NewSQLiteDocumentSource(dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, src.Close()) }()

	ctx := context.Background()
	require.NoError(t, src.Initialize(ctx))
	require.NoError(t, src.PutRecords(ctx, []*store.SourceRecord{
		{
			ID:          "r1",
			CurrentPath: "invoices/acme-march.pdf",
			CurrentName: "acme-march.pdf",
			Fields: store.RecordFields{
				Subject:       "ACME invoice March",
				ExtractedText: "invoice total due for march services rendered by acme",
			},
			Timestamp: time.Now(),
		},
		{
			ID:          "r2",
			CurrentPath: "travel/itinerary.pdf",
			CurrentName: "itinerary.pdf",
			Fields: store.RecordFields{
				Subject:       "Berlin trip",
				ExtractedText: "flight and hotel bookings for the berlin conference",
			},
			Timestamp: time.Now(),
		},
	}))

	cfgPath := filepath.Join(dir, "loupe.yaml")
	body := "source:\n  path: " + dbPath + "\nembeddings:\n  dimensions: 32\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	return cfgPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestSearchCommand_FindsSeededRecord(t *testing.T) {
	cfgPath := seedSource(t, t.TempDir())

	out, err := runCommand(t, "search", "acme invoice", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "invoices/acme-march.pdf")
}

func TestSearchCommand_JSONOutput(t *testing.T) {
	cfgPath := seedSource(t, t.TempDir())

	out, err := runCommand(t, "search", "berlin conference", "--format", "json", "--mode", "lexical", "--config", cfgPath)
	require.NoError(t, err)

	var resp struct {
		Mode    string `json:"mode"`
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "lexical", resp.Mode)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, store.CanonicalKey("travel/itinerary.pdf"), resp.Results[0].ID)
}

func TestSearchCommand_RejectsShortQuery(t *testing.T) {
	cfgPath := seedSource(t, t.TempDir())

	_, err := runCommand(t, "search", "a", "--config", cfgPath)
	assert.Error(t, err)
}

func TestIndexCommand_ReportsCounts(t *testing.T) {
	cfgPath := seedSource(t, t.TempDir())

	out, err := runCommand(t, "index", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 documents")
	assert.Contains(t, out, "file vectors: 2")
}

func TestStatusCommand_JSON(t *testing.T) {
	cfgPath := seedSource(t, t.TempDir())

	out, err := runCommand(t, "status", "--json", "--config", cfgPath)
	require.NoError(t, err)

	var info statusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 2, info.SourceRecords)
	assert.Equal(t, 2, info.Documents)
	assert.Equal(t, 2, info.FileVectors)
	assert.True(t, info.HasIndex)
}

func TestDiagnoseCommand_HealthyCorpus(t *testing.T) {
	cfgPath := seedSource(t, t.TempDir())

	out, err := runCommand(t, "diagnose", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "all checks passed")
}

func TestDiagnoseCommand_JSONReport(t *testing.T) {
	cfgPath := seedSource(t, t.TempDir())

	out, err := runCommand(t, "diagnose", "--json", "--config", cfgPath)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.EqualValues(t, 2, report["source_records"])
	assert.Empty(t, report["findings"])
}

func TestInvalidateCommand(t *testing.T) {
	cfgPath := seedSource(t, t.TempDir())

	out, err := runCommand(t, "invalidate", "--reason", "records reimported", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "index invalidated: records reimported")
}

func TestInitCommand_WritesTemplate(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := runCommand(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, config.ProjectFileName)

	// The template must load cleanly as a valid config.
	cfg, err := config.LoadFile(config.ProjectFileName)
	require.NoError(t, err)
	assert.Equal(t, "loupe.db", cfg.Source.Path)
}

func TestInitCommand_RefusesOverwrite(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := runCommand(t, "init")
	require.NoError(t, err)

	_, err = runCommand(t, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCommand(t, "init", "--force")
	require.NoError(t, err)
}

func TestRootCommand_Version(t *testing.T) {
	out, err := runCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "loupe version")
}
