package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T) *SQLiteDocumentSource {
	t.Helper()
	src, err := NewSQLiteDocumentSource(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	require.NoError(t, src.Initialize(context.Background()))
	return src
}

func TestSQLiteDocumentSource_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []*SourceRecord{
		{
			ID:          "rec-1",
			CurrentPath: "inbox/scan0001.pdf",
			CurrentName: "scan0001.pdf",
			Fields: RecordFields{
				Subject:       "ACME invoice",
				Summary:       "Invoice for March services",
				Tags:          []string{"invoice", "acme"},
				Category:      "finance",
				ExtractedText: "Invoice #1042, total amount due 1,200 EUR",
			},
			Organization: &Organization{Actual: "invoices/acme-2026-03.pdf", NewName: "acme-2026-03.pdf"},
			Timestamp:    ts,
		},
		{
			ID:          "rec-2",
			CurrentPath: "notes/todo.md",
			CurrentName: "todo.md",
			Fields:      RecordFields{Subject: "todo list"},
			Timestamp:   ts.Add(-time.Hour),
		},
	}

	require.NoError(t, src.PutRecords(ctx, records))

	got, err := src.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by timestamp descending.
	assert.Equal(t, "rec-1", got[0].ID)
	assert.Equal(t, "rec-2", got[1].ID)

	assert.Equal(t, records[0].Fields, got[0].Fields)
	require.NotNil(t, got[0].Organization)
	assert.Equal(t, "invoices/acme-2026-03.pdf", got[0].Organization.Actual)
	assert.Nil(t, got[1].Organization)
	assert.True(t, got[0].Timestamp.Equal(ts))

	n, err := src.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteDocumentSource_PutReplacesByID(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	rec := &SourceRecord{
		ID:          "rec-1",
		CurrentPath: "a.txt",
		CurrentName: "a.txt",
		Timestamp:   time.Now(),
	}
	require.NoError(t, src.PutRecords(ctx, []*SourceRecord{rec}))

	rec.Fields.Subject = "updated"
	require.NoError(t, src.PutRecords(ctx, []*SourceRecord{rec}))

	got, err := src.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "updated", got[0].Fields.Subject)
}

func TestSQLiteDocumentSource_EmptyIsNotAnError(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	got, err := src.GetAllRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, src.PutRecords(ctx, nil))
}
