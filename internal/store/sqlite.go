package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteDocumentSource is the default DocumentSource, persisting analysis
// records in a single SQLite table. One row per analysis event; repeated
// analyses of the same file appear as multiple rows with distinct
// timestamps.
type SQLiteDocumentSource struct {
	db   *sql.DB
	path string
}

const recordsSchema = `
CREATE TABLE IF NOT EXISTS records (
	id            TEXT PRIMARY KEY,
	current_path  TEXT NOT NULL,
	current_name  TEXT NOT NULL,
	subject       TEXT NOT NULL DEFAULT '',
	summary       TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	category      TEXT NOT NULL DEFAULT '',
	extracted_text TEXT NOT NULL DEFAULT '',
	org_actual    TEXT NOT NULL DEFAULT '',
	org_new_name  TEXT NOT NULL DEFAULT '',
	ts            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_path ON records(current_path);
CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts);
`

// NewSQLiteDocumentSource opens (or creates) the record database at path.
// Use ":memory:" for an in-memory source in tests.
func NewSQLiteDocumentSource(path string) (*SQLiteDocumentSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open record database: %w", err)
	}

	// modernc.org/sqlite ignores some DSN params; set pragmas explicitly.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return &SQLiteDocumentSource{db: db, path: path}, nil
}

// Initialize creates the schema if it does not exist.
func (s *SQLiteDocumentSource) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, recordsSchema); err != nil {
		return fmt.Errorf("create records schema: %w", err)
	}
	return nil
}

// PutRecords inserts or replaces records by ID.
func (s *SQLiteDocumentSource) PutRecords(ctx context.Context, records []*SourceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO records
		(id, current_path, current_name, subject, summary, tags, category, extracted_text, org_actual, org_new_name, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		tags, err := json.Marshal(r.Fields.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags for %s: %w", r.ID, err)
		}
		var orgActual, orgNewName string
		if r.Organization != nil {
			orgActual = r.Organization.Actual
			orgNewName = r.Organization.NewName
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.CurrentPath, r.CurrentName,
			r.Fields.Subject, r.Fields.Summary, string(tags),
			r.Fields.Category, r.Fields.ExtractedText,
			orgActual, orgNewName,
			r.Timestamp.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// GetAllRecords returns every analysis record.
func (s *SQLiteDocumentSource) GetAllRecords(ctx context.Context) ([]*SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, current_path, current_name, subject, summary, tags, category, extracted_text, org_actual, org_new_name, ts
		FROM records ORDER BY ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*SourceRecord
	for rows.Next() {
		var (
			r                     SourceRecord
			tags                  string
			orgActual, orgNewName string
			ts                    int64
		)
		if err := rows.Scan(&r.ID, &r.CurrentPath, &r.CurrentName,
			&r.Fields.Subject, &r.Fields.Summary, &tags,
			&r.Fields.Category, &r.Fields.ExtractedText,
			&orgActual, &orgNewName, &ts); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &r.Fields.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags for %s: %w", r.ID, err)
		}
		if orgActual != "" || orgNewName != "" {
			r.Organization = &Organization{Actual: orgActual, NewName: orgNewName}
		}
		r.Timestamp = time.UnixMilli(ts)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Count returns the number of stored records.
func (s *SQLiteDocumentSource) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteDocumentSource) Close() error {
	return s.db.Close()
}

var _ DocumentSource = (*SQLiteDocumentSource)(nil)
