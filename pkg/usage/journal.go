package usage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Journal is an optional append-only SQLite log of per-call usage. The
// in-memory tracker is authoritative for the live stats surface; the
// journal exists so operators can keep records across restarts.
type Journal struct {
	db *sql.DB
}

// Entry is one successful provider call.
type Entry struct {
	ID               string
	Timestamp        time.Time
	Model            string
	Kind             Kind
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// JournalSummary holds aggregated totals over journaled entries.
type JournalSummary struct {
	Entries          int
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// OpenJournal opens (creating if needed) a usage journal at path.
func OpenJournal(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("usage journal: empty path")
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open usage journal")
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate usage journal")
	}
	return j, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_entries (
		id                TEXT PRIMARY KEY,
		timestamp         TEXT NOT NULL,
		model             TEXT NOT NULL,
		kind              TEXT NOT NULL,
		prompt_tokens     INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_entries_timestamp ON usage_entries(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_entries_kind ON usage_entries(kind);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record persists one entry. ID and Timestamp are filled in when empty.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j == nil || j.db == nil {
		return errors.New("usage journal: not open")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO usage_entries
			(id, timestamp, model, kind, prompt_tokens, completion_tokens, total_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Model,
		string(e.Kind),
		e.PromptTokens,
		e.CompletionTokens,
		e.TotalTokens,
	)
	return errors.Wrap(err, "insert usage entry")
}

// Summary returns aggregated totals over all journaled entries.
func (j *Journal) Summary(ctx context.Context) (*JournalSummary, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("usage journal: not open")
	}
	row := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(completion_tokens), 0),
		        COALESCE(SUM(total_tokens), 0)
		 FROM usage_entries`)
	var s JournalSummary
	if err := row.Scan(&s.Entries, &s.PromptTokens, &s.CompletionTokens, &s.TotalTokens); err != nil {
		return nil, errors.Wrap(err, "query usage summary")
	}
	return &s, nil
}
