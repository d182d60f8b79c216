package logging

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const auditSchema = `
CREATE TABLE IF NOT EXISTS write_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	location    TEXT NOT NULL,
	path        TEXT NOT NULL,
	ok          INTEGER NOT NULL,
	error       TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS escalation_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	deadline    TEXT NOT NULL,
	tier        TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
`

// #endregion schema

// #region entries

// WriteEntry is one location outcome of a redundant write.
type WriteEntry struct {
	SessionID string
	Location  string // "primary" | "backup" | "summary"
	Path      string
	OK        bool
	Error     string
	CreatedAt time.Time
}

// EscalationEntry is one emergency escalation issued by the deadline monitor.
type EscalationEntry struct {
	SessionID string
	Deadline  string
	Tier      string
	CreatedAt time.Time
}

// #endregion entries

// #region audit

// Audit is the SQLite-backed trail of redundant writes and escalations.
type Audit struct {
	db *sql.DB
}

// OpenAudit opens (or creates) the audit database at path.
func OpenAudit(path string) (*Audit, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	a, err := NewAuditWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// NewAuditWithDB runs the audit migrations on an existing handle.
func NewAuditWithDB(db *sql.DB) (*Audit, error) {
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("migrate audit: %w", err)
	}
	return &Audit{db: db}, nil
}

// Close closes the underlying database.
func (a *Audit) Close() error {
	return a.db.Close()
}

// #endregion audit

// #region record

// RecordWrite appends a write outcome.
func (a *Audit) RecordWrite(e WriteEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := a.db.Exec(
		`INSERT INTO write_log (session_id, location, path, ok, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Location, e.Path, boolToInt(e.OK), nullIfEmpty(e.Error),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record write: %w", err)
	}
	return nil
}

// RecordEscalation appends an escalation event.
func (a *Audit) RecordEscalation(e EscalationEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := a.db.Exec(
		`INSERT INTO escalation_log (session_id, deadline, tier, created_at)
		 VALUES (?, ?, ?, ?)`,
		e.SessionID, e.Deadline, e.Tier, e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record escalation: %w", err)
	}
	return nil
}

// #endregion record

// #region query

// RecentWrites returns the newest write outcomes first.
func (a *Audit) RecentWrites(limit int) ([]WriteEntry, error) {
	rows, err := a.db.Query(
		`SELECT session_id, location, path, ok, error, created_at
		 FROM write_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list writes: %w", err)
	}
	defer rows.Close()

	var out []WriteEntry
	for rows.Next() {
		var e WriteEntry
		var ok int
		var errText sql.NullString
		var created string
		if err := rows.Scan(&e.SessionID, &e.Location, &e.Path, &ok, &errText, &created); err != nil {
			return nil, fmt.Errorf("scan write: %w", err)
		}
		e.OK = ok != 0
		if errText.Valid {
			e.Error = errText.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentEscalations returns the newest escalations first.
func (a *Audit) RecentEscalations(limit int) ([]EscalationEntry, error) {
	rows, err := a.db.Query(
		`SELECT session_id, deadline, tier, created_at
		 FROM escalation_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var out []EscalationEntry
	for rows.Next() {
		var e EscalationEntry
		var created string
		if err := rows.Scan(&e.SessionID, &e.Deadline, &e.Tier, &created); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion query

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
