// Package history records session events in a local sqlite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rbright/hark/internal/session"
)

// Entry is one recorded controller event.
type Entry struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"session_id"`
	Type      session.EventType `json:"type"`
	Status    string            `json:"status,omitempty"`
	Matches   []string          `json:"matches,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Summary describes one recorded session.
type Summary struct {
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Events     int       `json:"events"`
	Transcript string    `json:"transcript,omitempty"`
}

// Store wraps the sqlite history database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	clock  func() time.Time
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "history"), clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    transcript TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT '',
    matches TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one event, creating its session row on first sight. Events
// without a session ID are ignored.
func (s *Store) Append(ctx context.Context, event session.Event) error {
	if event.SessionID == "" {
		return nil
	}
	at := event.At
	if at.IsZero() {
		at = s.clock()
	}
	stamp := formatTime(at)

	matches, err := json.Marshal(nonNil(event.Matches))
	if err != nil {
		return fmt.Errorf("encode matches: %w", err)
	}
	transcript := ""
	if len(event.Matches) > 0 {
		transcript = strings.Join(strings.Fields(event.Matches[0]), " ")
	}
	// Segments accumulate; any other result replaces the transcript.
	segment := 0
	if event.Type == session.EventSegmentResults {
		segment = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions(session_id, started_at, updated_at, transcript)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   updated_at = excluded.updated_at,
		   transcript = CASE
		     WHEN excluded.transcript = '' THEN sessions.transcript
		     WHEN ? = 1 AND sessions.transcript <> '' THEN sessions.transcript || ' ' || excluded.transcript
		     ELSE excluded.transcript
		   END`,
		event.SessionID, stamp, stamp, transcript, segment); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events(session_id, event_type, status, matches, created_at) VALUES(?, ?, ?, ?, ?)`,
		event.SessionID, string(event.Type), string(event.Status), string(matches), stamp); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

// Recent lists the most recently updated sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.started_at, s.updated_at, s.transcript,
		        (SELECT COUNT(*) FROM events e WHERE e.session_id = s.session_id)
		 FROM sessions s ORDER BY s.updated_at DESC, s.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			sum              Summary
			started, updated string
		)
		if err := rows.Scan(&sum.SessionID, &started, &updated, &sum.Transcript, &sum.Events); err != nil {
			return nil, err
		}
		sum.StartedAt = parseTime(started)
		sum.UpdatedAt = parseTime(updated)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Events lists a session's events in the order they were recorded.
func (s *Store) Events(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, status, matches, created_at
		 FROM events WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			entry            Entry
			eventType        string
			matches, created string
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &eventType, &entry.Status, &matches, &created); err != nil {
			return nil, err
		}
		entry.Type = session.EventType(eventType)
		if err := json.Unmarshal([]byte(matches), &entry.Matches); err != nil {
			return nil, fmt.Errorf("decode matches for event %d: %w", entry.ID, err)
		}
		entry.CreatedAt = parseTime(created)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune deletes sessions not updated within retention along with their
// events. A non-positive retention keeps everything.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := formatTime(s.clock().Add(-retention))
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Fixed-width UTC timestamps keep lexical and chronological order equal.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(matches session.ResultSet) []string {
	if matches == nil {
		return []string{}
	}
	return matches
}
