package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT    NOT NULL,
	turn       INTEGER NOT NULL,
	phase      TEXT    NOT NULL,
	saved_at   INTEGER NOT NULL,
	body       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_session ON snapshots (session_id, id);
`

// SQLiteStore appends every snapshot to a SQLite table, giving an audit
// trail of the session alongside crash recovery.
type SQLiteStore struct {
	db        *sql.DB
	sessionID string
}

// SessionInfo summarises one session recorded in the database.
type SessionInfo struct {
	SessionID string
	Turn      int
	Saves     int
	LastSave  time.Time
}

// OpenSQLite opens or creates the database at path. Load returns the latest
// snapshot of sessionID, or of any session when sessionID is empty.
func OpenSQLite(path, sessionID string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; the router saves sequentially anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, sessionID: sessionID}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, turn, phase, saved_at, body) VALUES (?, ?, ?, ?, ?)`,
		snap.SessionID, snap.Turn(), snap.Phase.String(), snap.SavedAt.UTC().UnixMilli(), string(body))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	var row *sql.Row
	if s.sessionID != "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT body FROM snapshots WHERE session_id = ? ORDER BY id DESC LIMIT 1`, s.sessionID)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT body FROM snapshots ORDER BY id DESC LIMIT 1`)
	}

	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Sessions lists the sessions stored in the database, most recent first.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, MAX(turn), COUNT(*), MAX(saved_at)
		FROM snapshots
		GROUP BY session_id
		ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			info  SessionInfo
			saved int64
		)
		if err := rows.Scan(&info.SessionID, &info.Turn, &info.Saves, &saved); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.LastSave = time.UnixMilli(saved).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
