package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"fsconsole/internal/model"

	_ "modernc.org/sqlite"
)

const activityFileName = "activity.sqlite"

// ActivityLog is the local log of tag and metadata mutations. It is safe for
// concurrent use.
type ActivityLog struct {
	db *sql.DB
}

// ActivityFilter narrows List. Zero fields match everything.
type ActivityFilter struct {
	Project string
	Kind    model.Kind
	Name    string
	// Limit caps the number of events; 0 means 50.
	Limit int
}

func (s Store) activityPath() string {
	return filepath.Join(s.Dir, activityFileName)
}

// OpenActivityLog opens (creating if needed) the activity log in the store dir.
func (s Store) OpenActivityLog(ctx context.Context) (*ActivityLog, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	return openActivityLog(ctx, s.activityPath())
}

func openActivityLog(ctx context.Context, path string) (*ActivityLog, error) {
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection; one connection keeps them applied.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrateActivity(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ActivityLog{db: db}, nil
}

func migrateActivity(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_unixms INTEGER NOT NULL,
			type TEXT NOT NULL,
			project TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			status INTEGER NOT NULL,
			error TEXT,
			payload_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_item ON events(project, kind, name);`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts_unixms);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func (l *ActivityLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append stores ev. A zero TS is set to now.
func (l *ActivityLog) Append(ctx context.Context, ev model.Event) error {
	if strings.TrimSpace(ev.Type) == "" {
		return errors.New("activity: missing type")
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	pb, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	var errText any
	if ev.Error != "" {
		errText = ev.Error
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO events(ts_unixms, type, project, kind, name, status, error, payload_json)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.TS.UnixMilli(), ev.Type, ev.Project, string(ev.Kind), ev.Name, ev.Status, errText, string(pb))
	return err
}

// List returns matching events, newest first.
func (l *ActivityLog) List(ctx context.Context, f ActivityFilter) ([]model.Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var where []string
	var args []any
	if f.Project != "" {
		where = append(where, "project = ?")
		args = append(args, f.Project)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	q := `SELECT id, ts_unixms, type, project, kind, name, status, error, payload_json FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		var (
			ev      model.Event
			tsMs    int64
			kind    string
			errText sql.NullString
			payload string
		)
		if err := rows.Scan(&ev.ID, &tsMs, &ev.Type, &ev.Project, &kind, &ev.Name, &ev.Status, &errText, &payload); err != nil {
			return nil, err
		}
		ev.TS = time.UnixMilli(tsMs).UTC()
		ev.Kind = model.Kind(kind)
		ev.Error = errText.String
		if payload != "" && payload != "null" {
			var p any
			if err := json.Unmarshal([]byte(payload), &p); err == nil {
				ev.Payload = p
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Check runs SQLite's quick integrity check.
func (l *ActivityLog) Check(ctx context.Context) error {
	var res string
	if err := l.db.QueryRowContext(ctx, "PRAGMA quick_check;").Scan(&res); err != nil {
		return err
	}
	if res != "ok" {
		return errors.New("activity log: " + res)
	}
	return nil
}
