// Package audit records the pod lifecycle event log: every create, delete,
// and rollback the orchestrator and reaper perform, for operational
// troubleshooting.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Event is a single lifecycle entry.
type Event struct {
	PodName string
	UserID  string
	Event   string // "created", "deleted", "rollback"
	Reason  string
	At      time.Time
}

// Log is a SQLite-backed append-only event log. It uses modernc.org/sqlite,
// which is pure Go and needs no CGO.
type Log struct {
	db *sql.DB
	mu sync.Mutex // serializes writes; SQLite is single-writer
}

// Open creates or opens the audit database at dataDir/audit.db and runs
// schema migrations.
func Open(dataDir string) (*Log, error) {
	dbPath := filepath.Join(dataDir, "audit.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating audit database: %w", err)
	}
	return l, nil
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS lifecycle_events (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		pod_name  TEXT NOT NULL,
		user_id   TEXT NOT NULL,
		event     TEXT NOT NULL,
		reason    TEXT NOT NULL DEFAULT '',
		at        DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_pod ON lifecycle_events(pod_name)`)
	return err
}

// Record appends a lifecycle event.
func (l *Log) Record(_ context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(
		"INSERT INTO lifecycle_events (pod_name, user_id, event, reason, at) VALUES (?, ?, ?, ?, ?)",
		ev.PodName, ev.UserID, ev.Event, ev.Reason, ev.At.UTC(),
	)
	return err
}

// ForPod returns every recorded event for a pod, oldest first.
func (l *Log) ForPod(_ context.Context, podName string) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		"SELECT pod_name, user_id, event, reason, at FROM lifecycle_events WHERE pod_name = ? ORDER BY id",
		podName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.PodName, &e.UserID, &e.Event, &e.Reason, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recent returns the most recent n events across all pods, newest first.
func (l *Log) Recent(_ context.Context, n int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		"SELECT pod_name, user_id, event, reason, at FROM lifecycle_events ORDER BY id DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.PodName, &e.UserID, &e.Event, &e.Reason, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
