// Package journal persists delivered events and command outcomes to a local
// sqlite database, one session per bridge lifetime. It is a hub subscriber
// like any other consumer: journal failures never reach the bridge.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mattjoyce/loomhost/internal/events"
	"github.com/mattjoyce/loomhost/internal/log"
)

// Entry is one journaled hub event.
type Entry struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	HubID     int64           `json:"hub_id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	At        time.Time       `json:"at"`
}

// Journal owns the sqlite handle and the hub subscription.
type Journal struct {
	db        *sql.DB
	sessionID string
	logger    *slog.Logger

	cancel func()
	done   chan struct{}
}

// Open creates (if needed) and opens the journal database at path, then
// records a new session row.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &Journal{
		db:        db,
		sessionID: uuid.NewString(),
		logger:    log.WithComponent("journal"),
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := db.ExecContext(ctx,
		`INSERT INTO sessions(id, started_at) VALUES(?, ?);`, j.sessionID, now); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("record session: %w", err)
	}

	j.logger.Info("journal opened", "path", path, "session_id", j.sessionID)
	return j, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
  id         TEXT PRIMARY KEY,
  started_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS entries (
  id         TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  hub_id     INTEGER NOT NULL,
  topic      TEXT NOT NULL,
  payload    JSON NOT NULL DEFAULT '{}',
  at         TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS entries_session_at_idx ON entries(session_id, at);`,
		`CREATE INDEX IF NOT EXISTS entries_topic_idx ON entries(topic);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap journal: %w", err)
		}
	}
	return nil
}

// SessionID returns the identifier of the session this journal records.
func (j *Journal) SessionID() string { return j.sessionID }

// Attach subscribes to the hub and persists every published event until
// Close. Writes are best-effort; failures are logged and delivery continues.
func (j *Journal) Attach(hub *events.Hub) {
	ch, cancel := hub.Subscribe()
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		for ev := range ch {
			if err := j.record(ev); err != nil {
				j.logger.Error("failed to journal event", "topic", ev.Type, "error", err)
			}
		}
	}()
}

func (j *Journal) record(ev events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := j.db.ExecContext(ctx, `
INSERT INTO entries(id, session_id, hub_id, topic, payload, at)
VALUES(?, ?, ?, ?, ?, ?);
`, uuid.NewString(), j.sessionID, ev.ID, ev.Type, string(ev.Data),
		ev.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit entries for the current session,
// newest-first.
func (j *Journal) RecentEvents(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT id, session_id, hub_id, topic, payload, at
FROM entries
WHERE session_id = ?
ORDER BY at DESC, hub_id DESC
LIMIT ?;
`, j.sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var payload, at string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.HubID, &e.Topic, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close detaches from the hub and closes the database.
func (j *Journal) Close() error {
	if j.cancel != nil {
		j.cancel()
		<-j.done
	}
	return j.db.Close()
}
