// Package audit implements the ambient session audit log described in
// SPEC_FULL.md Part D.6: a best-effort Postgres record of connection
// lifecycle events (cmd/server records "connect" on upgrade and
// "disconnect", with room id and username, on close; joins, leaves,
// renames and evictions are not recorded as events of their own). It
// never gates a §4.3 effect and is never fatal if
// Postgres is unreachable — persistence failures are logged and swallowed,
// per §7's "errors from background I/O are logged and do not interrupt
// live sessions."
//
// Grounded on the teacher's models/session.go (SessionManager) and
// recovery.go's cleanup-ticker pattern, repurposed from DB-backed
// "reconnect recovery" (which conflicts with the spec's non-goal of durable
// redelivery) into pure observability.
package audit

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// Log records session lifecycle events. NullLog is used when no
// DATABASE_URL is configured.
type Log interface {
	Record(event, roomID, username string)
	Close() error
}

// NullLog discards every event; used when Postgres isn't configured.
type NullLog struct{}

func (NullLog) Record(string, string, string) {}
func (NullLog) Close() error                  { return nil }

// PostgresLog writes to a session_events table.
type PostgresLog struct {
	db *sql.DB
}

// OpenPostgres connects and ensures the session_events table exists.
func OpenPostgres(dsn string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS session_events (
		id SERIAL PRIMARY KEY,
		event TEXT NOT NULL,
		room_id TEXT NOT NULL,
		username TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresLog{db: db}, nil
}

// Record inserts one event row, logging (never returning) on failure.
func (p *PostgresLog) Record(event, roomID, username string) {
	_, err := p.db.Exec(
		`INSERT INTO session_events (event, room_id, username, occurred_at) VALUES ($1, $2, $3, $4)`,
		event, roomID, username, time.Now(),
	)
	if err != nil {
		log.Printf("audit: failed to record %s for %s/%s: %v", event, roomID, username, err)
	}
}

func (p *PostgresLog) Close() error {
	return p.db.Close()
}

// PruneOlderThan deletes rows older than cutoff, mirroring the teacher's
// recovery.go hourly cleanup of stale sessions/operations.
func (p *PostgresLog) PruneOlderThan(cutoff time.Duration) {
	res, err := p.db.Exec(`DELETE FROM session_events WHERE occurred_at < $1`, time.Now().Add(-cutoff))
	if err != nil {
		log.Printf("audit: prune failed: %v", err)
		return
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("audit: pruned %d stale session_events rows", n)
	}
}

// StartPruneLoop runs PruneOlderThan on a ticker, matching recovery.go's
// hourly cleanup cadence.
func (p *PostgresLog) StartPruneLoop(interval, cutoff time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			p.PruneOlderThan(cutoff)
		}
	}()
}
