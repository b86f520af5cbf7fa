// Package sqlite provides a SQLite-backed audit recorder.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/harborworks/ferry/pkg/audit"
)

// Recorder stores exchange records as flat rows in a SQLite database.
type Recorder struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecorder opens the SQLite database at path and creates the exchanges
// table if it does not exist. Use ":memory:" for an in-memory database.
func NewRecorder(path string, logger *zap.Logger) (*Recorder, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			caller_addr TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL,
			inbound_method TEXT NOT NULL,
			inbound_url TEXT NOT NULL,
			inbound_headers TEXT NOT NULL DEFAULT '',
			inbound_body TEXT NOT NULL DEFAULT '',
			outbound_method TEXT NOT NULL,
			outbound_url TEXT NOT NULL,
			outbound_headers TEXT NOT NULL DEFAULT '',
			response_status INTEGER NOT NULL,
			response_headers TEXT NOT NULL DEFAULT '',
			response_body TEXT NOT NULL DEFAULT '',
			streamed INTEGER NOT NULL DEFAULT 0,
			event_count INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating exchanges table: %w", err)
	}

	logger.Info("sqlite audit recorder initialized",
		zap.String("db_path", path),
	)

	return &Recorder{
		db:     db,
		logger: logger,
	}, nil
}

// Record inserts one exchange row. Header maps are stored as JSON text.
func (r *Recorder) Record(ctx context.Context, ex *audit.Exchange) error {
	if ex == nil {
		return audit.ErrNilExchange
	}

	inHeaders, err := marshalHeaders(ex.Inbound.Headers)
	if err != nil {
		return err
	}
	outHeaders, err := marshalHeaders(ex.Outbound.Headers)
	if err != nil {
		return err
	}
	respHeaders, err := marshalHeaders(ex.Response.Headers)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO exchanges (
			id, schema_version, caller_addr, started_at, completed_at, duration_ms,
			inbound_method, inbound_url, inbound_headers, inbound_body,
			outbound_method, outbound_url, outbound_headers,
			response_status, response_headers, response_body, streamed, event_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.SchemaVersion, ex.CallerAddr, ex.StartedAt, ex.CompletedAt, ex.DurationMs,
		ex.Inbound.Method, ex.Inbound.URL, inHeaders, ex.Inbound.Body,
		ex.Outbound.Method, ex.Outbound.URL, outHeaders,
		ex.Response.Status, respHeaders, ex.Response.Body, ex.Response.Streamed, ex.Response.EventCount,
	)
	if err != nil {
		return fmt.Errorf("inserting exchange %s: %w", ex.ID, err)
	}

	return nil
}

// Count returns the number of stored exchange records.
func (r *Recorder) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting exchanges: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

func marshalHeaders(h map[string]string) (string, error) {
	if len(h) == 0 {
		return "", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshaling headers: %w", err)
	}
	return string(b), nil
}
