// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage provides a local SQLite-backed store for finished
// spans, so recent LLM traces can be inspected without a remote backend.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one finished span as stored locally.
type Record struct {
	TraceID       string
	SpanID        string
	ParentID      string
	Name          string
	Kind          string // OpenInference span kind attribute value
	StartTime     time.Time
	EndTime       time.Time
	StatusCode    int
	StatusMessage string
	Attributes    map[string]any
}

// Store is a SQLite-backed span store.
type Store struct {
	db *sql.DB
}

// Config contains store configuration.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Special value ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int
}

// Open creates or opens a SQLite span store.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage: database path is required")
	}

	// WAL mode allows concurrent readers while the exporter writes.
	// modernc.org/sqlite takes pragmas in _pragma=name(value) form; the
	// mattn-style _journal_mode parameters are silently ignored by it.
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: connect: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS spans (
			trace_id TEXT NOT NULL,
			span_id TEXT NOT NULL,
			parent_id TEXT,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			status_code INTEGER NOT NULL,
			status_message TEXT,
			attributes TEXT,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (trace_id, span_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_trace_id ON spans(trace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_start_time ON spans(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_kind ON spans(kind)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save stores a span record, replacing any existing row with the same
// trace and span id.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("storage: record is nil")
	}
	if rec.TraceID == "" || rec.SpanID == "" {
		return fmt.Errorf("storage: trace_id and span_id are required")
	}

	attributesJSON, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("storage: marshal attributes: %w", err)
	}

	var parentID *string
	if rec.ParentID != "" {
		parentID = &rec.ParentID
	}

	query := `
		INSERT INTO spans (trace_id, span_id, parent_id, name, kind, start_time, end_time,
			status_code, status_message, attributes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id, span_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			name = excluded.name,
			kind = excluded.kind,
			end_time = excluded.end_time,
			status_code = excluded.status_code,
			status_message = excluded.status_message,
			attributes = excluded.attributes
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.TraceID, rec.SpanID, parentID, rec.Name, rec.Kind,
		rec.StartTime.UnixNano(), rec.EndTime.UnixNano(),
		rec.StatusCode, rec.StatusMessage, attributesJSON,
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("storage: store span: %w", err)
	}
	return nil
}

// TraceSpans retrieves all spans for a trace ordered by start time.
func (s *Store) TraceSpans(ctx context.Context, traceID string) ([]*Record, error) {
	query := `
		SELECT span_id, parent_id, name, kind, start_time, end_time,
			status_code, status_message, attributes
		FROM spans WHERE trace_id = ?
		ORDER BY start_time ASC
	`

	rows, err := s.db.QueryContext(ctx, query, traceID)
	if err != nil {
		return nil, fmt.Errorf("storage: query spans: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{TraceID: traceID}
		var parentID *string
		var startTime, endTime int64
		var attributesJSON []byte

		err := rows.Scan(
			&rec.SpanID, &parentID, &rec.Name, &rec.Kind,
			&startTime, &endTime, &rec.StatusCode, &rec.StatusMessage,
			&attributesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("storage: scan span: %w", err)
		}

		if parentID != nil {
			rec.ParentID = *parentID
		}
		rec.StartTime = time.Unix(0, startTime)
		rec.EndTime = time.Unix(0, endTime)

		if len(attributesJSON) > 0 {
			if err := json.Unmarshal(attributesJSON, &rec.Attributes); err != nil {
				return nil, fmt.Errorf("storage: unmarshal attributes: %w", err)
			}
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListTraces returns distinct trace ids ordered by most recent start,
// optionally limited.
func (s *Store) ListTraces(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT trace_id FROM spans
		GROUP BY trace_id
		ORDER BY MIN(start_time) DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list traces: %w", err)
	}
	defer rows.Close()

	var traceIDs []string
	for rows.Next() {
		var traceID string
		if err := rows.Scan(&traceID); err != nil {
			return nil, fmt.Errorf("storage: scan trace id: %w", err)
		}
		traceIDs = append(traceIDs, traceID)
	}
	return traceIDs, rows.Err()
}

// DeleteOlderThan deletes spans that started before the given time.
// Returns the number of spans deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM spans WHERE start_time < ?",
		before.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: delete old spans: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
