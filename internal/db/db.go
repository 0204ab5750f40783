// Package db provides persistence for SheetHub's audit trail of tool calls.
// PostgreSQL is the production store; SQLite serves single-node deployments
// and tests.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the underlying *sql.DB and provides typed query methods.
type DB struct {
	conn   *sql.DB
	driver string
}

// New opens a connection for driver ("postgres" or "sqlite3"), verifies
// connectivity and applies pending migrations.
func New(driver, databaseURL string) (*DB, error) {
	switch driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if driver == "sqlite3" {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := ApplyMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return &DB{conn: conn, driver: driver}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Driver() string {
	return d.driver
}

// ToolCall is one audited tool invocation.
type ToolCall struct {
	ToolCallID    string    `json:"tool_call_id"`
	TraceID       string    `json:"trace_id"`
	ToolName      string    `json:"tool_name"`
	SpreadsheetID string    `json:"spreadsheet_id,omitempty"`
	Status        string    `json:"status"`
	ErrorCode     *string   `json:"error_code,omitempty"`
	RequestJSON   string    `json:"request_json"`
	ResponseJSON  string    `json:"response_json"`
	EvidenceHash  string    `json:"evidence_hash"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// InsertToolCall creates a new tool call record.
func (d *DB) InsertToolCall(ctx context.Context, tc *ToolCall) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO tool_calls (tool_call_id, trace_id, tool_name, spreadsheet_id, status, error_code, request_json, response_json, evidence_hash, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tc.ToolCallID, tc.TraceID, tc.ToolName, tc.SpreadsheetID, tc.Status, tc.ErrorCode, tc.RequestJSON, tc.ResponseJSON, tc.EvidenceHash, tc.DurationMS, tc.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert tool_call: %w", err)
	}
	return nil
}

// GetToolCall retrieves a tool call by ID. A missing row yields (nil, nil).
func (d *DB) GetToolCall(ctx context.Context, toolCallID string) (*ToolCall, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+toolCallColumns+` FROM tool_calls WHERE tool_call_id = $1`, toolCallID,
	)
	tc, err := scanToolCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tool_call: %w", err)
	}
	return tc, nil
}

const toolCallColumns = `tool_call_id, trace_id, tool_name, spreadsheet_id, status, error_code, request_json, response_json, evidence_hash, duration_ms, created_at`

// ToolCallFilter narrows ListToolCalls. Zero values are ignored.
type ToolCallFilter struct {
	Status        string
	ToolName      string
	SpreadsheetID string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
}

// ListToolCalls returns matching tool calls, most recent first.
func (d *DB) ListToolCalls(ctx context.Context, f ToolCallFilter) ([]*ToolCall, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ToolName != "" {
		add("tool_name = $%d", f.ToolName)
	}
	if f.SpreadsheetID != "" {
		add("spreadsheet_id = $%d", f.SpreadsheetID)
	}
	if f.CreatedAfter != nil {
		add("created_at >= $%d", f.CreatedAfter.UTC())
	}
	if f.CreatedBefore != nil {
		add("created_at <= $%d", f.CreatedBefore.UTC())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + toolCallColumns + ` FROM tool_calls`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tool_calls: %w", err)
	}
	defer rows.Close()

	var tcs []*ToolCall
	for rows.Next() {
		tc, err := scanToolCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool_call: %w", err)
		}
		tcs = append(tcs, tc)
	}
	return tcs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToolCall(s rowScanner) (*ToolCall, error) {
	tc := &ToolCall{}
	if err := s.Scan(&tc.ToolCallID, &tc.TraceID, &tc.ToolName, &tc.SpreadsheetID, &tc.Status, &tc.ErrorCode,
		&tc.RequestJSON, &tc.ResponseJSON, &tc.EvidenceHash, &tc.DurationMS, &tc.CreatedAt); err != nil {
		return nil, err
	}
	tc.CreatedAt = tc.CreatedAt.UTC()
	return tc, nil
}
