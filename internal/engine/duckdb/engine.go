// Package duckdb runs queries locally against parquet objects with an
// in-memory DuckDB, exposing the same submit/poll/page protocol as Athena.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/asklake/asklake/internal/engine"
	"github.com/asklake/asklake/internal/storage"
)

const DefaultMaxRetained = 64

var ErrExecutionNotFound = errors.New("execution not found")

type Engine struct {
	store       storage.ObjectStore
	tables      []Table
	logger      *slog.Logger
	maxRetained int

	mu         sync.Mutex
	executions map[string]*execution
	order      []string
}

type execution struct {
	state  engine.State
	reason string
	rows   [][]*string
}

var _ engine.Engine = (*Engine)(nil)

func New(store storage.ObjectStore, tables []Table, logger *slog.Logger) (*Engine, error) {
	if store == nil && len(tables) > 0 {
		return nil, fmt.Errorf("object store is required when tables are configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       store,
		tables:      tables,
		logger:      logger,
		maxRetained: DefaultMaxRetained,
		executions:  map[string]*execution{},
	}, nil
}

func (e *Engine) Tables() []Table {
	return append([]Table(nil), e.tables...)
}

func (e *Engine) StartQuery(ctx context.Context, submission engine.Submission) (string, error) {
	if strings.TrimSpace(submission.SQL) == "" {
		return "", fmt.Errorf("sql is required")
	}

	id := uuid.NewString()
	e.mu.Lock()
	e.executions[id] = &execution{state: engine.StateQueued}
	e.order = append(e.order, id)
	e.evictLocked()
	e.mu.Unlock()

	// The execution outlives the submitting request, as it would on Athena.
	go e.run(context.WithoutCancel(ctx), id, submission)
	return id, nil
}

func (e *Engine) QueryStatus(_ context.Context, executionID string) (engine.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[executionID]
	if !ok {
		return engine.Status{}, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return engine.Status{State: exec.state, Reason: exec.reason}, nil
}

func (e *Engine) QueryResults(_ context.Context, executionID, nextToken string, maxResults int) (engine.Page, error) {
	e.mu.Lock()
	exec, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return engine.Page{}, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	state, rows := exec.state, exec.rows
	e.mu.Unlock()

	if state != engine.StateSucceeded {
		return engine.Page{}, fmt.Errorf("execution %s is %s", executionID, state)
	}

	offset := 0
	if nextToken != "" {
		parsed, err := strconv.Atoi(nextToken)
		if err != nil || parsed < 0 || parsed > len(rows) {
			return engine.Page{}, fmt.Errorf("invalid next token %q", nextToken)
		}
		offset = parsed
	}
	if maxResults <= 0 {
		maxResults = engine.DefaultPageSize
	}

	end := min(offset+maxResults, len(rows))
	page := engine.Page{Rows: rows[offset:end]}
	if end < len(rows) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

func (e *Engine) run(ctx context.Context, id string, submission engine.Submission) {
	e.setState(id, engine.StateRunning, "", nil)
	start := time.Now()

	rows, err := e.execute(ctx, submission)
	if err != nil {
		e.logger.Debug("local query failed", slog.String("execution_id", id), slog.Any("error", err))
		e.setState(id, engine.StateFailed, err.Error(), nil)
		return
	}
	e.logger.Debug("local query finished",
		slog.String("execution_id", id),
		slog.Int("rows", len(rows)-1),
		slog.Duration("duration", time.Since(start)),
	)
	e.setState(id, engine.StateSucceeded, "", rows)
}

func (e *Engine) execute(ctx context.Context, submission engine.Submission) ([][]*string, error) {
	workDir, err := os.MkdirTemp("", "asklake-duckdb-")
	if err != nil {
		return nil, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths, err := download(ctx, e.store, e.tables, workDir)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	// search_path is connection scoped, so everything runs on one connection.
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	schemas := map[string]struct{}{}
	for _, table := range e.tables {
		schemas[table.Schema] = struct{}{}
	}
	database := strings.TrimSpace(submission.Target.Database)
	if database != "" {
		schemas[database] = struct{}{}
	}
	for schema := range schemas {
		if _, err := conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema)); err != nil {
			return nil, fmt.Errorf("create schema %q: %w", schema, err)
		}
	}
	for _, table := range e.tables {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s.%s AS SELECT * FROM read_parquet(%s)`,
			quoteIdent(table.Schema), quoteIdent(table.Name), quoteStringArray(localPaths[table.QualifiedName()]))
		if _, err := conn.ExecContext(ctx, viewSQL); err != nil {
			return nil, fmt.Errorf("create view %s: %w", table.QualifiedName(), err)
		}
	}
	if database != "" {
		if _, err := conn.ExecContext(ctx, "SET search_path = "+quoteString(database)); err != nil {
			return nil, fmt.Errorf("set search path: %w", err)
		}
	}

	result, err := conn.QueryContext(ctx, stripTrailingSemicolons(submission.SQL))
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = result.Close() }()

	columns, err := result.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	header := make([]*string, len(columns))
	for i := range columns {
		header[i] = &columns[i]
	}

	rows := [][]*string{header}
	for result.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := result.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rows = append(rows, formatValues(values))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return rows, nil
}

func (e *Engine) setState(id string, state engine.State, reason string, rows [][]*string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[id]
	if !ok {
		return
	}
	exec.state = state
	exec.reason = reason
	exec.rows = rows
}

// evictLocked drops the oldest finished executions beyond maxRetained.
func (e *Engine) evictLocked() {
	if len(e.order) <= e.maxRetained {
		return
	}
	kept := e.order[:0]
	excess := len(e.order) - e.maxRetained
	for _, id := range e.order {
		if excess > 0 && e.executions[id].state.Terminal() {
			delete(e.executions, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	e.order = kept
}

func formatValues(values []any) []*string {
	out := make([]*string, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		var text string
		switch typed := value.(type) {
		case []byte:
			text = string(typed)
		case string:
			text = typed
		case time.Time:
			text = typed.UTC().Format("2006-01-02 15:04:05.000")
		case float64:
			text = strconv.FormatFloat(typed, 'f', -1, 64)
		case float32:
			text = strconv.FormatFloat(float64(typed), 'f', -1, 32)
		default:
			text = fmt.Sprint(typed)
		}
		out[i] = &text
	}
	return out
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, quoteString(value))
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
