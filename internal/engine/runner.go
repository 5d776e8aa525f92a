package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asklake/asklake/internal/observability"
)

const (
	DefaultPollInterval = 800 * time.Millisecond
	DefaultPageSize     = 1000
)

// Runner drives a single execution end to end. It keeps no state between
// calls and is safe for concurrent use.
type Runner struct {
	Engine       Engine
	RowLimit     int
	PollInterval time.Duration
	PageSize     int
	Logger       *slog.Logger

	// Sleep waits between status polls; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(engine Engine, rowLimit int, logger *slog.Logger) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if rowLimit <= 0 {
		return nil, fmt.Errorf("row limit must be positive, got %d", rowLimit)
	}
	return &Runner{
		Engine:       engine,
		RowLimit:     rowLimit,
		PollInterval: DefaultPollInterval,
		PageSize:     DefaultPageSize,
		Logger:       logger,
	}, nil
}

func (r *Runner) Execute(ctx context.Context, sql string, target Target) (ResultSet, error) {
	if strings.TrimSpace(sql) == "" {
		return ResultSet{}, fmt.Errorf("sql is required")
	}
	start := time.Now()

	executionID, err := r.Engine.StartQuery(ctx, Submission{SQL: sql, Target: target})
	if err != nil {
		return ResultSet{}, fmt.Errorf("start query: %w", err)
	}
	if r.Logger != nil {
		r.Logger.DebugContext(ctx, "query submitted",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("execution_id", executionID),
			slog.String("database", target.Database),
			slog.String("work_group", target.WorkGroup),
		)
	}

	status, polls, err := r.awaitTerminal(ctx, executionID)
	if err != nil {
		return ResultSet{}, err
	}
	if status.State != StateSucceeded {
		observability.ObserveQueryExecution(string(status.State), -1)
		return ResultSet{}, &ExecutionFailedError{ExecutionID: executionID, State: status.State, Reason: status.Reason}
	}

	result, err := r.fetch(ctx, executionID)
	if err != nil {
		return ResultSet{}, err
	}
	result.Stats.Polls = polls
	result.Stats.Duration = time.Since(start)
	observability.ObserveQueryExecution(string(status.State), len(result.Rows))

	if r.Logger != nil {
		r.Logger.InfoContext(ctx, "query completed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("execution_id", executionID),
			slog.Int("rows", len(result.Rows)),
			slog.Bool("truncated", result.Truncated),
			slog.Int("polls", polls),
			slog.Int("pages", result.Stats.Pages),
			slog.String("duration", result.Stats.Duration.String()),
		)
	}
	return result, nil
}

// awaitTerminal polls at a constant interval. There is no overall deadline;
// cancelling ctx is the only way to stop waiting.
func (r *Runner) awaitTerminal(ctx context.Context, executionID string) (Status, int, error) {
	interval := r.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	polls := 0
	for {
		status, err := r.Engine.QueryStatus(ctx, executionID)
		polls++
		observability.IncrementQueryPoll()
		if err != nil {
			return Status{}, polls, fmt.Errorf("get query status %s: %w", executionID, err)
		}
		if status.State.Terminal() {
			return status, polls, nil
		}
		if err := sleep(ctx, interval); err != nil {
			return Status{}, polls, err
		}
	}
}

func (r *Runner) fetch(ctx context.Context, executionID string) (ResultSet, error) {
	pageSize := r.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	page, err := r.Engine.QueryResults(ctx, executionID, "", pageSize)
	if err != nil {
		return ResultSet{}, fmt.Errorf("get query results %s: %w", executionID, err)
	}
	result := ResultSet{ExecutionID: executionID, Stats: Stats{Pages: 1}}
	if len(page.Rows) == 0 {
		return result, nil
	}

	result.Columns = headerNames(page.Rows[0])
	result.Rows = make([][]*string, 0, min(r.RowLimit, len(page.Rows)-1))
	result.Truncated = r.appendRows(&result, page.Rows[1:])

	token := page.NextToken
	for token != "" && len(result.Rows) < r.RowLimit {
		page, err = r.Engine.QueryResults(ctx, executionID, token, pageSize)
		if err != nil {
			return ResultSet{}, fmt.Errorf("get query results %s: %w", executionID, err)
		}
		result.Stats.Pages++
		result.Truncated = r.appendRows(&result, page.Rows)
		token = page.NextToken
	}
	if token != "" {
		result.Truncated = true
	}
	return result, nil
}

// appendRows adds rows up to the row limit, shaping each to the header arity.
// It reports whether any rows were dropped.
func (r *Runner) appendRows(result *ResultSet, rows [][]*string) bool {
	width := len(result.Columns)
	for _, row := range rows {
		if len(result.Rows) >= r.RowLimit {
			return true
		}
		shaped := make([]*string, width)
		copy(shaped, row)
		result.Rows = append(result.Rows, shaped)
	}
	return false
}

func headerNames(row []*string) []string {
	names := make([]string, len(row))
	for i, cell := range row {
		if cell != nil {
			names[i] = *cell
		}
	}
	return names
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
