// Package postgres stores history entries in the ask_history table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/asklake/asklake/internal/history"
)

type Repository struct {
	db *sql.DB
}

var (
	_ history.Recorder = (*Repository)(nil)
	_ history.Reader   = (*Repository)(nil)
)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, entry history.Entry) (history.Entry, error) {
	if strings.TrimSpace(entry.ID) == "" {
		return history.Entry{}, fmt.Errorf("history entry id is required")
	}
	switch entry.Status {
	case history.StatusSucceeded, history.StatusRejected, history.StatusFailed:
	default:
		return history.Entry{}, fmt.Errorf("invalid history status %q", entry.Status)
	}

	query := `
INSERT INTO ask_history (id, question, sql, status, error_kind, error_message, execution_id, row_count, truncated, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.Question,
		entry.SQL,
		string(entry.Status),
		entry.ErrorKind,
		entry.ErrorMessage,
		entry.ExecutionID,
		entry.RowCount,
		entry.Truncated,
		entry.Duration.Milliseconds(),
	).Scan(&entry.CreatedAt)
	if err != nil {
		return history.Entry{}, fmt.Errorf("insert history entry: %w", err)
	}
	return entry, nil
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	query := `
SELECT id, question, sql, status, error_kind, error_message, execution_id, row_count, truncated, duration_ms, created_at
FROM ask_history
ORDER BY created_at DESC
LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, history.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]history.Entry, 0)
	for rows.Next() {
		var (
			entry      history.Entry
			status     string
			durationMS int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Question,
			&entry.SQL,
			&status,
			&entry.ErrorKind,
			&entry.ErrorMessage,
			&entry.ExecutionID,
			&entry.RowCount,
			&entry.Truncated,
			&durationMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.Status = history.Status(status)
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}
