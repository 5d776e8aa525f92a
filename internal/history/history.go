// Package history records asked questions and their outcomes.
package history

import (
	"context"
	"time"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 200
)

type Entry struct {
	ID           string        `json:"id"`
	Question     string        `json:"question"`
	SQL          string        `json:"sql"`
	Status       Status        `json:"status"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ExecutionID  string        `json:"execution_id,omitempty"`
	RowCount     int           `json:"row_count"`
	Truncated    bool          `json:"truncated"`
	Duration     time.Duration `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) (Entry, error)
}

type Reader interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// ClampLimit maps a requested page size onto [1, MaxRecentLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return min(limit, MaxRecentLimit)
}
