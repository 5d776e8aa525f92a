// Package engine runs validated SQL on an asynchronous query engine: submit,
// poll until terminal, then page through results up to a row cap.
package engine

import (
	"context"
	"fmt"
	"time"
)

type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Target selects where a query runs. Database is the default catalog
// database for unqualified table names.
type Target struct {
	Database       string
	OutputLocation string
	WorkGroup      string
}

type Submission struct {
	SQL    string
	Target Target
}

type Status struct {
	State  State
	Reason string
}

// Page is one slice of results. On the first page the first row holds the
// column headers. A nil cell is SQL NULL.
type Page struct {
	Rows      [][]*string
	NextToken string
}

type Engine interface {
	StartQuery(ctx context.Context, submission Submission) (string, error)
	QueryStatus(ctx context.Context, executionID string) (Status, error)
	QueryResults(ctx context.Context, executionID, nextToken string, maxResults int) (Page, error)
}

type Stats struct {
	Polls    int
	Pages    int
	Duration time.Duration
}

type ResultSet struct {
	ExecutionID string
	Columns     []string
	Rows        [][]*string
	Truncated   bool
	Stats       Stats
}

// ExecutionFailedError reports a query the engine finished as FAILED or
// CANCELLED.
type ExecutionFailedError struct {
	ExecutionID string
	State       State
	Reason      string
}

func (e *ExecutionFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("query %s %s", e.ExecutionID, e.State)
	}
	return fmt.Sprintf("query %s %s: %s", e.ExecutionID, e.State, e.Reason)
}
