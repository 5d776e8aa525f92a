package duckdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/asklake/asklake/internal/engine"
	"github.com/asklake/asklake/internal/storage"
)

type trip struct {
	Borough string  `parquet:"borough"`
	Fare    float64 `parquet:"fare_amount"`
}

func TestRunnerExecutesAgainstParquetViews(t *testing.T) {
	eng := newTestEngine(t, map[string][]trip{
		"raw/trips-1.parquet": {{Borough: "Manhattan", Fare: 12.5}, {Borough: "Queens", Fare: 30}},
		"raw/trips-2.parquet": {{Borough: "Manhattan", Fare: 7.5}},
	}, "nyc_taxi.trips=raw/trips-1.parquet|raw/trips-2.parquet")

	runner := newTestRunner(t, eng, 100)
	result, err := runner.Execute(context.Background(),
		"SELECT borough, COUNT(*) AS trips, SUM(fare_amount) AS fares FROM nyc_taxi.trips GROUP BY borough ORDER BY borough LIMIT 100",
		engine.Target{Database: "nyc_taxi"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := []string{"borough", "trips", "fares"}
	for i, name := range want {
		if result.Columns[i] != name {
			t.Fatalf("Columns = %v, want %v", result.Columns, want)
		}
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if got := *result.Rows[0][0] + "|" + *result.Rows[0][1] + "|" + *result.Rows[0][2]; got != "Manhattan|2|20" {
		t.Fatalf("row 0 = %q", got)
	}
	if result.Truncated {
		t.Fatal("Truncated = true, want false")
	}
}

func TestSearchPathResolvesUnqualifiedTables(t *testing.T) {
	eng := newTestEngine(t, map[string][]trip{
		"raw/trips.parquet": {{Borough: "Bronx", Fare: 9}},
	}, "nyc_taxi.trips=raw/trips.parquet")

	runner := newTestRunner(t, eng, 10)
	result, err := runner.Execute(context.Background(), "SELECT borough FROM trips;", engine.Target{Database: "nyc_taxi"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 || *result.Rows[0][0] != "Bronx" {
		t.Fatalf("rows = %#v", result.Rows)
	}
}

func TestResultsArePagedWithNumericTokens(t *testing.T) {
	eng := newTestEngine(t, nil, "")
	id, err := eng.StartQuery(context.Background(), engine.Submission{SQL: "SELECT * FROM range(5) t(n)"})
	if err != nil {
		t.Fatalf("StartQuery() error = %v", err)
	}
	waitForState(t, eng, id, engine.StateSucceeded)

	first, err := eng.QueryResults(context.Background(), id, "", 4)
	if err != nil {
		t.Fatalf("QueryResults() error = %v", err)
	}
	if len(first.Rows) != 4 || *first.Rows[0][0] != "n" || first.NextToken != "4" {
		t.Fatalf("first page = %d rows, token %q", len(first.Rows), first.NextToken)
	}
	second, err := eng.QueryResults(context.Background(), id, first.NextToken, 4)
	if err != nil {
		t.Fatalf("QueryResults() error = %v", err)
	}
	if len(second.Rows) != 2 || *second.Rows[1][0] != "4" || second.NextToken != "" {
		t.Fatalf("second page = %d rows, token %q", len(second.Rows), second.NextToken)
	}
	if _, err := eng.QueryResults(context.Background(), id, "bogus", 4); err == nil {
		t.Fatal("expected invalid token error")
	}
}

func TestNullsAreReportedAsNil(t *testing.T) {
	eng := newTestEngine(t, nil, "")
	runner := newTestRunner(t, eng, 10)
	result, err := runner.Execute(context.Background(), "SELECT NULL AS missing, 'x' AS present", engine.Target{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != nil || *result.Rows[0][1] != "x" {
		t.Fatalf("row = %#v", result.Rows[0])
	}
}

func TestInvalidSQLFailsExecution(t *testing.T) {
	eng := newTestEngine(t, nil, "")
	runner := newTestRunner(t, eng, 10)
	_, err := runner.Execute(context.Background(), "SELECT * FROM nyc_taxi.missing", engine.Target{})
	var failed *engine.ExecutionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Execute() error = %v, want ExecutionFailedError", err)
	}
	if failed.State != engine.StateFailed || failed.Reason == "" {
		t.Fatalf("failed = %+v", failed)
	}
}

func TestMissingObjectFailsExecution(t *testing.T) {
	eng := newTestEngine(t, nil, "nyc_taxi.trips=raw/absent.parquet")
	runner := newTestRunner(t, eng, 10)
	_, err := runner.Execute(context.Background(), "SELECT 1", engine.Target{})
	var failed *engine.ExecutionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Execute() error = %v, want ExecutionFailedError", err)
	}
}

func TestUnknownExecution(t *testing.T) {
	eng := newTestEngine(t, nil, "")
	if _, err := eng.QueryStatus(context.Background(), "nope"); !errors.Is(err, ErrExecutionNotFound) {
		t.Fatalf("QueryStatus() error = %v", err)
	}
	if _, err := eng.QueryResults(context.Background(), "nope", "", 10); !errors.Is(err, ErrExecutionNotFound) {
		t.Fatalf("QueryResults() error = %v", err)
	}
}

func TestFinishedExecutionsAreEvicted(t *testing.T) {
	eng := newTestEngine(t, nil, "")
	eng.maxRetained = 2

	first, _ := eng.StartQuery(context.Background(), engine.Submission{SQL: "SELECT 1"})
	waitForState(t, eng, first, engine.StateSucceeded)
	second, _ := eng.StartQuery(context.Background(), engine.Submission{SQL: "SELECT 2"})
	waitForState(t, eng, second, engine.StateSucceeded)
	third, _ := eng.StartQuery(context.Background(), engine.Submission{SQL: "SELECT 3"})
	waitForState(t, eng, third, engine.StateSucceeded)

	if _, err := eng.QueryStatus(context.Background(), first); !errors.Is(err, ErrExecutionNotFound) {
		t.Fatalf("first execution should be evicted, err = %v", err)
	}
	if _, err := eng.QueryStatus(context.Background(), third); err != nil {
		t.Fatalf("third execution missing: %v", err)
	}
}

func newTestEngine(t *testing.T, objects map[string][]trip, definition string) *Engine {
	t.Helper()
	store := &memoryStore{objects: map[string][]byte{}}
	for key, rows := range objects {
		data, err := buildParquet(rows)
		if err != nil {
			t.Fatalf("buildParquet() error = %v", err)
		}
		store.objects[key] = data
	}
	tables, err := ParseTables(definition)
	if err != nil {
		t.Fatalf("ParseTables() error = %v", err)
	}
	eng, err := New(store, tables, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return eng
}

func newTestRunner(t *testing.T, eng engine.Engine, rowLimit int) *engine.Runner {
	t.Helper()
	runner, err := engine.NewRunner(eng, rowLimit, nil)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	runner.PollInterval = 5 * time.Millisecond
	return runner
}

func waitForState(t *testing.T, eng *Engine, id string, want engine.State) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status, err := eng.QueryStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("QueryStatus() error = %v", err)
		}
		if status.State == want {
			return
		}
		if status.State.Terminal() {
			t.Fatalf("state = %s (%s), want %s", status.State, status.Reason, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s did not reach %s", id, want)
}

func buildParquet(rows []trip) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[trip](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Delete(context.Context, string) error {
	return nil
}
