package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/asklake/asklake/internal/storage"
)

func TestArchiveWritesDocumentAndCells(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
	archiver, err := New(store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	manhattan := "Manhattan"
	trips := "42"
	keys, err := archiver.Archive(context.Background(), Record{
		ID:          "a-1",
		Question:    "Trips by borough?",
		SQL:         "SELECT borough, trips FROM nyc_taxi.v LIMIT 100",
		Columns:     []string{"borough", "trips"},
		Rows:        [][]*string{{&manhattan, &trips}, {nil, &trips}},
		Truncated:   true,
		Narrative:   "Manhattan dominates.",
		ExecutionID: "qid-1",
		Duration:    1200 * time.Millisecond,
		CreatedAt:   time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if keys.Document != "answers/2026/03/04/a-1.json" || keys.Cells != "answers/2026/03/04/a-1.parquet" {
		t.Fatalf("keys = %+v", keys)
	}
	if store.types[keys.Document] != "application/json" {
		t.Fatalf("document content type = %q", store.types[keys.Document])
	}

	var doc map[string]any
	if err := json.Unmarshal(store.objects[keys.Document], &doc); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if doc["narrative"] != "Manhattan dominates." || doc["row_count"] != float64(2) || doc["truncated"] != true {
		t.Fatalf("document = %v", doc)
	}
	if doc["cells_key"] != keys.Cells || doc["duration_ms"] != float64(1200) {
		t.Fatalf("document = %v", doc)
	}

	data := store.objects[keys.Cells]
	cells, err := parquet.Read[Cell](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(cells) != 4 {
		t.Fatalf("cells = %d, want 4", len(cells))
	}
	if cells[0].Name != "borough" || cells[0].Value == nil || *cells[0].Value != "Manhattan" || cells[0].IsNull {
		t.Fatalf("cells[0] = %+v", cells[0])
	}
	if cells[2].Row != 1 || cells[2].Column != 0 || !cells[2].IsNull || cells[2].Value != nil {
		t.Fatalf("cells[2] = %+v", cells[2])
	}
}

func TestArchiveUsesClockWhenCreatedAtMissing(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
	archiver, _ := New(store)
	archiver.now = func() time.Time { return time.Date(2025, time.December, 31, 23, 0, 0, 0, time.UTC) }

	keys, err := archiver.Archive(context.Background(), Record{ID: "a-2"})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if keys.Document != "answers/2025/12/31/a-2.json" {
		t.Fatalf("Document = %q", keys.Document)
	}
}

func TestArchivePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("bucket unavailable")
	archiver, _ := New(&memoryStore{err: boom})
	if _, err := archiver.Archive(context.Background(), Record{ID: "a-3"}); !errors.Is(err, boom) {
		t.Fatalf("Archive() error = %v, want %v", err, boom)
	}
}

func TestArchiveRejectsInvalidID(t *testing.T) {
	archiver, _ := New(&memoryStore{})
	if _, err := archiver.Archive(context.Background(), Record{ID: "../escape"}); err == nil {
		t.Fatal("expected invalid id error")
	}
}

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if m.err != nil {
		return storage.ObjectInfo{}, m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	m.types[key] = opts.ContentType
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
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
