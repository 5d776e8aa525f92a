// Package archive writes answered questions to the object store as a JSON
// document plus a parquet file of result cells.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/asklake/asklake/internal/storage"
)

type Record struct {
	ID          string
	Question    string
	SQL         string
	Columns     []string
	Rows        [][]*string
	Truncated   bool
	Narrative   string
	ExecutionID string
	Model       string
	Duration    time.Duration
	CreatedAt   time.Time
}

type Keys struct {
	Document string `json:"document"`
	Cells    string `json:"cells"`
}

// Cell is one result value in long form.
type Cell struct {
	Row    int64   `parquet:"row"`
	Column int32   `parquet:"column"`
	Name   string  `parquet:"name"`
	Value  *string `parquet:"value,optional"`
	IsNull bool    `parquet:"is_null"`
}

type document struct {
	ID          string    `json:"id"`
	Question    string    `json:"question"`
	SQL         string    `json:"sql"`
	Columns     []string  `json:"columns"`
	RowCount    int       `json:"row_count"`
	Truncated   bool      `json:"truncated"`
	Narrative   string    `json:"narrative"`
	ExecutionID string    `json:"execution_id,omitempty"`
	Model       string    `json:"model,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
	CellsKey    string    `json:"cells_key"`
}

type Archiver struct {
	store storage.ObjectStore
	now   func() time.Time
}

func New(store storage.ObjectStore) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Archiver{store: store, now: time.Now}, nil
}

func (a *Archiver) Archive(ctx context.Context, record Record) (Keys, error) {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = a.now()
	}

	var keys Keys
	var err error
	if keys.Document, err = storage.BuildAnswerKey(record.ID, createdAt, "json"); err != nil {
		return Keys{}, err
	}
	if keys.Cells, err = storage.BuildAnswerKey(record.ID, createdAt, "parquet"); err != nil {
		return Keys{}, err
	}

	cells, err := EncodeCells(record.Columns, record.Rows)
	if err != nil {
		return Keys{}, err
	}
	if _, err := a.store.Put(ctx, keys.Cells, bytes.NewReader(cells), int64(len(cells)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"}); err != nil {
		return Keys{}, fmt.Errorf("archive cells: %w", err)
	}

	body, err := json.Marshal(document{
		ID:          record.ID,
		Question:    record.Question,
		SQL:         record.SQL,
		Columns:     record.Columns,
		RowCount:    len(record.Rows),
		Truncated:   record.Truncated,
		Narrative:   record.Narrative,
		ExecutionID: record.ExecutionID,
		Model:       record.Model,
		DurationMS:  record.Duration.Milliseconds(),
		CreatedAt:   createdAt.UTC(),
		CellsKey:    keys.Cells,
	})
	if err != nil {
		return Keys{}, fmt.Errorf("encode answer document: %w", err)
	}
	if _, err := a.store.Put(ctx, keys.Document, bytes.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		return Keys{}, fmt.Errorf("archive document: %w", err)
	}
	return keys, nil
}

// EncodeCells renders rows as a parquet file of Cell records.
func EncodeCells(columns []string, rows [][]*string) ([]byte, error) {
	cells := make([]Cell, 0, len(rows)*len(columns))
	for r, row := range rows {
		for c, name := range columns {
			cell := Cell{Row: int64(r), Column: int32(c), Name: name, IsNull: true}
			if c < len(row) && row[c] != nil {
				value := *row[c]
				cell.Value = &value
				cell.IsNull = false
			}
			cells = append(cells, cell)
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Cell](buf)
	if _, err := writer.Write(cells); err != nil {
		return nil, fmt.Errorf("write cells: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close cells writer: %w", err)
	}
	return buf.Bytes(), nil
}
