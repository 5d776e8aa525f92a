package asklakectl

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

const nullCell = "NULL"

type answerBody struct {
	AnswerID    string      `json:"answer_id"`
	SQL         string      `json:"sql"`
	Columns     []string    `json:"columns"`
	Rows        [][]*string `json:"rows"`
	RowCount    int         `json:"row_count"`
	Truncated   bool        `json:"truncated"`
	Narrative   string      `json:"narrative"`
	ExecutionID string      `json:"execution_id"`
	Stats       struct {
		DurationMS int64 `json:"duration_ms"`
	} `json:"stats"`
}

type historyBody struct {
	Entries []struct {
		ID         string    `json:"id"`
		Question   string    `json:"question"`
		Status     string    `json:"status"`
		ErrorKind  string    `json:"error_kind"`
		RowCount   int       `json:"row_count"`
		DurationMS int64     `json:"duration_ms"`
		CreatedAt  time.Time `json:"created_at"`
	} `json:"entries"`
}

func renderAnswer(w io.Writer, raw []byte) error {
	var body answerBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "SQL: %s\n\n", body.SQL)
	if len(body.Columns) > 0 {
		table := newTable(w)
		table.SetHeader(body.Columns)
		for _, row := range body.Rows {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = nullCell
				if cell != nil {
					cells[i] = *cell
				}
			}
			table.Append(cells)
		}
		table.Render()
	}

	suffix := ""
	if body.Truncated {
		suffix = " (truncated)"
	}
	_, _ = fmt.Fprintf(w, "\n%d rows%s in %s, execution %s\n", body.RowCount, suffix, time.Duration(body.Stats.DurationMS)*time.Millisecond, body.ExecutionID)
	if body.Narrative != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", body.Narrative)
	}
	return nil
}

func renderSQL(w io.Writer, raw []byte) error {
	var body struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, body.SQL)
	return nil
}

func renderHistory(w io.Writer, raw []byte) error {
	var body historyBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}

	table := newTable(w)
	table.SetHeader([]string{"Created", "Status", "Rows", "Duration", "Question", "Error"})
	for _, entry := range body.Entries {
		table.Append([]string{
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.Status,
			strconv.Itoa(entry.RowCount),
			(time.Duration(entry.DurationMS) * time.Millisecond).String(),
			entry.Question,
			entry.ErrorKind,
		})
	}
	table.Render()
	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	return table
}
