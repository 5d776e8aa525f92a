package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/asklake/asklake/internal/engine"
	"github.com/asklake/asklake/internal/generator"
)

const (
	DefaultSummaryMaxTokens = 150
	PreviewRows             = 30
)

type Summarizer struct {
	Generator Generator
	MaxTokens int
}

func NewSummarizer(gen Generator) (*Summarizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	return &Summarizer{Generator: gen, MaxTokens: DefaultSummaryMaxTokens}, nil
}

func (s *Summarizer) Summarize(ctx context.Context, question string, result engine.ResultSet) (string, error) {
	maxTokens := s.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultSummaryMaxTokens
	}
	preview, shown := previewTSV(result, PreviewRows)
	prompt := fmt.Sprintf("Question: %s\n\nFirst %d result rows (TSV):\n%s\n\nWrite a concise insight summary. Avoid speculation.",
		strings.TrimSpace(question), shown, preview)

	resp, err := s.Generator.InvokeWithRetry(ctx, generator.Request{
		System:    summarySystemPrompt,
		Messages:  []generator.Message{generator.UserText(prompt)},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// previewTSV renders the header and up to limit rows; nil cells are empty.
func previewTSV(result engine.ResultSet, limit int) (string, int) {
	shown := min(limit, len(result.Rows))
	lines := make([]string, 0, shown+1)
	lines = append(lines, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows[:shown] {
		cells := make([]string, len(row))
		for i, cell := range row {
			if cell != nil {
				cells[i] = *cell
			}
		}
		lines = append(lines, strings.Join(cells, "\t"))
	}
	return strings.Join(lines, "\n"), shown
}
