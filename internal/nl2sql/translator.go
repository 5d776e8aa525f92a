// Package nl2sql turns questions into SQL and query results into short
// narratives using a text generator.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/asklake/asklake/internal/generator"
)

const (
	DefaultSQLMaxTokens = 300
	DefaultDialect      = "Athena"
)

var ErrEmptySQL = errors.New("generator returned empty SQL")

// Generator is satisfied by *generator.Invoker.
type Generator interface {
	InvokeWithRetry(ctx context.Context, req generator.Request) (generator.Response, error)
}

type Translation struct {
	SQL   string `json:"sql"`
	Model string `json:"model"`
}

type Translator struct {
	Generator Generator
	Schema    string
	Dialect   string
	RowLimit  int
	MaxTokens int
}

func NewTranslator(gen Generator, schema string, rowLimit int) (*Translator, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if rowLimit <= 0 {
		return nil, fmt.Errorf("row limit must be positive, got %d", rowLimit)
	}
	if strings.TrimSpace(schema) == "" {
		schema = DefaultSchema
	}
	return &Translator{
		Generator: gen,
		Schema:    schema,
		Dialect:   DefaultDialect,
		RowLimit:  rowLimit,
		MaxTokens: DefaultSQLMaxTokens,
	}, nil
}

func (t *Translator) Translate(ctx context.Context, question string) (Translation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Translation{}, fmt.Errorf("question is required")
	}

	resp, err := t.Generator.InvokeWithRetry(ctx, t.buildRequest(question))
	if err != nil {
		return Translation{}, fmt.Errorf("generate sql: %w", err)
	}
	sql := stripMarkdownSQL(resp.Text)
	if sql == "" {
		return Translation{}, ErrEmptySQL
	}
	return Translation{SQL: sql, Model: resp.Model}, nil
}

func (t *Translator) buildRequest(question string) generator.Request {
	dialect := t.Dialect
	if dialect == "" {
		dialect = DefaultDialect
	}
	maxTokens := t.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultSQLMaxTokens
	}

	messages := make([]generator.Message, 0, len(fewShots)*2+1)
	for _, shot := range fewShots {
		messages = append(messages, generator.UserText(shot.Question), generator.AssistantText(shot.SQL))
	}
	messages = append(messages, generator.UserText(questionPrompt(dialect, t.Schema, question)))

	return generator.Request{
		System:    systemPrompt(dialect, t.RowLimit),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(trimmed), "`"))
}
