package nl2sql

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/asklake/asklake/internal/generator"
	"github.com/asklake/asklake/internal/guardrail"
)

func TestTranslateBuildsFewShotConversation(t *testing.T) {
	gen := &recordingGenerator{responses: []generator.Response{{Text: "```sql\nSELECT 1 FROM nyc_taxi.yellow_curated\n```", Model: "claude"}}}
	translator, err := NewTranslator(gen, "", 100)
	if err != nil {
		t.Fatalf("NewTranslator() error = %v", err)
	}

	got, err := translator.Translate(context.Background(), "  How many trips?  ")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got.SQL != "SELECT 1 FROM nyc_taxi.yellow_curated" || got.Model != "claude" {
		t.Fatalf("Translate() = %+v", got)
	}

	req := gen.requests[0]
	if req.MaxTokens != 300 {
		t.Fatalf("MaxTokens = %d", req.MaxTokens)
	}
	if !strings.Contains(req.System, "default 100") {
		t.Fatalf("system prompt missing row limit: %q", req.System)
	}
	if len(req.Messages) != 5 {
		t.Fatalf("messages = %d, want 5", len(req.Messages))
	}
	roles := []generator.Role{generator.RoleUser, generator.RoleAssistant, generator.RoleUser, generator.RoleAssistant, generator.RoleUser}
	for i, role := range roles {
		if req.Messages[i].Role != role {
			t.Fatalf("message %d role = %q, want %q", i, req.Messages[i].Role, role)
		}
	}
	last := req.Messages[4].Text
	if !strings.Contains(last, "User question:\nHow many trips?") || !strings.Contains(last, "nyc_taxi.taxi_zone_lookup") {
		t.Fatalf("question prompt = %q", last)
	}
}

func TestTranslateReturnsErrEmptySQL(t *testing.T) {
	gen := &recordingGenerator{responses: []generator.Response{{Text: " ``` ``` "}}}
	translator, _ := NewTranslator(gen, "", 100)
	if _, err := translator.Translate(context.Background(), "q"); !errors.Is(err, ErrEmptySQL) {
		t.Fatalf("Translate() error = %v, want ErrEmptySQL", err)
	}
}

func TestTranslatePreservesThrottlingError(t *testing.T) {
	gen := &recordingGenerator{err: &generator.ThrottlingError{Code: "ThrottlingException"}}
	translator, _ := NewTranslator(gen, "", 100)
	_, err := translator.Translate(context.Background(), "q")
	if !generator.IsThrottling(err) {
		t.Fatalf("Translate() error = %v, want throttling", err)
	}
}

func TestFewShotsPassGuardrail(t *testing.T) {
	policy, err := guardrail.New(guardrail.Policy{AllowedSchemas: []string{"nyc_taxi"}, RowLimit: 100})
	if err != nil {
		t.Fatalf("guardrail.New() error = %v", err)
	}
	for _, shot := range fewShots {
		if _, err := policy.Validate(shot.SQL); err != nil {
			t.Fatalf("few-shot %q rejected: %v", shot.Question, err)
		}
	}
}

func TestStripMarkdownSQL(t *testing.T) {
	tests := map[string]string{
		"```sql\nSELECT 1;\n```": "SELECT 1;",
		"```\nSELECT 2\n```":     "SELECT 2",
		"`SELECT 3`":             "SELECT 3",
		"  SELECT 4  ":           "SELECT 4",
	}
	for input, want := range tests {
		if got := stripMarkdownSQL(input); got != want {
			t.Fatalf("stripMarkdownSQL(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestLoadSchema(t *testing.T) {
	schema, err := LoadSchema("")
	if err != nil || schema != DefaultSchema {
		t.Fatalf("LoadSchema(\"\") = %q, %v", schema, err)
	}

	path := filepath.Join(t.TempDir(), "schema.txt")
	if err := os.WriteFile(path, []byte("\nTable sales.orders columns: id int\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	schema, err = LoadSchema(path)
	if err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	if schema != "Table sales.orders columns: id int" {
		t.Fatalf("LoadSchema() = %q", schema)
	}

	if _, err := LoadSchema(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing schema file")
	}
}

type recordingGenerator struct {
	responses []generator.Response
	err       error
	requests  []generator.Request
}

func (g *recordingGenerator) InvokeWithRetry(_ context.Context, req generator.Request) (generator.Response, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return generator.Response{}, g.err
	}
	if len(g.responses) == 0 {
		return generator.Response{}, errors.New("no scripted response")
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}
