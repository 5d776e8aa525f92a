package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/asklake/asklake/internal/ask"
	"github.com/asklake/asklake/internal/engine"
	"github.com/asklake/asklake/internal/generator"
	"github.com/asklake/asklake/internal/guardrail"
)

type questionRequest struct {
	Question string `json:"question"`
	Q        string `json:"q"`
}

func (r questionRequest) text() string {
	if question := strings.TrimSpace(r.Question); question != "" {
		return question
	}
	return strings.TrimSpace(r.Q)
}

type askResponse struct {
	AnswerID    string         `json:"answer_id"`
	Question    string         `json:"question"`
	SQL         string         `json:"sql"`
	Columns     []string       `json:"columns"`
	Rows        [][]*string    `json:"rows"`
	RowCount    int            `json:"row_count"`
	Truncated   bool           `json:"truncated"`
	Narrative   string         `json:"narrative"`
	ExecutionID string         `json:"execution_id"`
	Model       string         `json:"model,omitempty"`
	Stats       map[string]any `json:"stats"`
}

type validateRequest struct {
	SQL string `json:"sql"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask pipeline is not configured", false, nil)
		return
	}
	question, ok := readQuestion(w, r)
	if !ok {
		return
	}

	answer, err := deps.Asker.Ask(r.Context(), question)
	if err != nil {
		writeAskError(r.Context(), w, err)
		return
	}

	columns := answer.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := answer.Rows
	if rows == nil {
		rows = [][]*string{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		AnswerID:    answer.ID,
		Question:    answer.Question,
		SQL:         answer.SQL,
		Columns:     columns,
		Rows:        rows,
		RowCount:    answer.RowCount,
		Truncated:   answer.Truncated,
		Narrative:   answer.Narrative,
		ExecutionID: answer.ExecutionID,
		Model:       answer.Model,
		Stats: map[string]any{
			"duration_ms": answer.Duration.Milliseconds(),
		},
	})
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask pipeline is not configured", false, nil)
		return
	}
	question, ok := readQuestion(w, r)
	if !ok {
		return
	}

	translation, err := deps.Asker.Translate(r.Context(), question)
	if err != nil {
		writeAskError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sql": translation.SQL, "model": translation.Model})
}

func handleValidate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask pipeline is not configured", false, nil)
		return
	}
	var request validateRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid validate request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	sql, err := deps.Asker.Validate(request.SQL)
	if err != nil {
		writeAskError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sql": sql})
}

func readQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var request questionRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return "", false
	}
	question := request.text()
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "missing 'question' field", false, nil)
		return "", false
	}
	return question, true
}

func writeAskError(ctx context.Context, w http.ResponseWriter, err error) {
	stage := string(ask.StageOf(err))
	var (
		rejected *guardrail.ValidationError
		failed   *engine.ExecutionFailedError
	)
	switch {
	case errors.Is(err, ask.ErrQuestionRequired):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
	case errors.As(err, &rejected):
		writeError(ctx, w, http.StatusUnprocessableEntity, "SQL_REJECTED", rejected.Error(), false, map[string]any{
			"kind":  string(rejected.Kind),
			"token": rejected.Token,
			"stage": stage,
		})
	case generator.IsThrottling(err):
		writeError(ctx, w, http.StatusTooManyRequests, "GENERATOR_THROTTLED", "text generator is throttling requests, retry later", true, map[string]any{
			"stage": stage,
		})
	case errors.As(err, &failed):
		writeError(ctx, w, http.StatusBadGateway, "QUERY_FAILED", failed.Error(), false, map[string]any{
			"state":        string(failed.State),
			"reason":       failed.Reason,
			"execution_id": failed.ExecutionID,
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", err.Error(), true, map[string]any{"stage": stage})
	case stage == string(ask.StageTranslate) || stage == string(ask.StageSummarize):
		writeError(ctx, w, http.StatusBadGateway, "GENERATOR_FAILED", err.Error(), false, map[string]any{"stage": stage})
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, map[string]any{"stage": stage})
	}
}
