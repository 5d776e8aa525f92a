package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/asklake/asklake/internal/history"
)

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "query history is not configured", false, nil)
		return
	}

	limit := history.DefaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = history.ClampLimit(parsed)
	}

	entries, err := deps.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_UNAVAILABLE", err.Error(), true, nil)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"id":            entry.ID,
			"question":      entry.Question,
			"sql":           entry.SQL,
			"status":        string(entry.Status),
			"error_kind":    entry.ErrorKind,
			"error_message": entry.ErrorMessage,
			"execution_id":  entry.ExecutionID,
			"row_count":     entry.RowCount,
			"truncated":     entry.Truncated,
			"duration_ms":   entry.Duration.Milliseconds(),
			"created_at":    entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": items, "limit": limit})
}
