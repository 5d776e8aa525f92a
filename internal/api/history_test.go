package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asklake/asklake/internal/history"
)

func TestHistoryListsRecentEntries(t *testing.T) {
	reader := &fakeHistory{entries: []history.Entry{{
		ID:        "a-1",
		Question:  "q",
		Status:    history.StatusSucceeded,
		RowCount:  3,
		Duration:  900 * time.Millisecond,
		CreatedAt: time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
	}}}
	h := NewHandler(loadConfig(t), Dependencies{History: reader})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if reader.limit != 5 {
		t.Fatalf("limit = %d", reader.limit)
	}
	body := decodeBody(t, rr)
	entries := body["entries"].([]any)
	first := entries[0].(map[string]any)
	if first["id"] != "a-1" || first["status"] != "succeeded" || first["duration_ms"] != float64(900) {
		t.Fatalf("entry = %v", first)
	}
}

func TestHistoryLimitHandling(t *testing.T) {
	reader := &fakeHistory{}
	h := NewHandler(loadConfig(t), Dependencies{History: reader})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	if rr.Code != http.StatusOK || reader.limit != history.DefaultRecentLimit {
		t.Fatalf("status = %d limit = %d", rr.Code, reader.limit)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history?limit=99999", nil))
	if reader.limit != history.MaxRecentLimit {
		t.Fatalf("limit = %d, want clamp to %d", reader.limit, history.MaxRecentLimit)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history?limit=abc", nil))
	if rr.Code != http.StatusBadRequest || decodeBody(t, rr)["error_code"] != "INVALID_LIMIT" {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHistoryErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(loadConfig(t), Dependencies{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	NewHandler(loadConfig(t), Dependencies{History: &fakeHistory{err: errors.New("db down")}}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	if rr.Code != http.StatusInternalServerError || decodeBody(t, rr)["error_code"] != "HISTORY_UNAVAILABLE" {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

type fakeHistory struct {
	entries []history.Entry
	err     error
	limit   int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}
