package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classrelay/internal/calllog"
)

type mockReader struct {
	summary  *calllog.Summary
	outcomes []calllog.OutcomeCount
	entries  []calllog.Entry
	err      error

	lastParams calllog.QueryParams
}

func (m *mockReader) GetSummary(_ context.Context, params calllog.QueryParams) (*calllog.Summary, error) {
	m.lastParams = params
	return m.summary, m.err
}

func (m *mockReader) GetOutcomes(_ context.Context, params calllog.QueryParams) ([]calllog.OutcomeCount, error) {
	m.lastParams = params
	return m.outcomes, m.err
}

func (m *mockReader) GetRecent(_ context.Context, params calllog.QueryParams) ([]calllog.Entry, error) {
	m.lastParams = params
	return m.entries, m.err
}

func serve(t *testing.T, h echo.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func TestSummary(t *testing.T) {
	reader := &mockReader{summary: &calllog.Summary{TotalCalls: 12, Uploads: 2, Failures: 1, AvgDurationMs: 35.5}}
	h := NewHandler(reader)

	rec := serve(t, h.Summary, "/admin/api/v1/calls/summary?days=7&kind=upload")
	require.Equal(t, http.StatusOK, rec.Code)

	var got calllog.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(12), got.TotalCalls)
	assert.Equal(t, 35.5, got.AvgDurationMs)

	assert.Equal(t, calllog.KindUpload, reader.lastParams.Kind)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -7), reader.lastParams.Since, time.Minute)
}

func TestSummary_DefaultWindow(t *testing.T) {
	reader := &mockReader{summary: &calllog.Summary{}}
	serve(t, NewHandler(reader).Summary, "/admin/api/v1/calls/summary")

	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -DefaultDays), reader.lastParams.Since, time.Minute)
	assert.Empty(t, reader.lastParams.Kind)
}

func TestOutcomes(t *testing.T) {
	reader := &mockReader{outcomes: []calllog.OutcomeCount{
		{Outcome: "success", Count: 9},
		{Outcome: "network_fault", Count: 1},
	}}

	rec := serve(t, NewHandler(reader).Outcomes, "/admin/api/v1/calls/outcomes?action=getClasses")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"outcome":"success","count":9},{"outcome":"network_fault","count":1}]`, rec.Body.String())
	assert.Equal(t, "getClasses", reader.lastParams.Action)
}

func TestRecent(t *testing.T) {
	reader := &mockReader{entries: []calllog.Entry{{ID: "e1", Kind: calllog.KindRelay, Outcome: "success"}}}

	rec := serve(t, NewHandler(reader).Recent, "/admin/api/v1/calls/recent?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []calllog.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, 5, reader.lastParams.Limit)
}

func TestNilReaderReturnsEmpty(t *testing.T) {
	h := NewHandler(nil)

	tests := []struct {
		name    string
		handler echo.HandlerFunc
		want    string
	}{
		{"summary", h.Summary, `{"total_calls":0,"uploads":0,"failures":0,"redirected":0,"avg_duration_ms":0,"total_chunks_sent":0}`},
		{"outcomes", h.Outcomes, `[]`},
		{"recent", h.Recent, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, tt.handler, "/")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestEmptyResultsAreArrays(t *testing.T) {
	h := NewHandler(&mockReader{})

	assert.JSONEq(t, `[]`, serve(t, h.Outcomes, "/").Body.String())
	assert.JSONEq(t, `[]`, serve(t, h.Recent, "/").Body.String())
}

func TestInvalidParams(t *testing.T) {
	tests := []struct {
		query   string
		message string
	}{
		{"days=0", "days must be a positive integer"},
		{"days=abc", "days must be a positive integer"},
		{"kind=batch", "kind must be relay or upload"},
		{"limit=-1", "limit must be a positive integer"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := serve(t, NewHandler(&mockReader{}).Recent, "/?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"status":"error","message":"`+tt.message+`"}`, rec.Body.String())
		})
	}
}

func TestReaderError(t *testing.T) {
	reader := &mockReader{err: errors.New("connection reset")}

	rec := serve(t, NewHandler(reader).Summary, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"an unexpected error occurred"}`, rec.Body.String())
}
