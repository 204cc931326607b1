package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/services"
)

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	router := NewRouter(nil, newFakeService(), metrics)

	rec := serve(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health.Ready)

	rec = serve(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestHTTPListSuggestions(t *testing.T) {
	router := NewRouter(nil, newFakeService(), nil)

	rec := serve(t, router, http.MethodGet, "/api/v1/suggestions?min_confidence=0.6", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListSuggestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "s1", resp.Suggestions[0].ID)

	rec = serve(t, router, http.MethodGet, "/api/v1/suggestions?min_confidence=2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(t, router, http.MethodGet, "/api/v1/suggestions?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPFeedback(t *testing.T) {
	svc := newFakeService()
	router := NewRouter(nil, svc, nil)

	rec := serve(t, router, http.MethodPost, "/api/v1/feedback", `{"suggestion_id":"s1","accepted":false,"text":"not for me"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "not for me", svc.lastFeedback.Text)

	rec = serve(t, router, http.MethodPost, "/api/v1/feedback", `{"suggestion_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, router, http.MethodPost, "/api/v1/feedback", `{"suggestion_id":"s1","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.feedbackErr = services.ErrUnknownSuggestion
	rec = serve(t, router, http.MethodPost, "/api/v1/feedback", `{"suggestion_id":"gone"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, router, http.MethodGet, "/api/v1/feedback", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPAnalyzeAndPatterns(t *testing.T) {
	svc := newFakeService()
	router := NewRouter(nil, svc, nil)

	rec := serve(t, router, http.MethodPost, "/api/v1/analyze", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, router, http.MethodPost, "/api/v1/analyze", `{"min_confidence":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.patternsErr = services.ErrNoAnalysis
	rec = serve(t, router, http.MethodGet, "/api/v1/patterns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"patterns":[]}`, rec.Body.String())

	svc.patternsErr = nil
	svc.patterns = []models.Pattern{{ID: "p1", Type: models.PatternTimeOfDay}}
	rec = serve(t, router, http.MethodGet, "/api/v1/patterns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"p1"`)
}

func TestHTTPServerRecoversAndLogs(t *testing.T) {
	router := NewRouter(nil, newFakeService(), nil)
	router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	var access bytes.Buffer
	srv := NewHTTPServer(":0", router, nil, &access)

	rec := serve(t, srv.Handler, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, srv.Handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, access.String(), "GET /healthz")
}
