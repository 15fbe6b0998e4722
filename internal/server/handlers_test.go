package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/issue-calendar/internal/clock"
	"github.com/opsboard/issue-calendar/internal/collab"
	"github.com/opsboard/issue-calendar/internal/db"
	"github.com/opsboard/issue-calendar/internal/model"
	"github.com/opsboard/issue-calendar/internal/report"
	"github.com/opsboard/issue-calendar/internal/searchcache"
	"github.com/opsboard/issue-calendar/internal/session"
)

// issueAPI is a stand-in for the upstream issue service.
func issueAPI(t *testing.T, fail bool) *httptest.Server {
	t.Helper()
	issue := func(id int, created, desc string) map[string]any {
		return map[string]any{"id": id, "subject": "issue", "created_on": created, "description": desc, "tracker_name": "Support"}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"success":false}`)
			return
		}
		switch {
		case r.URL.Path == "/api/issues/1042":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": issue(1042, "2024-05-08", "### 문제\nno toner")})
		case strings.HasPrefix(r.URL.Path, "/api/issues/"):
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": nil})
		case r.URL.Path == "/api/issues":
			var data []any
			if r.URL.Query().Get("page") == "1" {
				data = []any{issue(1, "2024-05-06", "plain text"), issue(2, "2024-05-07", "")}
			}
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data, "searchRange": "2024-05-01~2024-05-31"})
		case r.URL.Path == "/api/sites":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": []any{map[string]any{"index": 0, "name": "Seoul"}}})
		case r.URL.Path == "/api/products":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": []any{map[string]any{"name": "Kiosk"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeExporter struct{}

func (fakeExporter) Export(_ context.Context, sessionID string, rep *report.Report) (*model.ReportExport, error) {
	return &model.ReportExport{ID: 1, SessionID: sessionID, ObjectKey: "reports/x.yaml.zst", IssueCount: rep.Totals.Issues}, nil
}

type testEnv struct {
	srv *Server
	db  *db.DB
}

func setupTestServer(t *testing.T, failUpstream bool, exporter session.Exporter) *testEnv {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := collab.New(collab.Config{BaseURL: issueAPI(t, failUpstream).URL}, logger)
	clk := clock.Fake(time.Date(2024, 5, 8, 9, 0, 0, 0, time.UTC))
	storage := func(id string) searchcache.Storage { return database.SessionStorage(id) }

	srv := New(Config{
		Addr:     ":0",
		DB:       database,
		Sessions: session.NewRegistry(database, storage, api, clk, logger),
		Filters:  api,
		Exporter: exporter,
	}, logger)
	return &testEnv{srv: srv, db: database}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t, false, nil)
	w := env.do(t, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, w)["status"])
}

func TestUnknownSession(t *testing.T) {
	env := setupTestServer(t, false, nil)
	w := env.do(t, "GET", "/api/v1/sessions/nope/calendar", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLookupEndpoint(t *testing.T) {
	env := setupTestServer(t, false, nil)
	id := env.newSession(t)
	base := "/api/v1/sessions/" + id

	w := env.do(t, "POST", base+"/lookup", `{"number":"1042"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[struct {
		Issue  map[string]any `json:"issue"`
		Window map[string]any `json:"window"`
	}](t, w)
	assert.Equal(t, float64(1042), res.Issue["id"])
	assert.Equal(t, "2024-05-06", res.Window["start"])

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"duplicate", `{"number":"1042"}`, http.StatusConflict},
		{"empty", `{"number":"  "}`, http.StatusBadRequest},
		{"not numeric", `{"number":"abc"}`, http.StatusBadRequest},
		{"unknown field", `{"num":"1"}`, http.StatusBadRequest},
		{"not found", `{"number":"77"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", base+"/lookup", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w = env.do(t, "GET", base+"/assignments/1042/description", "")
	require.Equal(t, http.StatusOK, w.Code)
	desc := decode[map[string]any](t, w)
	assert.Equal(t, "no toner", desc["problem"])
	assert.Equal(t, true, desc["has_structured_content"])
}

func TestSearchAndAssign(t *testing.T) {
	env := setupTestServer(t, false, nil)
	id := env.newSession(t)
	base := "/api/v1/sessions/" + id

	w := env.do(t, "GET", base+"/search", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "POST", base+"/search", `{"worker":"Kim"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[pageResponse](t, w)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, "Kim", page.Worker)
	assert.Len(t, page.Issues, 2)
	assert.Equal(t, "2024-05-01~2024-05-31", page.SearchRange)

	w = env.do(t, "POST", base+"/search/next", "")
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[pageResponse](t, w)
	assert.Equal(t, 2, page.Page)
	assert.NotNil(t, page.Issues)
	assert.Empty(t, page.Issues)

	w = env.do(t, "POST", base+"/search/prev", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "POST", base+"/search/prev", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", base+"/search/preview/2", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", base+"/assignments", `{"ids":[1]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["added"])

	w = env.do(t, "POST", base+"/assignments", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["added"])

	w = env.do(t, "GET", base+"/assignments/1/description", "")
	require.Equal(t, http.StatusOK, w.Code)
	desc := decode[map[string]any](t, w)
	assert.Equal(t, false, desc["has_structured_content"])
	assert.Contains(t, desc["html"], "<p>plain text</p>")

	w = env.do(t, "DELETE", base+"/assignments/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["removed"])

	w = env.do(t, "GET", base+"/calendar", "")
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[struct {
		Issues []map[string]any `json:"issues"`
		Weeks  []any            `json:"weeks"`
	}](t, w)
	assert.Len(t, view.Issues, 1)
	assert.Len(t, view.Weeks, 1)
}

func TestTransferEndpoint(t *testing.T) {
	env := setupTestServer(t, false, nil)
	base := "/api/v1/sessions/" + env.newSession(t)

	payload := `{"origin":"sideways","issue":{"id":5,"subject":"x","created_on":"2024-05-20"}}`
	w := env.do(t, "POST", base+"/transfer", payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "POST", base+"/transfer", payload)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", base+"/transfer", `{"origin":"calendar","issue":{"id":5,"created_on":"2024-05-20"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", base+"/transfer", `{"origin":"search","issue":{"id":0}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, "POST", base+"/transfer", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpstreamFailure(t *testing.T) {
	env := setupTestServer(t, true, nil)
	base := "/api/v1/sessions/" + env.newSession(t)

	w := env.do(t, "POST", base+"/lookup", `{"number":"1042"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "issue service unavailable", decode[map[string]string](t, w)["error"])

	w = env.do(t, "POST", base+"/search", `{"worker":"Kim"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = env.do(t, "GET", "/api/v1/filters/sites", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestReportEndpoints(t *testing.T) {
	env := setupTestServer(t, false, nil)
	base := "/api/v1/sessions/" + env.newSession(t)
	require.Equal(t, http.StatusOK, env.do(t, "POST", base+"/lookup", `{"number":"1042"}`).Code)

	w := env.do(t, "GET", base+"/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "problem: no toner")

	w = env.do(t, "POST", base+"/report/export", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w = env.do(t, "GET", "/api/v1/reports", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	w = env.do(t, "GET", "/api/v1/reports/3", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportExportEndpoint(t *testing.T) {
	env := setupTestServer(t, false, fakeExporter{})
	id := env.newSession(t)

	w := env.do(t, "POST", "/api/v1/sessions/"+id+"/report/export", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[model.ReportExport](t, w)
	assert.Equal(t, id, rec.SessionID)
}

func TestFilterEndpoints(t *testing.T) {
	env := setupTestServer(t, false, nil)

	w := env.do(t, "GET", "/api/v1/filters/sites", "")
	require.Equal(t, http.StatusOK, w.Code)
	sites := decode[[]model.NamedItem](t, w)
	assert.Equal(t, []model.NamedItem{{Index: 0, Name: "Seoul"}}, sites)

	w = env.do(t, "POST", "/api/v1/filters/products", `{"subsites":["Gangnam"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.NamedItem](t, w), 1)

	w = env.do(t, "POST", "/api/v1/filters/products", `{"subsites":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/api/v1/filters/sites/x/subsites", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
