package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func TestFileReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": 1, "subject": "Printer offline", "created_on": "2024-05-08", "description": "### 문제\npaper jam"},
		{"id": 2, "subject": "VPN", "created_on": "2024-05-14"}
	]`), 0o644))

	rep, err := FileReport{File: path, Now: now}.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06", rep.Start)
	assert.Equal(t, "2024-05-19", rep.End)
	assert.Len(t, rep.Weeks, 2)
	assert.Equal(t, 2, rep.Totals.Issues)

	var out bytes.Buffer
	require.NoError(t, FileReport{File: path, Now: now}.Write(nil, &out))
	assert.Contains(t, out.String(), "problem: paper jam")
}

func TestFileReportStdinEmpty(t *testing.T) {
	rep, err := FileReport{File: "-", Now: now}.Build(strings.NewReader("[]"))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06", rep.Start)
	assert.Equal(t, 0, rep.Totals.Issues)
}

func TestFileReportMissingFile(t *testing.T) {
	_, err := FileReport{File: filepath.Join(t.TempDir(), "nope.json"), Now: now}.Build(nil)
	assert.Error(t, err)
}

func TestSessionReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/sessions/abc/report":
			w.Header().Set("Content-Type", "application/yaml")
			w.Write([]byte("start: \"2024-05-06\"\n"))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sessions/abc/report/export":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": 4, "session_id": "abc", "object_key": "reports/2024-05-06/abc-1.yaml.zst"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "unknown session"}`))
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, SessionReport{Server: srv.URL + "/", Session: "abc"}.Fetch(&out))
	assert.Equal(t, "start: \"2024-05-06\"\n", out.String())

	rec, err := SessionReport{Server: srv.URL, Session: "abc"}.Export()
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.ID)
	assert.Equal(t, "reports/2024-05-06/abc-1.yaml.zst", rec.ObjectKey)

	err = SessionReport{Server: srv.URL, Session: "zzz"}.Fetch(&out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "unknown session")
}
