package collab

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/issue-calendar/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Token: "test-token"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestLookupIssueByNumber(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/issues/1042", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{
			"success": true,
			"data": map[string]any{
				"id":           1042,
				"subject":      "Printer offline",
				"author_name":  "Kim",
				"status_name":  "New",
				"created_on":   "2024-05-08T09:12:00Z",
				"updated_on":   "2024-05-09",
				"description":  "### 문제\nno paper",
				"is_closed":    false,
				"tracker_name": "Support",
				"product":      "P-100",
			},
		})
	})

	issue, err := client.LookupIssueByNumber(context.Background(), "1042")
	require.NoError(t, err)
	assert.Equal(t, int64(1042), issue.ID)
	assert.Equal(t, "Printer offline", issue.Subject)
	assert.Equal(t, "2024-05-08", issue.CreatedAt.Format(model.DateLayout))
	assert.Equal(t, "Support", issue.TrackerName)
}

func TestLookupIssueByNumberErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		wantErr error
	}{
		{
			name:    "null data",
			status:  http.StatusOK,
			body:    map[string]any{"success": true, "data": nil},
			wantErr: ErrNotFound,
		},
		{
			name:    "unsuccessful",
			status:  http.StatusOK,
			body:    map[string]any{"success": false, "message": "no such ticket"},
			wantErr: ErrUnsuccessful,
		},
		{
			name:    "malformed issue",
			status:  http.StatusOK,
			body:    map[string]any{"success": true, "data": map[string]any{"id": 0, "created_on": "2024-05-08"}},
			wantErr: model.ErrMalformedIssue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				writeJSON(w, tt.body)
			})
			_, err := client.LookupIssueByNumber(context.Background(), "7")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestLookupIssueByNumberServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.LookupIssueByNumber(context.Background(), "7")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestUnsuccessfulMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": false, "message": "worker unknown"})
	})

	_, err := client.LookupIssuesByWorker(context.Background(), "Kim", 1)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "worker unknown", remote.Message)
}

func TestLookupIssuesByWorker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/issues", r.URL.Path)
		assert.Equal(t, "김 대리", r.URL.Query().Get("worker"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		writeJSON(w, map[string]any{
			"success":     true,
			"searchRange": "2024-05-01 ~ 2024-05-31",
			"data": []any{
				map[string]any{"id": 1, "subject": "a", "created_on": "2024-05-06"},
				map[string]any{"id": 2, "subject": "missing date"},
				map[string]any{"id": 3, "subject": "c", "created_on": "2024-05-07 10:00:00"},
			},
		})
	})

	page, err := client.LookupIssuesByWorker(context.Background(), "김 대리", 2)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01 ~ 2024-05-31", page.SearchRange)
	require.Len(t, page.Issues, 2)
	assert.Equal(t, int64(1), page.Issues[0].ID)
	assert.Equal(t, int64(3), page.Issues[1].ID)
}

func TestLookupIssuesByWorkerEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true, "data": []any{}, "searchRange": "x"})
	})

	page, err := client.LookupIssuesByWorker(context.Background(), "Kim", 9)
	require.NoError(t, err)
	assert.NotNil(t, page.Issues)
	assert.Empty(t, page.Issues)
}

func TestFilterLookups(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/sites":
			writeJSON(w, map[string]any{"success": true, "data": []any{
				map[string]any{"index": 0, "name": "Seoul"},
				map[string]any{"index": 1, "name": "Busan"},
			}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/sites/1/subsites":
			writeJSON(w, map[string]any{"success": true, "data": []any{map[string]any{"name": "Haeundae"}}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/subsites/Haeundae/products":
			writeJSON(w, map[string]any{"success": true, "data": []any{map[string]any{"name": "Kiosk"}}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/products":
			var body struct {
				SubSites []string `json:"subsites"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"A", "B"}, body.SubSites)
			writeJSON(w, map[string]any{"success": true, "data": nil})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	sites, err := client.Sites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.NamedItem{{Index: 0, Name: "Seoul"}, {Index: 1, Name: "Busan"}}, sites)

	subs, err := client.SubSites(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Haeundae", subs[0].Name)

	products, err := client.Products(ctx, "Haeundae")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Kiosk", products[0].Name)

	products, err = client.ProductsForSubSites(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Empty(t, products)
}
