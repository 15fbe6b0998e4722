package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opsboard/issue-calendar/internal/model"
)

// SessionReport talks to a running server about one session's report.
type SessionReport struct {
	Server  string
	Session string
	Client  *http.Client
}

func (r SessionReport) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (r SessionReport) url(suffix string) string {
	return strings.TrimRight(r.Server, "/") + "/api/v1/sessions/" + r.Session + suffix
}

// Fetch copies the session's YAML report to out.
func (r SessionReport) Fetch(out io.Writer) error {
	resp, err := r.client().Get(r.url("/report"))
	if err != nil {
		return fmt.Errorf("GET report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

// Export asks the server to upload the session's report.
func (r SessionReport) Export() (*model.ReportExport, error) {
	resp, err := r.client().Post(r.url("/report/export"), "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("POST report export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, serverError(resp)
	}
	var rec model.ReportExport
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &rec, nil
}

func serverError(resp *http.Response) error {
	var result map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&result)
	return fmt.Errorf("server returned %d: %v", resp.StatusCode, result["error"])
}
