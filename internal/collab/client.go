// Package collab is a client for the issue API the dashboard reads
// tickets and filter lists from.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/opsboard/issue-calendar/internal/model"
)

// Config holds issue API connection settings.
type Config struct {
	BaseURL string        // e.g. https://support.example.com
	Token   string        // optional bearer token
	Timeout time.Duration // defaults to 30s
}

// Client is an issue API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	// ErrNotFound is returned when a lookup succeeds but yields no issue.
	ErrNotFound = errors.New("issue not found")
	// ErrUnsuccessful is returned when the API answers with success=false.
	ErrUnsuccessful = errors.New("issue API reported failure")
)

// APIError is a non-2xx response from the issue API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("issue API returned %d: %s", e.StatusCode, e.Body)
}

// RemoteError carries the message of a success=false envelope.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return ErrUnsuccessful.Error()
	}
	return ErrUnsuccessful.Error() + ": " + e.Message
}

func (e *RemoteError) Unwrap() error { return ErrUnsuccessful }

// New creates a new issue API client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Token,
			TokenType:   "Bearer",
		}))
		httpClient.Timeout = timeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type envelope struct {
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data"`
	SearchRange string          `json:"searchRange"`
	Message     string          `json:"message"`
}

// LookupIssueByNumber fetches a single issue by its ticket number.
func (c *Client) LookupIssueByNumber(ctx context.Context, number string) (*model.Issue, error) {
	reqURL := fmt.Sprintf("%s/api/issues/%s", c.baseURL, url.PathEscape(number))
	env, err := c.call(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup issue %s: %w", number, err)
	}
	if isNull(env.Data) {
		return nil, fmt.Errorf("lookup issue %s: %w", number, ErrNotFound)
	}

	var issue model.Issue
	if err := json.Unmarshal(env.Data, &issue); err != nil {
		c.logger.Warn("rejecting malformed issue payload", "number", number, "error", err)
		return nil, fmt.Errorf("decode issue %s: %w", number, err)
	}
	return &issue, nil
}

// WorkerPage is one page of a search by assignee.
type WorkerPage struct {
	Issues      []model.Issue
	SearchRange string
}

// LookupIssuesByWorker fetches one page of the issues assigned to worker.
// Entries that fail validation are logged and skipped.
func (c *Client) LookupIssuesByWorker(ctx context.Context, worker string, page int) (*WorkerPage, error) {
	params := url.Values{
		"worker": {worker},
		"page":   {strconv.Itoa(page)},
	}
	reqURL := fmt.Sprintf("%s/api/issues?%s", c.baseURL, params.Encode())
	env, err := c.call(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("search issues for %s page %d: %w", worker, page, err)
	}

	var raw []json.RawMessage
	if !isNull(env.Data) {
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}
	}

	out := &WorkerPage{Issues: make([]model.Issue, 0, len(raw)), SearchRange: env.SearchRange}
	for i, item := range raw {
		var issue model.Issue
		if err := json.Unmarshal(item, &issue); err != nil {
			c.logger.Warn("skipping malformed issue in search response", "worker", worker, "page", page, "index", i, "error", err)
			continue
		}
		out.Issues = append(out.Issues, issue)
	}
	return out, nil
}

// Sites returns the top-level site list.
func (c *Client) Sites(ctx context.Context) ([]model.NamedItem, error) {
	return c.namedList(ctx, http.MethodGet, c.baseURL+"/api/sites", nil)
}

// SubSites returns the sub-sites of the site at index.
func (c *Client) SubSites(ctx context.Context, siteIndex int) ([]model.NamedItem, error) {
	reqURL := fmt.Sprintf("%s/api/sites/%d/subsites", c.baseURL, siteIndex)
	return c.namedList(ctx, http.MethodGet, reqURL, nil)
}

// Products returns the products of one sub-site.
func (c *Client) Products(ctx context.Context, subSite string) ([]model.NamedItem, error) {
	reqURL := fmt.Sprintf("%s/api/subsites/%s/products", c.baseURL, url.PathEscape(subSite))
	return c.namedList(ctx, http.MethodGet, reqURL, nil)
}

// ProductsForSubSites returns the products of several sub-sites at once.
func (c *Client) ProductsForSubSites(ctx context.Context, subSites []string) ([]model.NamedItem, error) {
	body, err := json.Marshal(map[string][]string{"subsites": subSites})
	if err != nil {
		return nil, err
	}
	return c.namedList(ctx, http.MethodPost, c.baseURL+"/api/products", body)
}

func (c *Client) namedList(ctx context.Context, method, reqURL string, body []byte) ([]model.NamedItem, error) {
	env, err := c.call(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	items := []model.NamedItem{}
	if isNull(env.Data) {
		return items, nil
	}
	if err := json.Unmarshal(env.Data, &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return items, nil
}

func (c *Client) call(ctx context.Context, method, reqURL string, body []byte) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data[:min(len(data), 200)])}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return nil, &RemoteError{Message: env.Message}
	}
	return &env, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
