// Package searchcache keeps per-page snapshots of a paginated worker
// search so that paging back never re-queries the issue API, and a new
// search never sees results of the previous one.
package searchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/opsboard/issue-calendar/internal/clock"
	"github.com/opsboard/issue-calendar/internal/model"
)

// MaxPages is the highest page number whose entry is persisted. Pages
// beyond it are held in memory until the next search.
const MaxPages = 50

const (
	keyCurrentPage    = "current_page"
	keySearchRange    = "search_range"
	keySearchWorker   = "search_worker"
	keyCacheTimestamp = "cache_timestamp"
	keyCurrentIssues  = "current_issues"
	keySearchMode     = "search_mode"

	searchModeWorker = "worker"
)

var sessionKeys = []string{
	keyCurrentPage,
	keySearchRange,
	keySearchWorker,
	keyCacheTimestamp,
	keyCurrentIssues,
	keySearchMode,
}

var (
	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("page number must be at least 1")
	// ErrNoSearch is returned when paging before any search was issued.
	ErrNoSearch = errors.New("no search in progress")
)

// Entry is the cached result of one page of a search.
type Entry struct {
	Issues      []model.Issue `json:"issues"`
	SearchRange string        `json:"search_range"`
	Worker      string        `json:"worker"`
	Page        int           `json:"page"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Result is what a remote fetch returns for one page.
type Result struct {
	Issues      []model.Issue
	SearchRange string
}

// FetchFunc fetches one page of results for queryKey from the remote
// collaborator.
type FetchFunc func(ctx context.Context, queryKey string, page int) (Result, error)

// Cache serves search pages from Storage before calling a FetchFunc.
type Cache struct {
	storage Storage
	clock   clock.Clock
	logger  *slog.Logger

	mu       sync.Mutex
	queryKey string
	page     int
	overflow map[int]pageSlot
}

// pageSlot holds the entries of one page number by query key.
type pageSlot map[string]*Entry

// New creates a Cache over storage. Call Restore to resume a previous
// search held in durable storage.
func New(storage Storage, clk clock.Clock, logger *slog.Logger) *Cache {
	return &Cache{
		storage:  storage,
		clock:    clk,
		logger:   logger,
		page:     1,
		overflow: make(map[int]pageSlot),
	}
}

// Restore reloads the current query key and page from storage.
func (c *Cache) Restore(ctx context.Context) error {
	worker, ok, err := c.storage.Get(ctx, keySearchWorker)
	if err != nil {
		return fmt.Errorf("restore search worker: %w", err)
	}
	if !ok {
		return nil
	}
	page := 1
	if raw, ok, err := c.storage.Get(ctx, keyCurrentPage); err != nil {
		return fmt.Errorf("restore current page: %w", err)
	} else if ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
			page = n
		}
	}

	c.mu.Lock()
	c.queryKey = worker
	c.page = page
	c.mu.Unlock()
	return nil
}

// QueryKey returns the key of the current search, or "" if none.
func (c *Cache) QueryKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryKey
}

// CurrentPage returns the current page pointer.
func (c *Cache) CurrentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// NewSearch purges every page entry and the session keys of the previous
// search, then makes queryKey current at page 1.
func (c *Cache) NewSearch(ctx context.Context, queryKey string) error {
	keys := make([]string, 0, len(sessionKeys)+MaxPages)
	keys = append(keys, sessionKeys...)
	for p := 1; p <= MaxPages; p++ {
		keys = append(keys, pageKey(p))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.storage.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("purge search cache: %w", err)
	}
	if err := c.storage.Set(ctx, keySearchWorker, queryKey); err != nil {
		return fmt.Errorf("store search worker: %w", err)
	}
	if err := c.storage.Set(ctx, keySearchMode, searchModeWorker); err != nil {
		return fmt.Errorf("store search mode: %w", err)
	}
	if err := c.storage.Set(ctx, keyCurrentPage, "1"); err != nil {
		return fmt.Errorf("store current page: %w", err)
	}
	c.logger.Debug("new search", "worker", queryKey, "previous", c.queryKey)
	clear(c.overflow)
	c.queryKey = queryKey
	c.page = 1
	return nil
}

// Search fetches page 1 of queryKey and only then replaces the current
// search with it. A failed fetch leaves the previous search intact.
func (c *Cache) Search(ctx context.Context, queryKey string, fetch FetchFunc) (*Entry, error) {
	res, err := fetch(ctx, queryKey, 1)
	if err != nil {
		return nil, err
	}
	entry := c.newEntry(queryKey, 1, res)

	if err := c.NewSearch(ctx, queryKey); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.storeLocked(ctx, entry); err != nil {
		return nil, err
	}
	if c.queryKey != queryKey {
		return entry, nil
	}
	if err := c.persistCurrent(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// FetchPage returns the entry for (queryKey, page), calling fetch only on
// a cache miss. A failed fetch leaves the cache unchanged.
func (c *Cache) FetchPage(ctx context.Context, queryKey string, page int, fetch FetchFunc) (*Entry, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}

	c.mu.Lock()
	entry, ok := c.lookupLocked(ctx, queryKey, page)
	c.mu.Unlock()
	if ok {
		return entry, nil
	}

	res, err := fetch(ctx, queryKey, page)
	if err != nil {
		return nil, err
	}
	entry = c.newEntry(queryKey, page, res)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.storeLocked(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *Cache) newEntry(queryKey string, page int, res Result) *Entry {
	entry := &Entry{
		Issues:      res.Issues,
		SearchRange: res.SearchRange,
		Worker:      queryKey,
		Page:        page,
		Timestamp:   c.clock.Now().UTC(),
	}
	if entry.Issues == nil {
		entry.Issues = []model.Issue{}
	}
	return entry
}

// Current returns the entry of the current page of the current search.
func (c *Cache) Current(ctx context.Context, fetch FetchFunc) (*Entry, error) {
	return c.goTo(ctx, 0, fetch)
}

// Next advances to the following page. There is no upper bound; a page
// past the end of the data is simply empty.
func (c *Cache) Next(ctx context.Context, fetch FetchFunc) (*Entry, error) {
	return c.goTo(ctx, 1, fetch)
}

// Prev moves back one page. Moving below page 1 returns ErrInvalidPage.
func (c *Cache) Prev(ctx context.Context, fetch FetchFunc) (*Entry, error) {
	return c.goTo(ctx, -1, fetch)
}

// goTo moves the page pointer by delta once the target page is
// available; on any error the pointer stays where it was.
func (c *Cache) goTo(ctx context.Context, delta int, fetch FetchFunc) (*Entry, error) {
	c.mu.Lock()
	queryKey, target := c.queryKey, c.page+delta
	c.mu.Unlock()

	if queryKey == "" {
		return nil, ErrNoSearch
	}
	if target < 1 {
		return nil, ErrInvalidPage
	}

	entry, err := c.FetchPage(ctx, queryKey, target, fetch)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queryKey != queryKey {
		// A new search replaced this one while the page was loading.
		return entry, nil
	}
	if err := c.persistCurrent(ctx, entry); err != nil {
		return nil, err
	}
	c.page = target
	return entry, nil
}

func (c *Cache) persistCurrent(ctx context.Context, entry *Entry) error {
	issues, err := json.Marshal(entry.Issues)
	if err != nil {
		return fmt.Errorf("encode current issues: %w", err)
	}
	values := [][2]string{
		{keyCurrentPage, strconv.Itoa(entry.Page)},
		{keySearchRange, entry.SearchRange},
		{keyCacheTimestamp, entry.Timestamp.Format(time.RFC3339)},
		{keyCurrentIssues, string(issues)},
	}
	for _, kv := range values {
		if err := c.storage.Set(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("store %s: %w", kv[0], err)
		}
	}
	return nil
}

func (c *Cache) lookupLocked(ctx context.Context, queryKey string, page int) (*Entry, bool) {
	slot, err := c.slotLocked(ctx, page)
	if err != nil {
		c.logger.Warn("read cached page", "page", page, "error", err)
		return nil, false
	}
	entry, ok := slot[queryKey]
	return entry, ok
}

func (c *Cache) storeLocked(ctx context.Context, entry *Entry) error {
	slot, err := c.slotLocked(ctx, entry.Page)
	if err != nil {
		c.logger.Warn("discarding unreadable cached page", "page", entry.Page, "error", err)
		slot = nil
	}
	if slot == nil {
		slot = make(pageSlot)
	}
	slot[entry.Worker] = entry

	if entry.Page > MaxPages {
		c.overflow[entry.Page] = slot
		return nil
	}
	data, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("encode page %d: %w", entry.Page, err)
	}
	if err := c.storage.Set(ctx, pageKey(entry.Page), string(data)); err != nil {
		return fmt.Errorf("store page %d: %w", entry.Page, err)
	}
	return nil
}

func (c *Cache) slotLocked(ctx context.Context, page int) (pageSlot, error) {
	if page > MaxPages {
		return c.overflow[page], nil
	}
	raw, ok, err := c.storage.Get(ctx, pageKey(page))
	if err != nil || !ok {
		return nil, err
	}
	var slot pageSlot
	if err := json.Unmarshal([]byte(raw), &slot); err != nil {
		return nil, err
	}
	return slot, nil
}

func pageKey(page int) string {
	return "page_" + strconv.Itoa(page)
}
