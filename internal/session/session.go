// Package session ties the calendar, the assignment set and the search
// cache of one browsing session to the issue API.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opsboard/issue-calendar/internal/assignment"
	"github.com/opsboard/issue-calendar/internal/calendar"
	"github.com/opsboard/issue-calendar/internal/clock"
	"github.com/opsboard/issue-calendar/internal/collab"
	"github.com/opsboard/issue-calendar/internal/description"
	"github.com/opsboard/issue-calendar/internal/model"
	"github.com/opsboard/issue-calendar/internal/report"
	"github.com/opsboard/issue-calendar/internal/searchcache"
)

// Affordance names a user action that may have at most one request in
// flight.
type Affordance string

const (
	NumberLookup Affordance = "number-lookup"
	WorkerSearch Affordance = "worker-search"
	ReportExport Affordance = "report-export"
)

var (
	// ErrBusy is returned when the same affordance already has a request
	// in flight.
	ErrBusy = errors.New("request already in progress")
	// ErrEmptyQuery is returned for blank search input.
	ErrEmptyQuery = errors.New("search query is empty")
	// ErrInvalidNumber is returned when an issue number is not a positive
	// integer.
	ErrInvalidNumber = errors.New("issue number must be a positive integer")
	// ErrNotFound is returned for issues that are neither on the calendar
	// nor in the current search results.
	ErrNotFound = errors.New("issue not found in session")
	// ErrExportDisabled is returned when no report exporter is configured.
	ErrExportDisabled = errors.New("report export is not configured")
)

// Remote is the part of the issue API a session calls.
type Remote interface {
	LookupIssueByNumber(ctx context.Context, number string) (*model.Issue, error)
	LookupIssuesByWorker(ctx context.Context, worker string, page int) (*collab.WorkerPage, error)
}

// Exporter uploads a finished report.
type Exporter interface {
	Export(ctx context.Context, sessionID string, rep *report.Report) (*model.ReportExport, error)
}

// Session is one logical browsing session. All state changes happen
// under mu; remote calls are made without holding it.
type Session struct {
	id     string
	remote Remote
	cache  *searchcache.Cache
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	store    *assignment.Store
	results  *searchcache.Entry
	loading  map[Affordance]bool
	lastSeen time.Time
}

// New creates a session whose calendar starts on the week containing
// today.
func New(id string, remote Remote, storage searchcache.Storage, clk clock.Clock, logger *slog.Logger) *Session {
	logger = logger.With("session", id)
	now := clk.Now()
	return &Session{
		id:       id,
		remote:   remote,
		cache:    searchcache.New(storage, clk, logger),
		clock:    clk,
		logger:   logger,
		store:    assignment.NewStore(calendar.WeekOf(now)),
		loading:  make(map[Affordance]bool),
		lastSeen: now,
	}
}

func (s *Session) ID() string { return s.id }

// Restore resumes the search held in the session's storage.
func (s *Session) Restore(ctx context.Context) error {
	return s.cache.Restore(ctx)
}

// begin marks a as loading. The returned func clears the flag and must
// be deferred by the caller.
func (s *Session) begin(a Affordance) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading[a] {
		return nil, fmt.Errorf("%s: %w", a, ErrBusy)
	}
	s.loading[a] = true
	return func() {
		s.mu.Lock()
		delete(s.loading, a)
		s.mu.Unlock()
	}, nil
}

// Loading reports which affordances have a request in flight.
func (s *Session) Loading() []Affordance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Affordance, 0, len(s.loading))
	for _, a := range []Affordance{NumberLookup, WorkerSearch, ReportExport} {
		if s.loading[a] {
			out = append(out, a)
		}
	}
	return out
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.clock.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(cutoff) && len(s.loading) == 0
}

// LookupResult is the outcome of a number lookup.
type LookupResult struct {
	Issue  model.Issue          `json:"issue"`
	Window model.CalendarWindow `json:"window"`
}

// LookupNumber fetches the issue with the given number and places it on
// the calendar. If the issue is already placed the fetched issue is
// returned along with an error wrapping assignment.ErrDuplicate.
func (s *Session) LookupNumber(ctx context.Context, number string) (*LookupResult, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrEmptyQuery
	}
	if n, err := strconv.ParseInt(number, 10, 64); err != nil || n <= 0 {
		return nil, ErrInvalidNumber
	}

	end, err := s.begin(NumberLookup)
	if err != nil {
		return nil, err
	}
	defer end()

	issue, err := s.remote.LookupIssueByNumber(ctx, number)
	if err != nil {
		s.logger.Warn("number lookup failed", "number", number, "error", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.store.Add(*issue)
	return &LookupResult{Issue: *issue, Window: s.store.Window()}, err
}

func (s *Session) fetch(ctx context.Context, worker string, page int) (searchcache.Result, error) {
	res, err := s.remote.LookupIssuesByWorker(ctx, worker, page)
	if err != nil {
		s.logger.Warn("worker search failed", "worker", worker, "page", page, "error", err)
		return searchcache.Result{}, err
	}
	return searchcache.Result{Issues: res.Issues, SearchRange: res.SearchRange}, nil
}

// SearchWorker starts a new search for worker and returns its first page.
// The previous search is replaced only once that page has arrived. When
// nothing is placed yet the calendar moves to the period of the results.
func (s *Session) SearchWorker(ctx context.Context, worker string) (*searchcache.Entry, error) {
	worker = strings.TrimSpace(worker)
	if worker == "" {
		return nil, ErrEmptyQuery
	}

	end, err := s.begin(WorkerSearch)
	if err != nil {
		return nil, err
	}
	defer end()

	entry, err := s.cache.Search(ctx, worker, s.fetch)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = entry
	if s.store.Len() == 0 {
		if w, ok := calendar.ComputeWindow(entry.Issues, nil); ok {
			s.store.SetWindow(w)
		}
	}
	return entry, nil
}

// NextPage moves the search to the following page.
func (s *Session) NextPage(ctx context.Context) (*searchcache.Entry, error) {
	return s.page(ctx, s.cache.Next)
}

// PrevPage moves the search to the previous page.
func (s *Session) PrevPage(ctx context.Context) (*searchcache.Entry, error) {
	return s.page(ctx, s.cache.Prev)
}

// CurrentPage returns the page the search is on, loading it if the
// session was restored.
func (s *Session) CurrentPage(ctx context.Context) (*searchcache.Entry, error) {
	s.mu.Lock()
	entry := s.results
	s.mu.Unlock()
	if entry != nil {
		return entry, nil
	}
	return s.page(ctx, s.cache.Current)
}

func (s *Session) page(ctx context.Context, move func(context.Context, searchcache.FetchFunc) (*searchcache.Entry, error)) (*searchcache.Entry, error) {
	end, err := s.begin(WorkerSearch)
	if err != nil {
		return nil, err
	}
	defer end()

	entry, err := move(ctx, s.fetch)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.results = entry
	s.mu.Unlock()
	return entry, nil
}

// AddFromResults places issues of the current results page on the
// calendar. With no ids every issue of the page is placed. Issues
// already on the calendar are skipped. It returns the number placed.
func (s *Session) AddFromResults(ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		return 0, searchcache.ErrNoSearch
	}

	picked := s.results.Issues
	if len(ids) > 0 {
		byID := make(map[int64]model.Issue, len(s.results.Issues))
		for _, issue := range s.results.Issues {
			byID[issue.ID] = issue
		}
		picked = make([]model.Issue, 0, len(ids))
		for _, id := range ids {
			issue, ok := byID[id]
			if !ok {
				return 0, fmt.Errorf("issue %d: %w", id, ErrNotFound)
			}
			picked = append(picked, issue)
		}
	}
	return s.store.BulkAdd(picked), nil
}

// Transfer applies a drag-and-drop payload.
func (s *Session) Transfer(p assignment.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Transfer(p.Issue, p.Origin)
}

// Remove takes the issue off the calendar. It reports whether the issue
// was placed.
func (s *Session) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Remove(id)
}

// Preview returns the window the calendar would show if the issue from
// the current results were placed.
func (s *Session) Preview(id int64) (model.CalendarWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.findLocked(id)
	if !ok {
		return model.CalendarWindow{}, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	return s.store.Preview(issue), nil
}

// Description parses the description of an issue on the calendar or in
// the current results.
func (s *Session) Description(id int64) (description.View, error) {
	s.mu.Lock()
	issue, ok := s.findLocked(id)
	s.mu.Unlock()
	if !ok {
		return description.View{}, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	return description.NewView(issue.Description)
}

func (s *Session) findLocked(id int64) (model.Issue, bool) {
	if issue, ok := s.store.Get(id); ok {
		return issue, true
	}
	if s.results != nil {
		for _, issue := range s.results.Issues {
			if issue.ID == id {
				return issue, true
			}
		}
	}
	return model.Issue{}, false
}

// CalendarView is everything the calendar page renders.
type CalendarView struct {
	Window  model.CalendarWindow `json:"window"`
	Weeks   []calendar.Week      `json:"weeks"`
	Issues  []model.Issue        `json:"issues"`
	Loading []Affordance         `json:"loading"`
}

// Calendar returns the current calendar.
func (s *Session) Calendar() CalendarView {
	loading := s.Loading()
	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.store.Window()
	issues := s.store.Issues()
	return CalendarView{
		Window:  window,
		Weeks:   calendar.BuildGrid(window, issues),
		Issues:  issues,
		Loading: loading,
	}
}

// Report builds the report of the current calendar.
func (s *Session) Report() *report.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return report.Build(s.store.Window(), s.store.Issues(), s.clock.Now())
}

// ExportReport builds the current report and hands it to exp.
func (s *Session) ExportReport(ctx context.Context, exp Exporter) (*model.ReportExport, error) {
	if exp == nil {
		return nil, ErrExportDisabled
	}
	end, err := s.begin(ReportExport)
	if err != nil {
		return nil, err
	}
	defer end()

	rec, err := exp.Export(ctx, s.id, s.Report())
	if err != nil {
		s.logger.Error("report export failed", "error", err)
		return nil, err
	}
	return rec, nil
}
