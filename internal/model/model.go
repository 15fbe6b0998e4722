package model

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-day wire format.
const DateLayout = "2006-01-02"

var dayLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05 -0700",
}

// Issue is an immutable snapshot of a ticket as delivered by the issue API.
// ID is the identity key used for deduplication.
type Issue struct {
	ID          int64     `json:"id"`
	Subject     string    `json:"subject"`
	AuthorName  string    `json:"author_name"`
	StatusName  string    `json:"status_name"`
	CreatedAt   time.Time `json:"created_on"`
	UpdatedAt   time.Time `json:"updated_on"`
	Description string    `json:"description"`
	IsClosed    bool      `json:"is_closed"`
	TrackerName string    `json:"tracker_name"`
	Product     string    `json:"product"`
	ProjectName string    `json:"project_name,omitempty"`
}

type issueWire struct {
	ID          int64  `json:"id"`
	Subject     string `json:"subject"`
	AuthorName  string `json:"author_name"`
	StatusName  string `json:"status_name"`
	CreatedOn   string `json:"created_on"`
	UpdatedOn   string `json:"updated_on"`
	Description string `json:"description"`
	IsClosed    bool   `json:"is_closed"`
	TrackerName string `json:"tracker_name"`
	Product     string `json:"product"`
	ProjectName string `json:"project_name,omitempty"`
}

// issueAliases carries the camelCase spellings some endpoints use.
type issueAliases struct {
	issueWire
	AuthorNameAlt  string `json:"authorName"`
	StatusNameAlt  string `json:"statusName"`
	CreatedAtAlt   string `json:"createdAt"`
	UpdatedAtAlt   string `json:"updatedAt"`
	IsClosedAlt    bool   `json:"isClosed"`
	TrackerNameAlt string `json:"trackerName"`
	ProjectNameAlt string `json:"projectName"`
}

func (a issueAliases) merged() issueWire {
	w := a.issueWire
	w.AuthorName = cmp.Or(w.AuthorName, a.AuthorNameAlt)
	w.StatusName = cmp.Or(w.StatusName, a.StatusNameAlt)
	w.CreatedOn = cmp.Or(w.CreatedOn, a.CreatedAtAlt)
	w.UpdatedOn = cmp.Or(w.UpdatedOn, a.UpdatedAtAlt)
	w.IsClosed = w.IsClosed || a.IsClosedAlt
	w.TrackerName = cmp.Or(w.TrackerName, a.TrackerNameAlt)
	w.ProjectName = cmp.Or(w.ProjectName, a.ProjectNameAlt)
	return w
}

// MarshalJSON writes timestamps with day precision.
func (i Issue) MarshalJSON() ([]byte, error) {
	w := issueWire{
		ID:          i.ID,
		Subject:     i.Subject,
		AuthorName:  i.AuthorName,
		StatusName:  i.StatusName,
		CreatedOn:   formatDay(i.CreatedAt),
		UpdatedOn:   formatDay(i.UpdatedAt),
		Description: i.Description,
		IsClosed:    i.IsClosed,
		TrackerName: i.TrackerName,
		Product:     i.Product,
		ProjectName: i.ProjectName,
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts snake_case or camelCase keys and rejects payloads
// without a positive id or a parseable creation date; both are required
// to place an issue on the calendar.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var a issueAliases
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	w := a.merged()
	if w.ID <= 0 {
		return fmt.Errorf("%w: missing or invalid id", ErrMalformedIssue)
	}
	created, err := ParseDay(w.CreatedOn)
	if err != nil {
		return fmt.Errorf("%w: issue %d created_on: %v", ErrMalformedIssue, w.ID, err)
	}
	var updated time.Time
	if w.UpdatedOn != "" {
		updated, err = ParseDay(w.UpdatedOn)
		if err != nil {
			return fmt.Errorf("%w: issue %d updated_on: %v", ErrMalformedIssue, w.ID, err)
		}
	}
	*i = Issue{
		ID:          w.ID,
		Subject:     w.Subject,
		AuthorName:  w.AuthorName,
		StatusName:  w.StatusName,
		CreatedAt:   created,
		UpdatedAt:   updated,
		Description: w.Description,
		IsClosed:    w.IsClosed,
		TrackerName: w.TrackerName,
		Product:     w.Product,
		ProjectName: w.ProjectName,
	}
	return nil
}

// ErrMalformedIssue is returned when an issue payload fails validation.
var ErrMalformedIssue = errors.New("malformed issue")

// ParseDay parses any of the accepted timestamp formats and truncates the
// result to its calendar day.
func ParseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Day truncates t to midnight UTC of the calendar day t falls on in its
// own location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// CalendarWindow is the Monday..Sunday range the calendar grid renders.
type CalendarWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days is the inclusive length of the window.
func (w CalendarWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Weeks is the number of week rows in the window.
func (w CalendarWindow) Weeks() int {
	return w.Days() / 7
}

// Contains reports whether day falls inside the window.
func (w CalendarWindow) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Label formats the window the way search range labels are shown.
func (w CalendarWindow) Label() string {
	return w.Start.Format(DateLayout) + "~" + w.End.Format(DateLayout)
}

func (w CalendarWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Weeks int    `json:"weeks"`
	}{
		Start: formatDay(w.Start),
		End:   formatDay(w.End),
		Weeks: w.Weeks(),
	})
}

// NamedItem is an entry of a filter lookup list (site, sub-site, product).
type NamedItem struct {
	Index int    `json:"index,omitempty"`
	Name  string `json:"name"`
}

// ReportExport records a report uploaded to object storage.
type ReportExport struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	ObjectKey   string    `json:"object_key"`
	WindowStart string    `json:"window_start"`
	WindowEnd   string    `json:"window_end"`
	IssueCount  int       `json:"issue_count"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}
