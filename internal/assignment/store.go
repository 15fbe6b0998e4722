// Package assignment holds the set of issues placed on the calendar.
package assignment

import (
	"errors"
	"fmt"

	"github.com/opsboard/issue-calendar/internal/calendar"
	"github.com/opsboard/issue-calendar/internal/model"
)

// ErrDuplicate is returned when an issue with the same id is already on
// the calendar.
var ErrDuplicate = errors.New("issue already on calendar")

// Store is the deduplicated, insertion-ordered set of placed issues and
// the window computed for them. It is not safe for concurrent use; the
// owning session serializes access.
type Store struct {
	issues []model.Issue
	index  map[int64]int
	window model.CalendarWindow
}

// NewStore returns an empty store showing initial.
func NewStore(initial model.CalendarWindow) *Store {
	return &Store{
		index:  make(map[int64]int),
		window: initial,
	}
}

// Add places issue on the calendar and recomputes the window. It returns
// ErrDuplicate without changing anything if the id is already present.
func (s *Store) Add(issue model.Issue) error {
	if _, ok := s.index[issue.ID]; ok {
		return fmt.Errorf("add issue %d: %w", issue.ID, ErrDuplicate)
	}
	s.insert(issue)
	s.recompute()
	return nil
}

// BulkAdd inserts every issue whose id is not already present and
// recomputes the window once. It returns the number of issues inserted.
func (s *Store) BulkAdd(issues []model.Issue) int {
	added := 0
	for _, issue := range issues {
		if _, ok := s.index[issue.ID]; ok {
			continue
		}
		s.insert(issue)
		added++
	}
	if added > 0 {
		s.recompute()
	}
	return added
}

// Remove drops the issue with id if present. The window is left as is.
func (s *Store) Remove(id int64) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.issues = append(s.issues[:i], s.issues[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.issues); j++ {
		s.index[s.issues[j].ID] = j
	}
	return true
}

// Preview returns the window the calendar would show if candidate were
// added, without adding it.
func (s *Store) Preview(candidate model.Issue) model.CalendarWindow {
	w, ok := calendar.ComputeWindow(s.issues, &candidate)
	if !ok {
		return s.window
	}
	return w
}

// Window returns the current window.
func (s *Store) Window() model.CalendarWindow {
	return s.window
}

// SetWindow replaces the current window, e.g. when a search result moves
// the viewing period.
func (s *Store) SetWindow(w model.CalendarWindow) {
	s.window = w
}

// Issues returns a copy of the placed issues in insertion order.
func (s *Store) Issues() []model.Issue {
	out := make([]model.Issue, len(s.issues))
	copy(out, s.issues)
	return out
}

// Get returns the placed issue with id.
func (s *Store) Get(id int64) (model.Issue, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.Issue{}, false
	}
	return s.issues[i], true
}

func (s *Store) Contains(id int64) bool {
	_, ok := s.index[id]
	return ok
}

func (s *Store) Len() int {
	return len(s.issues)
}

func (s *Store) insert(issue model.Issue) {
	s.index[issue.ID] = len(s.issues)
	s.issues = append(s.issues, issue)
}

func (s *Store) recompute() {
	if w, ok := calendar.ComputeWindow(s.issues, nil); ok {
		s.window = w
	}
}
