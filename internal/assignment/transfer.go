package assignment

import (
	"encoding/json"
	"fmt"

	"github.com/opsboard/issue-calendar/internal/model"
)

// Origin tags where a transferred issue was picked up.
type Origin string

const (
	// FromSearchResults drops an issue from the pick list onto the calendar.
	FromSearchResults Origin = "search"
	// FromCalendar drags an issue off the calendar, removing it.
	FromCalendar Origin = "calendar"
)

// ParseOrigin maps a payload tag to an Origin. Anything other than the
// calendar tag is a transfer from search results.
func ParseOrigin(s string) Origin {
	if Origin(s) == FromCalendar {
		return FromCalendar
	}
	return FromSearchResults
}

// Payload is what travels with a transfer gesture.
type Payload struct {
	Origin Origin      `json:"origin"`
	Issue  model.Issue `json:"issue"`
}

// DecodePayload decodes a transfer payload. The origin is read
// leniently: a missing, unknown or mistyped origin falls through to
// FromSearchResults. The issue itself must be well formed.
func DecodePayload(data []byte) (Payload, error) {
	var raw struct {
		Origin json.RawMessage `json:"origin"`
		Issue  json.RawMessage `json:"issue"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("decode transfer payload: %w", err)
	}
	if len(raw.Issue) == 0 {
		return Payload{}, fmt.Errorf("decode transfer payload: %w: issue is required", model.ErrMalformedIssue)
	}

	var p Payload
	if err := json.Unmarshal(raw.Issue, &p.Issue); err != nil {
		return Payload{}, fmt.Errorf("decode transfer issue: %w", err)
	}

	var tag string
	if err := json.Unmarshal(raw.Origin, &tag); err != nil {
		tag = ""
	}
	p.Origin = ParseOrigin(tag)
	return p, nil
}

// Transfer applies a transfer gesture: issues from search results are
// added, issues dragged from the calendar are removed.
func (s *Store) Transfer(issue model.Issue, origin Origin) error {
	if origin == FromCalendar {
		s.Remove(issue.ID)
		return nil
	}
	return s.Add(issue)
}
