// Package report turns the issues placed on a calendar into a weekly
// report document.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opsboard/issue-calendar/internal/calendar"
	"github.com/opsboard/issue-calendar/internal/description"
	"github.com/opsboard/issue-calendar/internal/model"
)

type Report struct {
	Start       string    `yaml:"start"`
	End         string    `yaml:"end"`
	GeneratedAt time.Time `yaml:"generated_at"`
	Totals      Totals    `yaml:"totals"`
	Weeks       []Week    `yaml:"weeks"`
}

type Totals struct {
	Issues    int            `yaml:"issues"`
	Closed    int            `yaml:"closed"`
	ByTracker map[string]int `yaml:"by_tracker,omitempty"`
}

type Week struct {
	Start string `yaml:"start"`
	Days  []Day  `yaml:"days"`
}

type Day struct {
	Date   string  `yaml:"date"`
	Issues []Entry `yaml:"issues,omitempty"`
}

// Entry is one issue as it appears in a report. Structured descriptions
// are split into sections; anything else is kept verbatim.
type Entry struct {
	ID          int64     `yaml:"id"`
	Subject     string    `yaml:"subject"`
	Author      string    `yaml:"author,omitempty"`
	Status      string    `yaml:"status,omitempty"`
	Tracker     string    `yaml:"tracker,omitempty"`
	Product     string    `yaml:"product,omitempty"`
	Project     string    `yaml:"project,omitempty"`
	Closed      bool      `yaml:"closed"`
	Sections    *Sections `yaml:"sections,omitempty"`
	Description string    `yaml:"description,omitempty"`
}

type Sections struct {
	Problem        string `yaml:"problem,omitempty"`
	Cause          string `yaml:"cause,omitempty"`
	Action         string `yaml:"action,omitempty"`
	Result         string `yaml:"result,omitempty"`
	Note           string `yaml:"note,omitempty"`
	InternalReport string `yaml:"internal_report,omitempty"`
}

// Build lays issues out over window. Issues created outside the window
// are left out, as they are on the calendar grid.
func Build(window model.CalendarWindow, issues []model.Issue, now time.Time) *Report {
	r := &Report{
		Start:       window.Start.Format(model.DateLayout),
		End:         window.End.Format(model.DateLayout),
		GeneratedAt: now.UTC().Truncate(time.Second),
		Totals:      Totals{ByTracker: map[string]int{}},
	}

	for _, gw := range calendar.BuildGrid(window, issues) {
		week := Week{Start: gw.Days[0].Date, Days: make([]Day, 0, len(gw.Days))}
		for _, cell := range gw.Days {
			day := Day{Date: cell.Date}
			for _, issue := range cell.Issues {
				day.Issues = append(day.Issues, newEntry(issue))
				r.Totals.Issues++
				if issue.IsClosed {
					r.Totals.Closed++
				}
				if issue.TrackerName != "" {
					r.Totals.ByTracker[issue.TrackerName]++
				}
			}
			week.Days = append(week.Days, day)
		}
		r.Weeks = append(r.Weeks, week)
	}
	return r
}

func newEntry(issue model.Issue) Entry {
	e := Entry{
		ID:      issue.ID,
		Subject: issue.Subject,
		Author:  issue.AuthorName,
		Status:  issue.StatusName,
		Tracker: issue.TrackerName,
		Product: issue.Product,
		Project: issue.ProjectName,
		Closed:  issue.IsClosed,
	}
	p := description.Parse(issue.Description)
	if !p.HasStructuredContent {
		e.Description = issue.Description
		return e
	}
	e.Sections = &Sections{
		Problem:        p.Problem,
		Cause:          p.Cause,
		Action:         p.Action,
		Result:         p.Result,
		Note:           p.Note,
		InternalReport: p.InternalReport,
	}
	return e
}

// Trackers returns the tracker names of the report in sorted order.
func (r *Report) Trackers() []string {
	names := make([]string, 0, len(r.Totals.ByTracker))
	for name := range r.Totals.ByTracker {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// YAML renders the report.
func (r *Report) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadIssues reads a list of issues in the issue API's JSON shape. YAML
// input is accepted too. Every entry is validated like an API response.
func LoadIssues(r io.Reader) ([]model.Issue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read issues: %w", err)
	}

	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}

	issues := make([]model.Issue, 0, len(raw))
	for i, item := range raw {
		encoded, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("issue %d: %w", i, err)
		}
		var issue model.Issue
		if err := json.Unmarshal(encoded, &issue); err != nil {
			return nil, fmt.Errorf("issue %d: %w", i, err)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}
