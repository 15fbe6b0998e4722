package calendar

import (
	"time"

	"github.com/opsboard/issue-calendar/internal/model"
)

// Cell is one day of the grid.
type Cell struct {
	Date   string        `json:"date"`
	Issues []model.Issue `json:"issues"`
}

// Week is one Monday..Sunday row of the grid.
type Week struct {
	Days [7]Cell `json:"days"`
}

// BuildGrid lays out window as week rows and places each issue in the
// cell whose date equals its created day. Issues outside the window are
// not shown. Within a cell issues keep their input order.
func BuildGrid(window model.CalendarWindow, issues []model.Issue) []Week {
	weeks := make([]Week, window.Weeks())
	cells := make(map[time.Time]*Cell, window.Days())
	for w := range weeks {
		for d := range weeks[w].Days {
			cell := &weeks[w].Days[d]
			day := window.Start.AddDate(0, 0, w*7+d)
			cell.Date = day.Format(model.DateLayout)
			cells[day] = cell
		}
	}
	for _, issue := range issues {
		if !window.Contains(issue.CreatedAt) {
			continue
		}
		cell := cells[model.Day(issue.CreatedAt)]
		cell.Issues = append(cell.Issues, issue)
	}
	return weeks
}
