// Package calendar computes the week-aligned window the issue calendar
// renders and lays issues out on it.
package calendar

import (
	"time"

	"github.com/opsboard/issue-calendar/internal/model"
)

const (
	MinWeeks = 1
	MaxWeeks = 4
)

// ComputeWindow returns the window covering the created dates of existing
// and, if non-nil, newItem. The window starts on the Monday of the
// earliest date and spans a whole number of weeks, at least MinWeeks and
// at most MaxWeeks. Dates beyond MaxWeeks from the start are clipped.
// ok is false when there are no dates to cover.
func ComputeWindow(existing []model.Issue, newItem *model.Issue) (w model.CalendarWindow, ok bool) {
	var earliest, latest time.Time
	seen := false
	visit := func(t time.Time) {
		d := model.Day(t)
		if !seen {
			earliest, latest, seen = d, d, true
			return
		}
		if d.Before(earliest) {
			earliest = d
		}
		if d.After(latest) {
			latest = d
		}
	}
	for _, issue := range existing {
		visit(issue.CreatedAt)
	}
	if newItem != nil {
		visit(newItem.CreatedAt)
	}
	if !seen {
		return model.CalendarWindow{}, false
	}

	start := Monday(earliest)
	end := Sunday(latest)

	totalDays := int(end.Sub(start).Hours()/24) + 1
	weeks := (totalDays + 6) / 7
	weeks = max(MinWeeks, min(weeks, MaxWeeks))

	return model.CalendarWindow{
		Start: start,
		End:   start.AddDate(0, 0, weeks*7-1),
	}, true
}

// WeekOf returns the single-week window containing day.
func WeekOf(day time.Time) model.CalendarWindow {
	start := Monday(day)
	return model.CalendarWindow{Start: start, End: start.AddDate(0, 0, 6)}
}

// Monday returns the Monday of the week containing day. Sunday belongs to
// the week that started six days earlier.
func Monday(day time.Time) time.Time {
	d := model.Day(day)
	dow := int(d.Weekday())
	back := dow - 1
	if dow == 0 {
		back = 6
	}
	return d.AddDate(0, 0, -back)
}

// Sunday returns the Sunday closing the week containing day.
func Sunday(day time.Time) time.Time {
	d := model.Day(day)
	dow := int(d.Weekday())
	forward := 7 - dow
	if dow == 0 {
		forward = 0
	}
	return d.AddDate(0, 0, forward)
}
