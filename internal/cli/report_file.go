package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opsboard/issue-calendar/internal/calendar"
	"github.com/opsboard/issue-calendar/internal/report"
)

// FileReport builds a report from an exported list of issues.
type FileReport struct {
	File string // JSON or YAML list of issues; "-" for stdin
	Now  time.Time
}

// Build loads the issues and lays them out over the window they span.
// An empty list yields the week containing Now.
func (r FileReport) Build(stdin io.Reader) (*report.Report, error) {
	in := stdin
	if r.File != "-" {
		f, err := os.Open(r.File)
		if err != nil {
			return nil, fmt.Errorf("open issues: %w", err)
		}
		defer f.Close()
		in = f
	}

	issues, err := report.LoadIssues(in)
	if err != nil {
		return nil, err
	}

	window, ok := calendar.ComputeWindow(issues, nil)
	if !ok {
		window = calendar.WeekOf(r.Now)
	}
	return report.Build(window, issues, r.Now), nil
}

// Write builds the report and writes it to out as YAML.
func (r FileReport) Write(stdin io.Reader, out io.Writer) error {
	rep, err := r.Build(stdin)
	if err != nil {
		return err
	}
	data, err := rep.YAML()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
