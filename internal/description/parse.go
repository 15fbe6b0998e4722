// Package description splits free-text ticket descriptions into the
// labeled sections the detail view renders.
package description

import (
	"regexp"
	"strings"
)

// Section identifies one of the recognized description sections.
type Section int

const (
	Problem Section = iota
	Cause
	Action
	Result
	Note
	InternalReport
)

// Labels are the section headers in canonical order.
var Labels = [...]string{
	Problem:        "### 문제",
	Cause:          "### 원인",
	Action:         "### 조치",
	Result:         "### 결과",
	Note:           "### 비고",
	InternalReport: "### 내부보고",
}

const fence = "~~~"

func (s Section) String() string {
	switch s {
	case Problem:
		return "problem"
	case Cause:
		return "cause"
	case Action:
		return "action"
	case Result:
		return "result"
	case Note:
		return "note"
	case InternalReport:
		return "internal_report"
	default:
		return "unknown"
	}
}

// Parsed is the view-time projection of an issue description.
type Parsed struct {
	Problem              string `json:"problem"`
	Cause                string `json:"cause"`
	Action               string `json:"action"`
	Result               string `json:"result"`
	Note                 string `json:"note"`
	InternalReport       string `json:"internal_report"`
	HasStructuredContent bool   `json:"has_structured_content"`
	FullContent          string `json:"full_content"`
}

// Get returns the value of a section.
func (p Parsed) Get(s Section) string {
	switch s {
	case Problem:
		return p.Problem
	case Cause:
		return p.Cause
	case Action:
		return p.Action
	case Result:
		return p.Result
	case Note:
		return p.Note
	case InternalReport:
		return p.InternalReport
	}
	return ""
}

func (p *Parsed) set(s Section, v string) {
	switch s {
	case Problem:
		p.Problem = v
	case Cause:
		p.Cause = v
	case Action:
		p.Action = v
	case Result:
		p.Result = v
	case Note:
		p.Note = v
	case InternalReport:
		p.InternalReport = v
	}
}

type sectionPattern struct {
	fenced   *regexp.Regexp
	unfenced *regexp.Regexp
}

var patterns = compilePatterns()

func compilePatterns() [len(Labels)]sectionPattern {
	var out [len(Labels)]sectionPattern
	f := regexp.QuoteMeta(fence)
	for i, label := range Labels {
		l := regexp.QuoteMeta(label)
		out[i].fenced = regexp.MustCompile(`(?s)` + l + `\s*` + f + `(.*?)` + f)
		if i == len(Labels)-1 {
			out[i].unfenced = regexp.MustCompile(`(?s)` + l + `(.*)$`)
		} else {
			next := regexp.QuoteMeta(Labels[i+1])
			out[i].unfenced = regexp.MustCompile(`(?s)` + l + `(.*?)` + next)
		}
	}
	return out
}

// Parse extracts each labeled section from text. A label followed by a
// ~~~ fenced block yields the fenced content; otherwise the text up to
// the next label in canonical order is used. The last label runs to the
// end of the text. Missing sections are empty.
func Parse(text string) Parsed {
	p := Parsed{FullContent: text}
	if text == "" {
		return p
	}
	for i := range Labels {
		p.set(Section(i), extract(text, patterns[i]))
	}
	p.HasStructuredContent = p.Problem != "" || p.Cause != "" || p.Action != "" || p.Result != ""
	return p
}

func extract(text string, sp sectionPattern) string {
	if m := sp.fenced.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := sp.unfenced.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
