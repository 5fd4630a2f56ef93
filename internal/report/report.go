// Package report renders recorded commit time for people.
package report

import (
	"fmt"
	"strings"

	"github.com/fakeyudi/gtm/internal/aggregate"
	"github.com/fakeyudi/gtm/internal/note"
)

// Report is the time recorded on a set of commits.
type Report struct {
	Repo    string   `json:"repo"`
	Total   int64    `json:"total"`
	Commits []Commit `json:"commits"`
}

// Commit is one commit in a report. Recorded is false when the commit carries
// no time note.
type Commit struct {
	Hash     string                 `json:"hash"`
	Subject  string                 `json:"subject,omitempty"`
	Recorded bool                   `json:"recorded"`
	Total    int64                  `json:"total"`
	Files    []aggregate.TimeBucket `json:"files"`
}

// FromEntries builds a report from commits read back by note.Reader.
func FromEntries(repo string, entries []note.Entry) *Report {
	r := &Report{Repo: repo, Commits: make([]Commit, 0, len(entries))}
	for _, e := range entries {
		c := Commit{Hash: e.Hash, Subject: e.Subject, Files: []aggregate.TimeBucket{}}
		if e.Record != nil {
			c.Recorded = true
			c.Total = e.Record.Total
			c.Files = e.Record.Files
		}
		r.Total += c.Total
		r.Commits = append(r.Commits, c)
	}
	return r
}

// Pending builds a single pseudo-commit report from a preview of the pending
// events.
func Pending(repo string, res aggregate.Result) *Report {
	files := res.Files
	if files == nil {
		files = []aggregate.TimeBucket{}
	}
	return &Report{
		Repo:  repo,
		Total: res.Total,
		Commits: []Commit{{
			Hash:     "pending",
			Subject:  fmt.Sprintf("%d events not yet committed", res.Events),
			Recorded: res.Events > 0,
			Total:    res.Total,
			Files:    files,
		}},
	}
}

// FormatDuration renders seconds as "1h 2m 3s", omitting leading zero units.
func FormatDuration(secs int64) string {
	if secs <= 0 {
		return "0s"
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if h > 0 || m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	parts = append(parts, fmt.Sprintf("%ds", s))
	return strings.Join(parts, " ")
}

// Percent returns part as a whole percentage of total.
func Percent(part, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(part * 100 / total)
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
