// Package aggregate turns a sequence of touch events into time spent per file.
//
// Aggregate is a pure fold over the events and a Policy: for every file the
// events are ordered by time, and each gap between consecutive touches counts
// as work when it does not exceed the idle threshold. A lone touch counts for
// nothing.
package aggregate

import (
	"sort"
	"time"

	"github.com/fakeyudi/gtm/internal/eventlog"
)

const (
	// DefaultIdleThreshold is the longest gap between two touches of a file
	// that still counts as continuous work.
	DefaultIdleThreshold = 2 * time.Minute
	// DefaultMinDuration is the noise floor below which a file's time is
	// discarded. Zero keeps every non-zero bucket.
	DefaultMinDuration = 0 * time.Second
)

// Policy configures the fold.
type Policy struct {
	IdleThreshold time.Duration
	MinDuration   time.Duration
}

// DefaultPolicy returns the default aggregation policy.
func DefaultPolicy() Policy {
	return Policy{IdleThreshold: DefaultIdleThreshold, MinDuration: DefaultMinDuration}
}

// TimeBucket is the time attributed to one file.
type TimeBucket struct {
	Path    string `json:"path" yaml:"path"`
	Seconds int64  `json:"seconds" yaml:"seconds"`
}

// Result is the outcome of aggregating one batch of events.
type Result struct {
	// Files holds the attributed buckets, largest first.
	Files []TimeBucket
	// Discarded holds files whose time fell below the noise floor, including
	// files touched only once.
	Discarded []TimeBucket
	Total     int64
	Events    int
}

// Aggregate folds events into per-file durations according to p.
func Aggregate(events []eventlog.TouchEvent, p Policy) Result {
	idle := int64(p.IdleThreshold / time.Second)
	floor := int64(p.MinDuration / time.Second)

	byPath := make(map[string][]int64)
	for _, ev := range events {
		byPath[ev.Path] = append(byPath[ev.Path], ev.Timestamp)
	}

	res := Result{Events: len(events)}
	for path, stamps := range byPath {
		sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

		var secs int64
		for i := 1; i < len(stamps); i++ {
			gap := stamps[i] - stamps[i-1]
			if gap <= idle {
				secs += gap
			}
		}

		b := TimeBucket{Path: path, Seconds: secs}
		if secs == 0 || secs < floor {
			res.Discarded = append(res.Discarded, b)
			continue
		}
		res.Files = append(res.Files, b)
		res.Total += secs
	}

	sortBuckets(res.Files)
	sortBuckets(res.Discarded)
	return res
}

// sortBuckets orders buckets by seconds descending, then path ascending.
func sortBuckets(b []TimeBucket) {
	sort.Slice(b, func(i, j int) bool {
		if b[i].Seconds != b[j].Seconds {
			return b[i].Seconds > b[j].Seconds
		}
		return b[i].Path < b[j].Path
	})
}
