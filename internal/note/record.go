// Package note turns drained touch events into per-commit time records and
// stores them as git notes.
package note

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fakeyudi/gtm/internal/aggregate"
)

// CommitTimeRecord is the time attributed to one commit.
type CommitTimeRecord struct {
	Commit string                 `yaml:"commit" json:"commit"`
	Total  int64                  `yaml:"total" json:"total"`
	Files  []aggregate.TimeBucket `yaml:"files" json:"files"`
}

// ErrMalformedNote is returned when a note cannot be decoded as a time record.
var ErrMalformedNote = errors.New("malformed time note")

// NewRecord builds the record for commit from an aggregation result.
func NewRecord(commit string, res aggregate.Result) *CommitTimeRecord {
	files := make([]aggregate.TimeBucket, len(res.Files))
	copy(files, res.Files)
	return &CommitTimeRecord{Commit: commit, Total: res.Total, Files: files}
}

// Marshal encodes rec as the YAML body of a git note.
func Marshal(rec *CommitTimeRecord) ([]byte, error) {
	return yaml.Marshal(rec)
}

// Unmarshal decodes a git note body. The total is recomputed from the files so
// a hand-edited note cannot disagree with itself.
func Unmarshal(data []byte) (*CommitTimeRecord, error) {
	var rec CommitTimeRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNote, err)
	}
	var total int64
	for _, f := range rec.Files {
		if f.Path == "" || f.Seconds < 0 {
			return nil, fmt.Errorf("%w: bad file entry %+v", ErrMalformedNote, f)
		}
		total += f.Seconds
	}
	rec.Total = total
	return &rec, nil
}

// Merge adds the buckets of other into rec, summing time for shared paths.
// The result keeps rec's commit.
func (rec *CommitTimeRecord) Merge(other *CommitTimeRecord) {
	if other == nil {
		return
	}
	byPath := make(map[string]int64, len(rec.Files)+len(other.Files))
	for _, f := range rec.Files {
		byPath[f.Path] += f.Seconds
	}
	for _, f := range other.Files {
		byPath[f.Path] += f.Seconds
	}

	rec.Files = rec.Files[:0]
	rec.Total = 0
	for path, secs := range byPath {
		rec.Files = append(rec.Files, aggregate.TimeBucket{Path: path, Seconds: secs})
		rec.Total += secs
	}
	sort.Slice(rec.Files, func(i, j int) bool {
		a, b := rec.Files[i], rec.Files[j]
		if a.Seconds != b.Seconds {
			return a.Seconds > b.Seconds
		}
		return a.Path < b.Path
	})
}
