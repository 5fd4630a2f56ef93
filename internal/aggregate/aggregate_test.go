package aggregate

import (
	"reflect"
	"sort"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/gtm/internal/eventlog"
)

func touches(path string, stamps ...int64) []eventlog.TouchEvent {
	evs := make([]eventlog.TouchEvent, len(stamps))
	for i, ts := range stamps {
		evs[i] = eventlog.TouchEvent{Path: path, Timestamp: ts}
	}
	return evs
}

// genEvents draws a batch of events over a small set of paths.
func genEvents(t *rapid.T) []eventlog.TouchEvent {
	paths := []string{"a.txt", "b.go", "dir/c.md"}
	n := rapid.IntRange(0, 40).Draw(t, "n")
	evs := make([]eventlog.TouchEvent, n)
	for i := range evs {
		evs[i] = eventlog.TouchEvent{
			Path:      rapid.SampledFrom(paths).Draw(t, "path"),
			Timestamp: rapid.Int64Range(0, 3600).Draw(t, "ts"),
		}
	}
	return evs
}

func genPolicy(t *rapid.T) Policy {
	return Policy{IdleThreshold: time.Duration(rapid.IntRange(0, 600).Draw(t, "idle")) * time.Second}
}

func TestIdleGapIsDiscarded(t *testing.T) {
	res := Aggregate(touches("a.txt", 0, 30, 650), Policy{IdleThreshold: 120 * time.Second})

	if res.Total != 30 {
		t.Fatalf("Total = %d, want 30", res.Total)
	}
	want := []TimeBucket{{Path: "a.txt", Seconds: 30}}
	if !reflect.DeepEqual(res.Files, want) {
		t.Errorf("Files = %+v, want %+v", res.Files, want)
	}
}

func TestGapAtThresholdCountsAsActive(t *testing.T) {
	res := Aggregate(touches("a.txt", 100, 220), Policy{IdleThreshold: 120 * time.Second})
	if res.Total != 120 {
		t.Errorf("Total = %d, want 120", res.Total)
	}

	res = Aggregate(touches("a.txt", 100, 221), Policy{IdleThreshold: 120 * time.Second})
	if res.Total != 0 {
		t.Errorf("Total = %d, want 0 for a gap one second past the threshold", res.Total)
	}
}

func TestSingleTouchRecordsNothing(t *testing.T) {
	res := Aggregate(touches("a.txt", 42), DefaultPolicy())
	if res.Total != 0 || len(res.Files) != 0 {
		t.Fatalf("expected no attributed time, got %+v", res)
	}
	if len(res.Discarded) != 1 || res.Discarded[0].Path != "a.txt" {
		t.Errorf("expected a.txt to be discarded explicitly, got %+v", res.Discarded)
	}
}

func TestUnorderedInputIsSortedPerFile(t *testing.T) {
	evs := append(touches("a.txt", 60, 0), touches("b.txt", 10, 5)...)
	evs = append(evs, touches("a.txt", 30)...)
	res := Aggregate(evs, DefaultPolicy())

	want := []TimeBucket{{Path: "a.txt", Seconds: 60}, {Path: "b.txt", Seconds: 5}}
	if !reflect.DeepEqual(res.Files, want) {
		t.Errorf("Files = %+v, want %+v", res.Files, want)
	}
	if res.Total != 65 {
		t.Errorf("Total = %d, want 65", res.Total)
	}
}

func TestNoiseFloorDiscardsSmallBuckets(t *testing.T) {
	evs := append(touches("big.go", 0, 100), touches("tiny.go", 0, 3)...)
	res := Aggregate(evs, Policy{IdleThreshold: 2 * time.Minute, MinDuration: 10 * time.Second})

	if res.Total != 100 {
		t.Errorf("Total = %d, want 100", res.Total)
	}
	if len(res.Discarded) != 1 || res.Discarded[0] != (TimeBucket{Path: "tiny.go", Seconds: 3}) {
		t.Errorf("Discarded = %+v, want tiny.go:3", res.Discarded)
	}
}

// Per-file time never exceeds the span between its first and last touch.
func TestPropertyBucketBoundedBySpan(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		evs := genEvents(t)
		res := Aggregate(evs, genPolicy(t))

		span := map[string][2]int64{}
		for _, ev := range evs {
			s, ok := span[ev.Path]
			if !ok {
				span[ev.Path] = [2]int64{ev.Timestamp, ev.Timestamp}
				continue
			}
			s[0] = min(s[0], ev.Timestamp)
			s[1] = max(s[1], ev.Timestamp)
			span[ev.Path] = s
		}

		var sum int64
		for _, b := range res.Files {
			sum += b.Seconds
			s := span[b.Path]
			if b.Seconds > s[1]-s[0] {
				t.Fatalf("%s: %d seconds exceeds span %d", b.Path, b.Seconds, s[1]-s[0])
			}
		}
		if sum != res.Total {
			t.Fatalf("Total %d != sum of buckets %d", res.Total, sum)
		}
	})
}

// Splitting a batch at any point never yields more time than aggregating it whole.
func TestPropertyPartitionNeverDoubleCounts(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		evs := genEvents(t)
		p := genPolicy(t)
		cut := rapid.Int64Range(0, 3600).Draw(t, "cut")

		var before, after []eventlog.TouchEvent
		for _, ev := range evs {
			if ev.Timestamp < cut {
				before = append(before, ev)
			} else {
				after = append(after, ev)
			}
		}

		whole := Aggregate(evs, p).Total
		split := Aggregate(before, p).Total + Aggregate(after, p).Total
		if split > whole {
			t.Fatalf("partitioned total %d exceeds whole total %d", split, whole)
		}
	})
}

// The fold depends only on the multiset of events, not their order.
func TestPropertyDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		evs := genEvents(t)
		p := genPolicy(t)

		shuffled := rapid.Permutation(evs).Draw(t, "shuffled")
		a, b := Aggregate(evs, p), Aggregate(shuffled, p)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("results differ:\n%+v\n%+v", a, b)
		}
		if !sort.SliceIsSorted(a.Files, func(i, j int) bool {
			if a.Files[i].Seconds != a.Files[j].Seconds {
				return a.Files[i].Seconds > a.Files[j].Seconds
			}
			return a.Files[i].Path < a.Files[j].Path
		}) {
			t.Fatalf("files not ordered: %+v", a.Files)
		}
	})
}
