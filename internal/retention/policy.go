package retention

import (
	"sort"
	"time"
)

// Policy bounds a record set. Zero values disable the corresponding limit.
type Policy struct {
	MaxAge   time.Duration
	MaxCount int
}

// Enabled reports whether any limit is configured.
func (p Policy) Enabled() bool { return p.MaxAge > 0 || p.MaxCount > 0 }

// Entry is the view of a record that retention needs.
type Entry struct {
	Timestamp time.Time
	Sequence  uint64
}

// Result describes one retention pass.
type Result struct {
	// Keep lists indices into the input in chronological order.
	Keep         []int
	AgeEvicted   int
	CountEvicted int
}

// Evicted returns the number of removed entries.
func (r Result) Evicted() int { return r.AgeEvicted + r.CountEvicted }

// Changed reports whether the pass removed anything.
func (r Result) Changed() bool { return r.Evicted() > 0 }

// Apply runs age eviction, then count eviction, against now.
func Apply(entries []Entry, p Policy, now time.Time) Result {
	keep := make([]int, 0, len(entries))
	res := Result{}
	for i, e := range entries {
		if p.MaxAge > 0 && now.Sub(e.Timestamp) > p.MaxAge {
			res.AgeEvicted++
			continue
		}
		keep = append(keep, i)
	}

	sort.SliceStable(keep, func(a, b int) bool {
		return before(entries[keep[a]], entries[keep[b]])
	})

	if p.MaxCount > 0 && len(keep) > p.MaxCount {
		res.CountEvicted = len(keep) - p.MaxCount
		keep = keep[res.CountEvicted:]
	}
	res.Keep = keep
	return res
}

func before(a, b Entry) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Sequence < b.Sequence
}

// Compact returns the elements of items at the given indices, in order.
func Compact[T any](items []T, keep []int) []T {
	out := make([]T, len(keep))
	for i, idx := range keep {
		out[i] = items[idx]
	}
	return out
}
