package ledger

import "sort"

// index maps stream keys and correlation ids to ascending positions in the
// record slice. It is rebuilt after removals and extended on append.
type index struct {
	byStream      map[string][]int
	byCorrelation map[string][]int
}

func buildIndex(records []Record) index {
	ix := index{byStream: map[string][]int{}, byCorrelation: map[string][]int{}}
	for i, r := range records {
		ix.add(i, r)
	}
	return ix
}

func (ix *index) add(pos int, r Record) {
	ix.byStream[r.StreamKey] = append(ix.byStream[r.StreamKey], pos)
	if r.CorrelationID != "" {
		ix.byCorrelation[r.CorrelationID] = append(ix.byCorrelation[r.CorrelationID], pos)
	}
}

func (ix *index) hasStream(key string) bool {
	return len(ix.byStream[key]) > 0
}

func (ix *index) streams() []string {
	out := make([]string, 0, len(ix.byStream))
	for k := range ix.byStream {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// positionsAfter returns the suffix of positions whose record sequence is
// greater than c. positions must be ascending.
func positionsAfter(records []Record, positions []int, c Cursor) []int {
	i := sort.Search(len(positions), func(i int) bool {
		return records[positions[i]].Sequence > uint64(c)
	})
	return positions[i:]
}
