// ABOUTME: Sorted read view over a clip snapshot
// ABOUTME: Binary search entry point for clips starting at or after a beat
package timeline

import (
	"cmp"
	"slices"
	"sort"
)

// Index is an immutable view of a snapshot sorted by start beat
type Index struct {
	clips   []Clip
	version uint64
}

// NewIndex sorts a snapshot by start beat, ties broken by ID
func NewIndex(snap Snapshot) *Index {
	clips := slices.Clone(snap.Clips)
	slices.SortStableFunc(clips, func(a, b Clip) int {
		if c := cmp.Compare(a.StartBeat, b.StartBeat); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return &Index{clips: clips, version: snap.Version}
}

// FirstAtOrAfter returns the position of the first clip whose start is >= beat,
// or Len() when there is none
func (x *Index) FirstAtOrAfter(beat float64) int {
	return sort.Search(len(x.clips), func(i int) bool {
		return x.clips[i].StartBeat >= beat
	})
}

// Len returns the number of clips
func (x *Index) Len() int { return len(x.clips) }

// At returns the clip at position i
func (x *Index) At(i int) Clip { return x.clips[i] }

// Version returns the store version the index was built from
func (x *Index) Version() uint64 { return x.version }

// Clips returns the sorted clips; callers must not modify them
func (x *Index) Clips() []Clip { return x.clips }
