package ptu

import (
	"sort"

	"github.com/kilianp07/planboard/core/model"
)

// Normalize expands compact runs into one slot per PTU index with
// Duration 1. Runs are ordered by date then start index; a run without an
// index continues where the previous run of the same date ended. Every
// output slot inherits power, price and disposition from its run.
func Normalize(slots []model.PtuSlot) []model.PtuSlot {
	if len(slots) == 0 {
		return nil
	}
	sorted := make([]model.PtuSlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Index < sorted[j].Index
	})

	total := 0
	for _, s := range sorted {
		total += runLength(s)
	}
	out := make([]model.PtuSlot, 0, total)
	next := 1
	for i, s := range sorted {
		if i > 0 && !s.Date.Equal(sorted[i-1].Date) {
			next = 1
		}
		start := s.Index
		if start < 1 {
			start = next
		}
		n := runLength(s)
		for k := 0; k < n; k++ {
			slot := s
			slot.Index = start + k
			slot.Duration = 1
			out = append(out, slot)
		}
		next = start + n
	}
	return out
}

// Compact merges maximal runs of adjacent slots with identical values into
// one slot whose Duration is the run length. The input may use any
// segmentation, so Compact(Normalize(x)) equals Compact(x).
func Compact(slots []model.PtuSlot) []model.PtuSlot {
	norm := Normalize(slots)
	if len(norm) == 0 {
		return nil
	}
	out := []model.PtuSlot{norm[0]}
	for _, s := range norm[1:] {
		last := &out[len(out)-1]
		if last.Date.Equal(s.Date) && last.Index+last.Duration == s.Index && last.SameValue(s) {
			last.Duration++
			continue
		}
		out = append(out, s)
	}
	return out
}

func runLength(s model.PtuSlot) int {
	if s.Duration < 1 {
		return 1
	}
	return s.Duration
}
