// Package timeline orders an officer's hours entries and justifications into
// a single activity feed.
//
// Open items come first: pending or approved justifications without an end
// date. Everything else is ordered by its closing date, newest first. Denied
// open-ended justifications have no closing date and compete on their start
// date instead.
package timeline

import (
	"cmp"
	"slices"

	"github.com/Tiliavir/rosterctl/internal/model"
)

// Compare orders two timeline entries. It returns a negative number when a
// comes before b, a positive number when it comes after, and zero only when
// a and b are the same record.
func Compare(a, b model.TimelineEntry) int {
	if c := compareRules(a, b); c != 0 {
		return c
	}
	// Ties: justifications first, then the most recent id.
	if a.Kind != b.Kind {
		if a.Kind == model.KindJustification {
			return -1
		}
		return 1
	}
	return cmp.Compare(b.ID(), a.ID())
}

func compareRules(a, b model.TimelineEntry) int {
	switch {
	case a.Kind == model.KindJustification && b.Kind == model.KindJustification:
		return compareJustifications(*a.Justification, *b.Justification)
	case a.Kind == model.KindJustification:
		return compareJustificationHours(*a.Justification, *b.Hours)
	case b.Kind == model.KindJustification:
		return -compareJustificationHours(*b.Justification, *a.Hours)
	default:
		return desc(a.Hours.WeekEnd, b.Hours.WeekEnd)
	}
}

func compareJustifications(a, b model.JustificationEntry) int {
	switch {
	case a.Open() && b.Open():
		if a.Denied() != b.Denied() {
			if a.Denied() {
				return 1
			}
			return -1
		}
		return desc(a.Start, b.Start)
	case a.Open():
		if a.Denied() {
			return desc(a.Start, b.Start)
		}
		return -1
	case b.Open():
		if b.Denied() {
			return desc(a.Start, b.Start)
		}
		return 1
	default:
		return desc(*a.End, *b.End)
	}
}

// compareJustificationHours always sorts an open justification before hours,
// denied or not.
func compareJustificationHours(j model.JustificationEntry, h model.HoursEntry) int {
	if j.Open() {
		return -1
	}
	return desc(*j.End, h.WeekEnd)
}

func desc(a, b int64) int {
	return cmp.Compare(b, a)
}

// Merge combines hours entries and justifications into one ordered feed.
// The inputs are not modified.
func Merge(hours []model.HoursEntry, justifications []model.JustificationEntry) []model.TimelineEntry {
	entries := make([]model.TimelineEntry, 0, len(hours)+len(justifications))
	for _, h := range hours {
		entries = append(entries, model.HoursItem(h))
	}
	for _, j := range justifications {
		entries = append(entries, model.JustificationItem(j))
	}
	Sort(entries)
	return entries
}

// Sort orders entries in place. The result depends only on the set of
// entries, not on their incoming order.
func Sort(entries []model.TimelineEntry) {
	slices.SortFunc(entries, canonical)
	slices.SortStableFunc(entries, Compare)
}

func canonical(a, b model.TimelineEntry) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.ID(), b.ID())
}

// Replace drops every entry of the given kind and merges in fresh, leaving
// entries of the other kind untouched. fresh must only hold entries of kind.
func Replace(entries []model.TimelineEntry, kind model.RecordKind, fresh []model.TimelineEntry) []model.TimelineEntry {
	out := make([]model.TimelineEntry, 0, len(entries)+len(fresh))
	for _, e := range entries {
		if e.Kind != kind {
			out = append(out, e)
		}
	}
	out = append(out, fresh...)
	Sort(out)
	return out
}

// Split separates a feed back into its two record kinds.
func Split(entries []model.TimelineEntry) ([]model.HoursEntry, []model.JustificationEntry) {
	var hours []model.HoursEntry
	var justifications []model.JustificationEntry
	for _, e := range entries {
		switch e.Kind {
		case model.KindHours:
			hours = append(hours, *e.Hours)
		case model.KindJustification:
			justifications = append(justifications, *e.Justification)
		}
	}
	return hours, justifications
}
