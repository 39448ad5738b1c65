// Package gap computes which days of a target range still need to be fetched.
package gap

import (
	"time"

	"MarketLedger/internal/model"
)

// Missing returns the ordered, maximal contiguous sub-ranges of target whose days are not in
// known. An invalid target yields nil.
func Missing(target model.DateRange, known model.DateSet) []model.DateRange {
	if !target.Valid() {
		return nil
	}
	var (
		out  []model.DateRange
		cur  model.DateRange
		open bool
	)
	target.Each(func(day time.Time) {
		if known.Has(day) {
			if open {
				out = append(out, cur)
				open = false
			}
			return
		}
		if !open {
			cur = model.DateRange{Start: day, End: day}
			open = true
			return
		}
		cur.End = day
	})
	if open {
		out = append(out, cur)
	}
	return out
}

// Dates flattens ranges into individual days.
func Dates(ranges []model.DateRange) []time.Time {
	var out []time.Time
	for _, r := range ranges {
		r.Each(func(day time.Time) { out = append(out, day) })
	}
	return out
}

// Count returns the number of days covered by ranges.
func Count(ranges []model.DateRange) int {
	n := 0
	for _, r := range ranges {
		n += r.Days()
	}
	return n
}
