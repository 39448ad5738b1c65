package model

import (
	"fmt"
	"time"
)

// DateRange is an inclusive range of UTC calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange normalizes both ends to UTC days.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// Valid reports whether Start is not after End.
func (r DateRange) Valid() bool {
	return !r.Start.After(r.End)
}

// Contains reports whether day t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns the number of calendar days in the range (0 if invalid).
func (r DateRange) Days() int {
	if !r.Valid() {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Each calls fn for every day in the range, in order.
func (r DateRange) Each(fn func(day time.Time)) {
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s]", DateKey(r.Start), DateKey(r.End))
}

// DateSet is a set of days keyed by DateKey.
type DateSet map[string]struct{}

// NewDateSet builds a set from the given days.
func NewDateSet(days ...time.Time) DateSet {
	s := make(DateSet, len(days))
	for _, d := range days {
		s.Add(d)
	}
	return s
}

func (s DateSet) Add(t time.Time)      { s[DateKey(t)] = struct{}{} }
func (s DateSet) Has(t time.Time) bool { _, ok := s[DateKey(t)]; return ok }
func (s DateSet) Len() int             { return len(s) }

// Merge adds every day of other into s.
func (s DateSet) Merge(other DateSet) {
	for k := range other {
		s[k] = struct{}{}
	}
}
