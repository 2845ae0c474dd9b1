// Package schedule defines the fixed daily grid of bookable court slots.
// A match occupies exactly one (date, start-time) pair from this grid; the
// club's court allocation beyond that pair is not this system's concern.
package schedule

import (
	"fmt"
	"time"
)

// DateLayout and TimeLayout are the canonical encodings for a slot's date
// and start time everywhere they are stored or exchanged.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Slot is one bookable window on the daily grid.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Grid is the ordered list of slots available every day.
type Grid []Slot

// DefaultGrid returns the club's standard day: 90-minute slots from 08:00
// to 23:00.
func DefaultGrid() Grid {
	return Grid{
		{Start: "08:00", End: "09:30"},
		{Start: "09:30", End: "11:00"},
		{Start: "11:00", End: "12:30"},
		{Start: "12:30", End: "14:00"},
		{Start: "14:00", End: "15:30"},
		{Start: "15:30", End: "17:00"},
		{Start: "17:00", End: "18:30"},
		{Start: "18:30", End: "20:00"},
		{Start: "20:00", End: "21:30"},
		{Start: "21:30", End: "23:00"},
	}
}

// Contains reports whether start is one of the grid's start times.
func (g Grid) Contains(start string) bool {
	for _, s := range g {
		if s.Start == start {
			return true
		}
	}
	return false
}

// Validate checks the grid is non-empty, well-formed and strictly ordered.
func (g Grid) Validate() error {
	if len(g) == 0 {
		return fmt.Errorf("grid has no slots")
	}
	var prev time.Time
	for i, s := range g {
		start, err := time.Parse(TimeLayout, s.Start)
		if err != nil {
			return fmt.Errorf("slot %d: bad start %q: %w", i, s.Start, err)
		}
		end, err := time.Parse(TimeLayout, s.End)
		if err != nil {
			return fmt.Errorf("slot %d: bad end %q: %w", i, s.End, err)
		}
		if !end.After(start) {
			return fmt.Errorf("slot %d: end %q not after start %q", i, s.End, s.Start)
		}
		if i > 0 && !start.After(prev) {
			return fmt.Errorf("slot %d: start %q not after previous start", i, s.Start)
		}
		prev = start
	}
	return nil
}

// SlotTime combines a stored (date, start) pair into a wall-clock time in
// the given location.
func SlotTime(date, start string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+start, loc)
}
