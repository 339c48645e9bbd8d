package domain

import "time"

// PreviousBusinessFriday returns the Friday immediately preceding start,
// always strictly before it. A staged task's nominal ready date is the last
// working day before the block it is staged for begins.
//
// The result is computed once at task creation and stored; it is never
// recalculated from a later-edited list start date.
func PreviousBusinessFriday(start time.Time) time.Time {
	d := start.AddDate(0, 0, -1)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
