package schedule

import "time"

// FirstAvailableSlot scans the schedule's gaps in ascending start order and
// returns the start of the first gap at least required long. A gap exactly
// equal to required qualifies. The slot list is sorted before scanning since
// stored order is not guaranteed.
func FirstAvailableSlot(s *Schedule, required time.Duration) (TimeOfDay, bool) {
	lastEnd := s.WorkingHours.Start

	for _, slot := range s.SortedSlots() {
		if slot.Start.Sub(lastEnd) >= required {
			return lastEnd, true
		}
		if slot.End.After(lastEnd) {
			lastEnd = slot.End
		}
	}

	if s.WorkingHours.End.Sub(lastEnd) >= required {
		return lastEnd, true
	}
	return 0, false
}
