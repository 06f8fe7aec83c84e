package slot

import (
	"time"

	"github.com/google/uuid"
)

// BookingSource tells where a normalized booking came from.
type BookingSource string

const (
	SourceAppointment BookingSource = "appointment"
	SourceTimeOff     BookingSource = "time_off"
)

// Booking is an occupied interval for a provider and optionally a resource.
// Appointments contribute [start, reserved_until); time-off its whole block.
type Booking struct {
	Start      time.Time
	End        time.Time
	ProviderID uuid.UUID
	ResourceID *uuid.UUID
	Source     BookingSource
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Conflicts reports whether s collides with b. Provider and resource are separate keys:
// a booking blocks every slot of the same provider and every slot on the same resource.
func Conflicts(s Slot, b Booking) bool {
	if !sharesKey(s, b) {
		return false
	}
	return Overlaps(s.Start, s.ReservedEnd, b.Start, b.End)
}

func sharesKey(s Slot, b Booking) bool {
	if s.ProviderID == b.ProviderID {
		return true
	}
	return s.ResourceID != nil && b.ResourceID != nil && *s.ResourceID == *b.ResourceID
}

// FilterConflicts returns a copy of slots with Available set to false for every slot
// that collides with at least one booking.
func FilterConflicts(slots []Slot, bookings []Booking) []Slot {
	out := make([]Slot, len(slots))
	for i, s := range slots {
		s.Available = true
		for _, b := range bookings {
			if Conflicts(s, b) {
				s.Available = false
				break
			}
		}
		out[i] = s
	}
	return out
}

// Available keeps the slots marked available.
func Available(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}
