package availability

import (
	"time"

	"github.com/hackgods/clinic-scheduling-engine/internal/directory"
)

// Settings are the deployment defaults threaded into every availability query.
type Settings struct {
	DefaultDuration int // minutes
	DefaultBuffer   int // minutes
	Step            int // minutes between candidate starts
	Location        *time.Location
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// ResolveDuration picks the duration and trailing buffer for a booking.
// Duration precedence is override, then appointment type, then the default.
// The buffer comes from the type when one is known, otherwise the default.
func ResolveDuration(override int, t *directory.AppointmentType, s Settings) (duration, buffer int) {
	duration, buffer = s.DefaultDuration, s.DefaultBuffer
	if t != nil {
		duration = t.DurationMinutes
		buffer = t.BufferMinutes
	}
	if override > 0 {
		duration = override
	}
	return duration, buffer
}
