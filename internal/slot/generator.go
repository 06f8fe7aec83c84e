// Package slot holds the pure interval arithmetic of the engine: candidate slot
// generation over a working window and conflict filtering against bookings.
package slot

import (
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
)

// Slot is a candidate or available appointment interval. It is derived per query
// and never persisted.
type Slot struct {
	Start             time.Time  `json:"start"`
	End               time.Time  `json:"end"`
	ReservedEnd       time.Time  `json:"-"`
	ProviderID        uuid.UUID  `json:"provider_id"`
	ProviderName      string     `json:"provider_name"`
	ResourceID        *uuid.UUID `json:"resource_id,omitempty"`
	AppointmentTypeID *uuid.UUID `json:"appointment_type_id,omitempty"`
	DurationMinutes   int        `json:"duration_minutes"`
	Available         bool       `json:"available"`
}

// GenerateParams describes one provider's working window on one day.
type GenerateParams struct {
	Date              time.Time
	WorkStart         TimeOfDay
	WorkEnd           TimeOfDay
	DurationMinutes   int
	BufferMinutes     int
	StepMinutes       int
	ProviderID        uuid.UUID
	ProviderName      string
	ResourceID        *uuid.UUID
	AppointmentTypeID *uuid.UUID
	Location          *time.Location
}

func (p GenerateParams) validate() error {
	switch {
	case p.StepMinutes <= 0:
		return apperr.Validationf("step must be positive, got %d", p.StepMinutes)
	case p.DurationMinutes <= 0:
		return apperr.Validationf("duration must be positive, got %d", p.DurationMinutes)
	case p.BufferMinutes < 0:
		return apperr.Validationf("buffer must not be negative, got %d", p.BufferMinutes)
	case !p.WorkStart.Valid() || !p.WorkEnd.Valid():
		return apperr.Validation("working window is outside the day")
	case p.WorkEnd <= p.WorkStart:
		return apperr.Validationf("working window end %s is not after start %s", p.WorkEnd, p.WorkStart)
	}
	return nil
}

// Generate returns the ordered candidate slots of a working window. A slot starts at
// WorkStart and every StepMinutes after it while start+duration fits in the window.
// End is start+duration; ReservedEnd adds the trailing buffer and is what conflict
// checks use, so the buffer may run past WorkEnd.
//
// The sequence is lazy and may be ranged over any number of times.
func Generate(p GenerateParams) (iter.Seq[Slot], error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	duration := time.Duration(p.DurationMinutes) * time.Minute
	buffer := time.Duration(p.BufferMinutes) * time.Minute

	return func(yield func(Slot) bool) {
		for m := p.WorkStart; m+TimeOfDay(p.DurationMinutes) <= p.WorkEnd; m += TimeOfDay(p.StepMinutes) {
			start := m.On(p.Date, loc)
			end := start.Add(duration)
			s := Slot{
				Start:             start,
				End:               end,
				ReservedEnd:       end.Add(buffer),
				ProviderID:        p.ProviderID,
				ProviderName:      p.ProviderName,
				ResourceID:        p.ResourceID,
				AppointmentTypeID: p.AppointmentTypeID,
				DurationMinutes:   p.DurationMinutes,
				Available:         true,
			}
			if !yield(s) {
				return
			}
		}
	}, nil
}
