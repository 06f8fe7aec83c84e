// Package waitlist holds patients waiting for an earlier or freed slot and offers
// them time released by cancellations, no-shows and reschedules.
package waitlist

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

func (u Urgency) Valid() bool {
	return u.rank() > 0
}

func (u Urgency) rank() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyNormal:
		return 2
	case UrgencyHigh:
		return 3
	case UrgencyUrgent:
		return 4
	}
	return 0
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusNotified  Status = "notified"
	StatusFilled    Status = "filled"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusWaiting:  {StatusNotified, StatusFilled, StatusExpired, StatusCancelled},
	StatusNotified: {StatusFilled, StatusExpired, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusNotified, StatusFilled, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

func checkTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &apperr.Error{
		Kind:    apperr.KindInvalidTransition,
		Message: fmt.Sprintf("cannot transition waitlist entry from %s to %s", from, to),
	}
}

type Entry struct {
	ID                  uuid.UUID       `json:"id"`
	PatientID           uuid.UUID       `json:"patient_id"`
	PreferredProviderID *uuid.UUID      `json:"preferred_provider_id"`
	AppointmentTypeID   *uuid.UUID      `json:"appointment_type_id"`
	PreferredDays       []time.Weekday  `json:"preferred_days"`
	PreferredStart      *slot.TimeOfDay `json:"preferred_time_start"`
	PreferredEnd        *slot.TimeOfDay `json:"preferred_time_end"`
	Urgency             Urgency         `json:"urgency"`
	Status              Status          `json:"status"`
	Notes               *string         `json:"notes"`
	OfferedProviderID   *uuid.UUID      `json:"offered_provider_id"`
	OfferedStartAt      *time.Time      `json:"offered_start_at"`
	NotifiedAt          *time.Time      `json:"notified_at"`
	FilledAppointmentID *uuid.UUID      `json:"filled_appointment_id"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Opening is a stretch of provider time that became free.
type Opening struct {
	ProviderID        uuid.UUID
	AppointmentTypeID *uuid.UUID
	Start             time.Time
	End               time.Time
}

// Matches reports whether the opening fits every preference the entry states.
// Unset preferences match anything.
func (e Entry) Matches(o Opening, loc *time.Location) bool {
	if e.PreferredProviderID != nil && *e.PreferredProviderID != o.ProviderID {
		return false
	}
	if e.AppointmentTypeID != nil && (o.AppointmentTypeID == nil || *e.AppointmentTypeID != *o.AppointmentTypeID) {
		return false
	}
	start := o.Start.In(loc)
	if len(e.PreferredDays) > 0 && !slices.Contains(e.PreferredDays, start.Weekday()) {
		return false
	}
	at := slot.Of(start, loc)
	if e.PreferredStart != nil && at < *e.PreferredStart {
		return false
	}
	if e.PreferredEnd != nil && at >= *e.PreferredEnd {
		return false
	}
	return true
}

// rank orders entries most urgent first, then oldest first.
func rank(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if d := b.Urgency.rank() - a.Urgency.rank(); d != 0 {
			return d
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
