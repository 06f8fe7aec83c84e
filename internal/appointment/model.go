package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCheckedIn   Status = "checked_in"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// ActiveStatuses occupy their time range for conflict purposes.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusCheckedIn}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusCompleted,
		StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

func (s Status) IsActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCheckedIn:
		return true
	}
	return false
}

// FreesSlot reports whether moving to s gives the booked time back. Completed
// visits used their time and free nothing.
func (s Status) FreesSlot() bool {
	switch s {
	case StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

type BookingSource string

const (
	SourceDashboard BookingSource = "dashboard"
	SourcePortal    BookingSource = "portal"
	SourcePhone     BookingSource = "phone"
	SourceAPI       BookingSource = "api"
)

func (s BookingSource) Valid() bool {
	switch s {
	case SourceDashboard, SourcePortal, SourcePhone, SourceAPI:
		return true
	}
	return false
}

// Appointment is one booking. Rows are never deleted; cancellation, no-show and
// rescheduling are terminal statuses on the same row.
type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	ProviderID         uuid.UUID
	ResourceID         *uuid.UUID
	AppointmentTypeID  *uuid.UUID
	Type               string
	Date               time.Time // calendar day in the clinic location
	StartAt            time.Time
	EndAt              time.Time // StartAt + DurationMinutes
	DurationMinutes    int
	BufferMinutes      int
	ReservedUntil      time.Time // EndAt + BufferMinutes
	Status             Status
	Source             BookingSource
	Price              *decimal.Decimal
	Notes              *string
	CheckedInAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	RescheduledFrom    *uuid.UUID
	RescheduledTo      *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Booking is the occupied interval of the appointment, buffer included.
func (a Appointment) Booking() slot.Booking {
	return slot.Booking{
		Start:      a.StartAt,
		End:        a.ReservedUntil,
		ProviderID: a.ProviderID,
		ResourceID: a.ResourceID,
		Source:     slot.SourceAppointment,
	}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
