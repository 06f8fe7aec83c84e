package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ListFilter struct {
	Date       *time.Time
	From       *time.Time // appointment_date >= From
	To         *time.Time // appointment_date <= To
	ProviderID *uuid.UUID
	PatientID  *uuid.UUID
	Status     *Status
	Limit      int
	Offset     int
}

// StatusUpdate describes a status change applied only if the row still has the
// expected prior status.
type StatusUpdate struct {
	To     Status
	At     time.Time
	Reason *string
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f ListFilter) ([]Appointment, error)
	Upcoming(ctx context.Context, patientID uuid.UUID, now time.Time, limit int) ([]Appointment, error)
	// CountOnDate counts appointments on a calendar day that were not cancelled or rescheduled.
	CountOnDate(ctx context.Context, date time.Time, providerID *uuid.UUID) (int, error)
	// ActiveBetween returns active appointments whose reserved range overlaps [from, to).
	ActiveBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)

	// Insert stores a new appointment unless an active one overlaps it on the same
	// provider or resource, in which case it returns a slot conflict.
	Insert(ctx context.Context, a Appointment) (*Appointment, error)
	// UpdateStatus is a compare-and-set on the prior status. A row that is missing or
	// no longer in from yields a not-found error.
	UpdateStatus(ctx context.Context, id uuid.UUID, from Status, upd StatusUpdate) (*Appointment, error)
	// Reschedule tags the old row rescheduled, inserts next and links both in one
	// transaction. Nothing changes if any step fails.
	Reschedule(ctx context.Context, oldID uuid.UUID, from Status, next Appointment) (old, created *Appointment, err error)

	// FindOverdue returns active, not checked-in appointments that started before cutoff.
	FindOverdue(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
