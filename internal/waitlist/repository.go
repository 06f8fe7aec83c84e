package waitlist

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ListFilter struct {
	Status    *Status
	PatientID *uuid.UUID
}

// StatusUpdate is applied only while the entry still has the expected status.
type StatusUpdate struct {
	To                  Status
	At                  time.Time
	OfferedProviderID   *uuid.UUID
	OfferedStartAt      *time.Time
	FilledAppointmentID *uuid.UUID
}

type Repository interface {
	Insert(ctx context.Context, e Entry) (*Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	// List returns entries oldest first.
	List(ctx context.Context, f ListFilter) ([]Entry, error)
	// WaitingFor returns waiting entries that prefer providerID or have no preference.
	WaitingFor(ctx context.Context, providerID uuid.UUID) ([]Entry, error)
	// SetStatus yields a not-found error when the entry is gone or no longer in from.
	SetStatus(ctx context.Context, id uuid.UUID, from Status, upd StatusUpdate) (*Entry, error)
	// ExpireNotifiedBefore expires notified entries whose offer went out before cutoff.
	ExpireNotifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// ExpireWaitingBefore expires waiting entries created before cutoff.
	ExpireWaitingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
