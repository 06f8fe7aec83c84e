package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains the DB interactions of the directory.
type Repository interface {
	CreateProvider(ctx context.Context, p Provider) (*Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context, status *ProviderStatus) ([]Provider, error)
	UpdateProvider(ctx context.Context, p Provider) (*Provider, error)
	CountProvidersByStatus(ctx context.Context) (StatusCounts, error)

	CreateResource(ctx context.Context, r Resource) (*Resource, error)
	GetResource(ctx context.Context, id uuid.UUID) (*Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)

	// ReplaceTemplates swaps a provider's whole weekly template set atomically.
	ReplaceTemplates(ctx context.Context, providerID uuid.UUID, templates []AvailabilityTemplate) ([]AvailabilityTemplate, error)
	ListTemplates(ctx context.Context, providerID uuid.UUID) ([]AvailabilityTemplate, error)
	TemplatesForDay(ctx context.Context, day time.Weekday, providerID *uuid.UUID) ([]ProviderTemplate, error)

	CreateTimeOff(ctx context.Context, b TimeOffBlock) (*TimeOffBlock, error)
	SetTimeOffStatus(ctx context.Context, id uuid.UUID, status TimeOffStatus) (*TimeOffBlock, error)
	ListTimeOff(ctx context.Context, providerID uuid.UUID, from, to *time.Time) ([]TimeOffBlock, error)
	// ApprovedTimeOff returns approved blocks of the given providers that overlap [from, to).
	ApprovedTimeOff(ctx context.Context, providerIDs []uuid.UUID, from, to time.Time) ([]TimeOffBlock, error)

	CreateAppointmentType(ctx context.Context, t AppointmentType) (*AppointmentType, error)
	GetAppointmentType(ctx context.Context, id uuid.UUID) (*AppointmentType, error)
	ListAppointmentTypes(ctx context.Context, activeOnly bool) ([]AppointmentType, error)
}
