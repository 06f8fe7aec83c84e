package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type NewProvider struct {
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Status     ProviderStatus `json:"status"`
	ResourceID *uuid.UUID     `json:"resource_id"`
}

// ProviderUpdate changes only the fields that are set.
type ProviderUpdate struct {
	FirstName     *string         `json:"first_name"`
	LastName      *string         `json:"last_name"`
	Status        *ProviderStatus `json:"status"`
	ResourceID    *uuid.UUID      `json:"resource_id"`
	ClearResource bool            `json:"clear_resource"`
}

type TemplateInput struct {
	DayOfWeek int            `json:"day_of_week"`
	Start     slot.TimeOfDay `json:"start_time"`
	End       slot.TimeOfDay `json:"end_time"`
}

type NewTimeOff struct {
	ProviderID uuid.UUID     `json:"provider_id"`
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	Status     TimeOffStatus `json:"status"`
	Reason     *string       `json:"reason"`
}

type NewResource struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type NewAppointmentType struct {
	Name              string      `json:"name"`
	Code              *string     `json:"code"`
	DurationMinutes   int         `json:"duration_minutes"`
	BufferMinutes     int         `json:"buffer_minutes"`
	EligibleProviders []uuid.UUID `json:"eligible_providers"`
	OnlineBookable    *bool       `json:"online_bookable"`
}

// Providers

func (s *Service) CreateProvider(ctx context.Context, in NewProvider) (*Provider, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" || in.LastName == "" {
		return nil, apperr.Validation("first_name and last_name are required")
	}
	if in.Status == "" {
		in.Status = ProviderActive
	}
	if !in.Status.Valid() {
		return nil, apperr.Validationf("unknown provider status %q", in.Status)
	}
	if in.ResourceID != nil {
		if _, err := s.repo.GetResource(ctx, *in.ResourceID); err != nil {
			return nil, err
		}
	}

	p, err := s.repo.CreateProvider(ctx, Provider{
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Status:     in.Status,
		ResourceID: in.ResourceID,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("provider_id", p.ID.String()).Msg("provider created")
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.repo.GetProvider(ctx, id)
}

func (s *Service) ListProviders(ctx context.Context, status string) ([]Provider, error) {
	if status == "" {
		return s.repo.ListProviders(ctx, nil)
	}
	st := ProviderStatus(status)
	if !st.Valid() {
		return nil, apperr.Validationf("unknown provider status %q", status)
	}
	return s.repo.ListProviders(ctx, &st)
}

func (s *Service) UpdateProvider(ctx context.Context, id uuid.UUID, upd ProviderUpdate) (*Provider, error) {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.FirstName != nil {
		p.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		p.LastName = strings.TrimSpace(*upd.LastName)
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, apperr.Validation("first_name and last_name must not be empty")
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, apperr.Validationf("unknown provider status %q", *upd.Status)
		}
		p.Status = *upd.Status
	}
	switch {
	case upd.ClearResource:
		p.ResourceID = nil
	case upd.ResourceID != nil:
		if _, err := s.repo.GetResource(ctx, *upd.ResourceID); err != nil {
			return nil, err
		}
		p.ResourceID = upd.ResourceID
	}

	updated, err := s.repo.UpdateProvider(ctx, *p)
	if err != nil {
		return nil, fmt.Errorf("update provider: %w", err)
	}
	return updated, nil
}

func (s *Service) ProviderCounts(ctx context.Context) (StatusCounts, error) {
	return s.repo.CountProvidersByStatus(ctx)
}

// Resources

func (s *Service) CreateResource(ctx context.Context, in NewResource) (*Resource, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validation("name is required")
	}
	if in.Kind == "" {
		in.Kind = "operatory"
	}
	return s.repo.CreateResource(ctx, Resource{Name: in.Name, Kind: in.Kind, Active: true})
}

func (s *Service) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	return s.repo.GetResource(ctx, id)
}

func (s *Service) ListResources(ctx context.Context) ([]Resource, error) {
	return s.repo.ListResources(ctx)
}

// Availability

// SetAvailability replaces a provider's weekly templates. Windows on the same day
// must not overlap; touching windows are fine.
func (s *Service) SetAvailability(ctx context.Context, providerID uuid.UUID, in []TemplateInput) ([]AvailabilityTemplate, error) {
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	templates := make([]AvailabilityTemplate, 0, len(in))
	for i, t := range in {
		if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
			return nil, apperr.Validationf("template %d: day_of_week must be 0-6", i)
		}
		if !t.Start.Valid() || !t.End.Valid() {
			return nil, apperr.Validationf("template %d: time outside the day", i)
		}
		if t.End <= t.Start {
			return nil, apperr.Validationf("template %d: end_time %s must be after start_time %s", i, t.End, t.Start)
		}
		templates = append(templates, AvailabilityTemplate{
			ProviderID: providerID,
			DayOfWeek:  time.Weekday(t.DayOfWeek),
			Start:      t.Start,
			End:        t.End,
		})
	}
	if err := checkTemplateOverlap(templates); err != nil {
		return nil, err
	}

	saved, err := s.repo.ReplaceTemplates(ctx, providerID, templates)
	if err != nil {
		return nil, fmt.Errorf("replace availability: %w", err)
	}
	return saved, nil
}

func checkTemplateOverlap(templates []AvailabilityTemplate) error {
	sorted := make([]AvailabilityTemplate, len(templates))
	copy(sorted, templates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DayOfWeek != sorted[j].DayOfWeek {
			return sorted[i].DayOfWeek < sorted[j].DayOfWeek
		}
		return sorted[i].Start < sorted[j].Start
	})
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.DayOfWeek == cur.DayOfWeek && cur.Start < prev.End {
			return apperr.Validationf("availability windows %s-%s and %s-%s on %s overlap",
				prev.Start, prev.End, cur.Start, cur.End, cur.DayOfWeek)
		}
	}
	return nil
}

func (s *Service) GetAvailability(ctx context.Context, providerID uuid.UUID) ([]AvailabilityTemplate, error) {
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.repo.ListTemplates(ctx, providerID)
}

func (s *Service) TemplatesForDay(ctx context.Context, day time.Weekday, providerID *uuid.UUID) ([]ProviderTemplate, error) {
	return s.repo.TemplatesForDay(ctx, day, providerID)
}

// Time-off

func (s *Service) AddTimeOff(ctx context.Context, in NewTimeOff) (*TimeOffBlock, error) {
	if in.Start.IsZero() || in.End.IsZero() {
		return nil, apperr.Validation("start and end are required")
	}
	if !in.End.After(in.Start) {
		return nil, apperr.Validation("time-off end must be after start")
	}
	if in.Status == "" {
		in.Status = TimeOffPending
	}
	if !in.Status.Valid() {
		return nil, apperr.Validationf("unknown time-off status %q", in.Status)
	}
	if _, err := s.repo.GetProvider(ctx, in.ProviderID); err != nil {
		return nil, err
	}

	b, err := s.repo.CreateTimeOff(ctx, TimeOffBlock{
		ProviderID: in.ProviderID,
		Start:      in.Start,
		End:        in.End,
		Status:     in.Status,
		Reason:     in.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("add time-off: %w", err)
	}
	return b, nil
}

func (s *Service) SetTimeOffStatus(ctx context.Context, id uuid.UUID, status TimeOffStatus) (*TimeOffBlock, error) {
	if !status.Valid() {
		return nil, apperr.Validationf("unknown time-off status %q", status)
	}
	return s.repo.SetTimeOffStatus(ctx, id, status)
}

func (s *Service) ListTimeOff(ctx context.Context, providerID uuid.UUID, from, to *time.Time) ([]TimeOffBlock, error) {
	return s.repo.ListTimeOff(ctx, providerID, from, to)
}

func (s *Service) ApprovedTimeOff(ctx context.Context, providerIDs []uuid.UUID, from, to time.Time) ([]TimeOffBlock, error) {
	return s.repo.ApprovedTimeOff(ctx, providerIDs, from, to)
}

// Appointment types

func (s *Service) CreateAppointmentType(ctx context.Context, in NewAppointmentType) (*AppointmentType, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validation("name is required")
	}
	if in.DurationMinutes <= 0 {
		return nil, apperr.Validation("duration_minutes must be positive")
	}
	if in.BufferMinutes < 0 {
		return nil, apperr.Validation("buffer_minutes must not be negative")
	}
	bookable := true
	if in.OnlineBookable != nil {
		bookable = *in.OnlineBookable
	}

	return s.repo.CreateAppointmentType(ctx, AppointmentType{
		Name:              in.Name,
		Code:              in.Code,
		DurationMinutes:   in.DurationMinutes,
		BufferMinutes:     in.BufferMinutes,
		EligibleProviders: in.EligibleProviders,
		OnlineBookable:    bookable,
		Active:            true,
	})
}

func (s *Service) GetAppointmentType(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	return s.repo.GetAppointmentType(ctx, id)
}

func (s *Service) ListAppointmentTypes(ctx context.Context, activeOnly bool) ([]AppointmentType, error) {
	return s.repo.ListAppointmentTypes(ctx, activeOnly)
}
