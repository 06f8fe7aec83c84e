package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/availability"
	"github.com/hackgods/clinic-scheduling-engine/internal/directory"
	"github.com/hackgods/clinic-scheduling-engine/internal/lock"
	"github.com/hackgods/clinic-scheduling-engine/internal/notify"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentRescheduled   = "APPOINTMENT_RESCHEDULED"

	defaultUpcomingLimit = 5
)

// Directory is the part of the provider directory the lifecycle manager reads.
type Directory interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
	GetResource(ctx context.Context, id uuid.UUID) (*directory.Resource, error)
	GetAppointmentType(ctx context.Context, id uuid.UUID) (*directory.AppointmentType, error)
	ApprovedTimeOff(ctx context.Context, providerIDs []uuid.UUID, from, to time.Time) ([]directory.TimeOffBlock, error)
}

// SlotReleaseHandler hears about time that became free again. Failures are
// logged by the caller and never undo the status change.
type SlotReleaseHandler interface {
	SlotReleased(ctx context.Context, a Appointment) error
}

// BookingNotifier is told about every new booking, replacements included.
type BookingNotifier interface {
	AppointmentBooked(ctx context.Context, p notify.AppointmentBooked) error
}

type Service struct {
	repo     Repository
	dir      Directory
	locker   lock.Locker
	settings availability.Settings
	releases SlotReleaseHandler
	notifier BookingNotifier
	now      func() time.Time
}

func NewService(repo Repository, dir Directory, locker lock.Locker, settings availability.Settings) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		locker:   locker,
		settings: settings,
		now:      time.Now,
	}
}

// OnSlotReleased registers the handler told about cancelled, no-show and
// rescheduled appointments.
func (s *Service) OnSlotReleased(h SlotReleaseHandler) {
	s.releases = h
}

func (s *Service) NotifyBookings(n BookingNotifier) {
	s.notifier = n
}

type CreateRequest struct {
	PatientID         uuid.UUID
	ProviderID        uuid.UUID
	Date              time.Time
	Start             slot.TimeOfDay
	DurationMinutes   int // 0 resolves from the type or the default
	Type              string
	AppointmentTypeID *uuid.UUID
	ResourceID        *uuid.UUID
	Price             *decimal.Decimal
	Notes             *string
	Source            BookingSource
}

type RescheduleRequest struct {
	Date            time.Time
	Start           slot.TimeOfDay
	ProviderID      *uuid.UUID // defaults to the current provider
	ResourceID      *uuid.UUID // defaults to the current resource
	DurationMinutes int        // defaults to the current duration
}

// Create books an appointment after checking it against active bookings and
// approved time-off. Conflicts on the provider or resource return a slot conflict.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if req.ProviderID == uuid.Nil {
		return nil, apperr.Validation("provider_id is required")
	}
	if req.Source == "" {
		req.Source = SourceDashboard
	}
	if !req.Source.Valid() {
		return nil, apperr.Validationf("unknown booking source %q", req.Source)
	}
	if req.Price != nil && req.Price.IsNegative() {
		return nil, apperr.Validation("price must not be negative")
	}

	draft, err := s.draft(ctx, draftInput{
		patientID:         req.PatientID,
		providerID:        req.ProviderID,
		resourceID:        req.ResourceID,
		appointmentTypeID: req.AppointmentTypeID,
		date:              req.Date,
		start:             req.Start,
		duration:          req.DurationMinutes,
		typeLabel:         req.Type,
	})
	if err != nil {
		return nil, err
	}
	draft.Status = StatusScheduled
	draft.Source = req.Source
	draft.Price = req.Price
	draft.Notes = req.Notes

	var created *Appointment
	err = s.locker.WithLock(ctx, lockKeys(draft), func(lockCtx context.Context) error {
		var err error
		created, err = s.repo.Insert(lockCtx, *draft)
		return err
	})
	if err != nil {
		return nil, s.writeError("create appointment", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", created.ProviderID.String()).
		Time("start_at", created.StartAt).
		Msg("appointment created")

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"patient_id":  created.PatientID.String(),
		"provider_id": created.ProviderID.String(),
		"start_at":    created.StartAt,
		"end_at":      created.EndAt,
		"source":      created.Source,
	})
	s.booked(ctx, *created)
	return created, nil
}

type draftInput struct {
	patientID         uuid.UUID
	providerID        uuid.UUID
	resourceID        *uuid.UUID
	appointmentTypeID *uuid.UUID
	date              time.Time
	start             slot.TimeOfDay
	duration          int
	typeLabel         string
}

// draft validates the references of a booking and computes its interval.
func (s *Service) draft(ctx context.Context, in draftInput) (*Appointment, error) {
	if in.date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if !in.start.Valid() || in.start == slot.MinutesPerDay {
		return nil, apperr.Validationf("start time %s is outside the day", in.start)
	}
	if in.duration < 0 {
		return nil, apperr.Validation("duration_minutes must be positive")
	}

	provider, err := s.dir.GetProvider(ctx, in.providerID)
	if err != nil {
		return nil, err
	}
	if !provider.IsActive() {
		return nil, apperr.Validationf("provider %s is %s and cannot take bookings", provider.ID, provider.Status)
	}

	var apptType *directory.AppointmentType
	if in.appointmentTypeID != nil {
		apptType, err = s.dir.GetAppointmentType(ctx, *in.appointmentTypeID)
		if err != nil {
			return nil, err
		}
		if !apptType.Active {
			return nil, apperr.Validationf("appointment type %q is inactive", apptType.Name)
		}
		if !apptType.IsEligible(provider.ID) {
			return nil, apperr.Validationf("provider %s is not eligible for %q", provider.Name(), apptType.Name)
		}
	}

	resourceID := in.resourceID
	if resourceID == nil {
		resourceID = provider.ResourceID
	}
	if resourceID != nil {
		res, err := s.dir.GetResource(ctx, *resourceID)
		if err != nil {
			return nil, err
		}
		if !res.Active {
			return nil, apperr.Validationf("resource %q is inactive", res.Name)
		}
	}

	duration, buffer := availability.ResolveDuration(in.duration, apptType, s.settings)
	label := strings.TrimSpace(in.typeLabel)
	if label == "" && apptType != nil {
		label = apptType.Name
	}
	if label == "" {
		return nil, apperr.Validation("type is required")
	}

	loc := s.settings.Location
	day, _ := slot.DayBounds(in.date, loc)
	start := in.start.On(day, loc)
	end := start.Add(time.Duration(duration) * time.Minute)
	reserved := end.Add(time.Duration(buffer) * time.Minute)

	timeOff, err := s.dir.ApprovedTimeOff(ctx, []uuid.UUID{provider.ID}, start, reserved)
	if err != nil {
		return nil, fmt.Errorf("load time-off: %w", err)
	}
	if len(timeOff) > 0 {
		return nil, apperr.SlotConflict("provider has approved time off during the requested time, re-check availability")
	}

	var typeID *uuid.UUID
	if apptType != nil {
		typeID = &apptType.ID
	}
	return &Appointment{
		PatientID:         in.patientID,
		ProviderID:        provider.ID,
		ResourceID:        resourceID,
		AppointmentTypeID: typeID,
		Type:              label,
		Date:              day,
		StartAt:           start,
		EndAt:             end,
		DurationMinutes:   duration,
		BufferMinutes:     buffer,
		ReservedUntil:     reserved,
	}, nil
}

func lockKeys(a *Appointment) []string {
	keys := []string{lock.ProviderKey(a.ProviderID)}
	if a.ResourceID != nil {
		keys = append(keys, lock.ResourceKey(*a.ResourceID))
	}
	return keys
}

// writeError maps lock failures on the write path. Waiting too long for a lock is
// retryable and never reported as a conflict.
func (s *Service) writeError(op string, err error) error {
	if errors.Is(err, lock.ErrLockNotAcquired) {
		return apperr.StoreUnavailable("booking is busy for this provider, retry shortly", err)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.StoreUnavailable(op+" timed out", err)
	}
	return apperr.StoreUnavailable(op+": lock service unavailable", err)
}

type StatusExtras struct {
	Reason *string
}

// UpdateStatus moves an appointment along the lifecycle. The change is applied only
// if the row still holds the status it was validated against. Moving to rescheduled
// here only tags the row; Reschedule also books the replacement.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, extras StatusExtras) (*Appointment, error) {
	if !to.Valid() {
		return nil, apperr.Validationf("unknown status %q", to)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current.Status, to); err != nil {
		return nil, err
	}

	now := s.now()
	if to == StatusNoShow && now.Before(current.StartAt) {
		return nil, apperr.Validation("cannot mark no_show before the appointment starts")
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, StatusUpdate{To: to, At: now, Reason: extras.Reason})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, s.lostRace(ctx, id, to)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	payload := map[string]any{"from": current.Status, "to": to}
	if extras.Reason != nil {
		payload["reason"] = *extras.Reason
	}
	s.logEvent(ctx, updated.ID, EventAppointmentStatusChanged, payload)

	if to.FreesSlot() {
		s.release(ctx, *updated)
	}
	return updated, nil
}

// lostRace explains a compare-and-set that matched no row: either the row is gone
// or another writer moved it first.
func (s *Service) lostRace(ctx context.Context, id uuid.UUID, to Status) error {
	latest, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return apperr.InvalidTransition(string(latest.Status), string(to))
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.UpdateStatus(ctx, id, StatusConfirmed, StatusExtras{})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	var r *string
	if reason = strings.TrimSpace(reason); reason != "" {
		r = &reason
	}
	return s.UpdateStatus(ctx, id, StatusCancelled, StatusExtras{Reason: r})
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.UpdateStatus(ctx, id, StatusCheckedIn, StatusExtras{})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.UpdateStatus(ctx, id, StatusCompleted, StatusExtras{})
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.UpdateStatus(ctx, id, StatusNoShow, StatusExtras{})
}

// Reschedule books the new time and tags the old appointment rescheduled with
// links in both directions. On any failure the old appointment is left as it was.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (old, created *Appointment, err error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := checkTransition(current.Status, StatusRescheduled); err != nil {
		return nil, nil, err
	}

	providerID := current.ProviderID
	if req.ProviderID != nil {
		providerID = *req.ProviderID
	}
	resourceID := current.ResourceID
	if req.ResourceID != nil {
		resourceID = req.ResourceID
	} else if req.ProviderID != nil && *req.ProviderID != current.ProviderID {
		resourceID = nil
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = current.DurationMinutes
	}

	draft, err := s.draft(ctx, draftInput{
		patientID:         current.PatientID,
		providerID:        providerID,
		resourceID:        resourceID,
		appointmentTypeID: current.AppointmentTypeID,
		date:              req.Date,
		start:             req.Start,
		duration:          duration,
		typeLabel:         current.Type,
	})
	if err != nil {
		return nil, nil, err
	}
	draft.Status = StatusScheduled
	draft.Source = current.Source
	draft.Price = current.Price
	draft.Notes = current.Notes

	keys := append(lockKeys(current), lockKeys(draft)...)
	err = s.locker.WithLock(ctx, keys, func(lockCtx context.Context) error {
		var err error
		old, created, err = s.repo.Reschedule(lockCtx, current.ID, current.Status, *draft)
		return err
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			if raceErr := s.lostRace(ctx, id, StatusRescheduled); !errors.Is(raceErr, apperr.ErrNotFound) {
				return nil, nil, raceErr
			}
		}
		return nil, nil, s.writeError("reschedule appointment", err)
	}

	s.logEvent(ctx, old.ID, EventAppointmentRescheduled, map[string]any{
		"from":               current.Status,
		"new_appointment_id": created.ID.String(),
		"start_at":           created.StartAt,
	})
	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"patient_id":       created.PatientID.String(),
		"provider_id":      created.ProviderID.String(),
		"start_at":         created.StartAt,
		"end_at":           created.EndAt,
		"rescheduled_from": old.ID.String(),
	})
	s.release(ctx, *old)
	s.booked(ctx, *created)

	return old, created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, apperr.Validationf("unknown status %q", *f.Status)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, apperr.Validation("to must not be before from")
	}
	return s.repo.List(ctx, f)
}

// Upcoming returns the patient's active appointments that have not ended yet.
func (s *Service) Upcoming(ctx context.Context, patientID uuid.UUID, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	if limit > 50 {
		limit = 50
	}
	return s.repo.Upcoming(ctx, patientID, s.now(), limit)
}

// TodayCount counts today's appointments in the clinic timezone, excluding
// cancelled and rescheduled ones.
func (s *Service) TodayCount(ctx context.Context, providerID *uuid.UUID) (int, error) {
	today, _ := slot.DayBounds(s.now().In(s.settings.Location), s.settings.Location)
	return s.repo.CountOnDate(ctx, today, providerID)
}

// ActiveBookingsBetween feeds the availability aggregator.
func (s *Service) ActiveBookingsBetween(ctx context.Context, from, to time.Time) ([]slot.Booking, error) {
	appts, err := s.repo.ActiveBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]slot.Booking, len(appts))
	for i, a := range appts {
		out[i] = a.Booking()
	}
	return out, nil
}

// MarkOverdueNoShows marks appointments that started more than grace ago and were
// never checked in. It returns how many were marked.
func (s *Service) MarkOverdueNoShows(ctx context.Context, grace time.Duration) (int, error) {
	log := zerolog.Ctx(ctx)
	overdue, err := s.repo.FindOverdue(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for _, a := range overdue {
		_, err := s.UpdateStatus(ctx, a.ID, StatusNoShow, StatusExtras{})
		if err != nil {
			if errors.Is(err, apperr.ErrInvalidTransition) {
				continue
			}
			log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to mark no-show")
			continue
		}
		marked++
	}
	return marked, nil
}

func (s *Service) release(ctx context.Context, a Appointment) {
	if s.releases == nil {
		return
	}
	if err := s.releases.SlotReleased(ctx, a); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("slot release handler failed")
	}
}

func (s *Service) booked(ctx context.Context, a Appointment) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.AppointmentBooked(ctx, notify.AppointmentBooked{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		ProviderID:    a.ProviderID,
		ResourceID:    a.ResourceID,
		Type:          a.Type,
		StartAt:       a.StartAt,
		EndAt:         a.EndAt,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("booking notification failed")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	log := zerolog.Ctx(ctx)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
