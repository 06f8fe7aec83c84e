package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/notify"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

// Notifier delivers slot offers to waiting patients.
type Notifier interface {
	WaitlistOpening(ctx context.Context, p notify.WaitlistOpening) error
}

type Settings struct {
	Location *time.Location
	// OfferTTL is how long a notified patient has before the offer lapses.
	OfferTTL time.Duration
}

type Coordinator struct {
	repo     Repository
	notifier Notifier
	settings Settings
	now      func() time.Time
}

func NewCoordinator(repo Repository, notifier Notifier, settings Settings) *Coordinator {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Coordinator{
		repo:     repo,
		notifier: notifier,
		settings: settings,
		now:      time.Now,
	}
}

type NewEntry struct {
	PatientID           uuid.UUID       `json:"patient_id"`
	PreferredProviderID *uuid.UUID      `json:"preferred_provider_id"`
	AppointmentTypeID   *uuid.UUID      `json:"appointment_type_id"`
	PreferredDays       []int           `json:"preferred_days"`
	PreferredStart      *slot.TimeOfDay `json:"preferred_time_start"`
	PreferredEnd        *slot.TimeOfDay `json:"preferred_time_end"`
	Urgency             Urgency         `json:"urgency"`
	Notes               *string         `json:"notes"`
}

func (c *Coordinator) Add(ctx context.Context, in NewEntry) (*Entry, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if in.Urgency == "" {
		in.Urgency = UrgencyNormal
	}
	if !in.Urgency.Valid() {
		return nil, apperr.Validationf("unknown urgency %q", in.Urgency)
	}

	days := make([]time.Weekday, 0, len(in.PreferredDays))
	for _, d := range in.PreferredDays {
		if d < 0 || d > 6 {
			return nil, apperr.Validationf("preferred day %d must be between 0 (Sunday) and 6", d)
		}
		days = append(days, time.Weekday(d))
	}
	for _, t := range []*slot.TimeOfDay{in.PreferredStart, in.PreferredEnd} {
		if t != nil && !t.Valid() {
			return nil, apperr.Validationf("preferred time %d is outside the day", int(*t))
		}
	}
	if in.PreferredStart != nil && in.PreferredEnd != nil && *in.PreferredEnd <= *in.PreferredStart {
		return nil, apperr.Validation("preferred_time_end must be after preferred_time_start")
	}
	if in.Notes != nil {
		n := strings.TrimSpace(*in.Notes)
		in.Notes = &n
	}

	e, err := c.repo.Insert(ctx, Entry{
		PatientID:           in.PatientID,
		PreferredProviderID: in.PreferredProviderID,
		AppointmentTypeID:   in.AppointmentTypeID,
		PreferredDays:       days,
		PreferredStart:      in.PreferredStart,
		PreferredEnd:        in.PreferredEnd,
		Urgency:             in.Urgency,
		Status:              StatusWaiting,
		Notes:               in.Notes,
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("entry_id", e.ID.String()).
		Str("patient_id", e.PatientID.String()).
		Str("urgency", string(e.Urgency)).
		Msg("waitlist entry added")
	return e, nil
}

func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return c.repo.Get(ctx, id)
}

func (c *Coordinator) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, apperr.Validationf("unknown waitlist status %q", *f.Status)
	}
	return c.repo.List(ctx, f)
}

func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return c.move(ctx, id, StatusUpdate{To: StatusCancelled})
}

// MarkFilled closes the entry once the patient has been booked.
func (c *Coordinator) MarkFilled(ctx context.Context, id, appointmentID uuid.UUID) (*Entry, error) {
	if appointmentID == uuid.Nil {
		return nil, apperr.Validation("appointment_id is required")
	}
	return c.move(ctx, id, StatusUpdate{To: StatusFilled, FilledAppointmentID: &appointmentID})
}

func (c *Coordinator) move(ctx context.Context, id uuid.UUID, upd StatusUpdate) (*Entry, error) {
	current, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current.Status, upd.To); err != nil {
		return nil, err
	}
	upd.At = c.now()
	e, err := c.repo.SetStatus(ctx, id, current.Status, upd)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			latest, getErr := c.repo.Get(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, checkTransition(latest.Status, upd.To)
		}
		return nil, err
	}
	return e, nil
}

// SlotReleased offers the time freed by an appointment to the best matching
// waiting entry. At most one entry is notified per freed slot.
func (c *Coordinator) SlotReleased(ctx context.Context, a appointment.Appointment) error {
	now := c.now()
	if !a.StartAt.After(now) {
		return nil
	}
	opening := Opening{
		ProviderID:        a.ProviderID,
		AppointmentTypeID: a.AppointmentTypeID,
		Start:             a.StartAt,
		End:               a.EndAt,
	}

	candidates, err := c.repo.WaitingFor(ctx, a.ProviderID)
	if err != nil {
		return fmt.Errorf("load waitlist candidates: %w", err)
	}
	matching := candidates[:0]
	for _, e := range candidates {
		if e.Matches(opening, c.settings.Location) {
			matching = append(matching, e)
		}
	}
	rank(matching)

	for _, e := range matching {
		notified, err := c.repo.SetStatus(ctx, e.ID, StatusWaiting, StatusUpdate{
			To:                StatusNotified,
			At:                now,
			OfferedProviderID: &opening.ProviderID,
			OfferedStartAt:    &opening.Start,
		})
		if errors.Is(err, apperr.ErrNotFound) {
			// Another release claimed this entry first.
			continue
		}
		if err != nil {
			return fmt.Errorf("notify waitlist entry: %w", err)
		}

		zerolog.Ctx(ctx).Info().
			Str("entry_id", notified.ID.String()).
			Str("provider_id", opening.ProviderID.String()).
			Time("start_at", opening.Start).
			Msg("waitlist entry offered freed slot")

		return c.notifier.WaitlistOpening(ctx, notify.WaitlistOpening{
			EntryID:           notified.ID,
			PatientID:         notified.PatientID,
			ProviderID:        opening.ProviderID,
			AppointmentTypeID: opening.AppointmentTypeID,
			StartAt:           opening.Start,
			EndAt:             opening.End,
			ExpiresAt:         c.offerExpiry(now, opening.Start),
		})
	}
	return nil
}

func (c *Coordinator) offerExpiry(now, start time.Time) time.Time {
	if c.settings.OfferTTL <= 0 {
		return start
	}
	exp := now.Add(c.settings.OfferTTL)
	if exp.After(start) {
		return start
	}
	return exp
}

type ExpireResult struct {
	Notified int64
	Waiting  int64
}

// ExpireStale lapses offers older than notifiedTTL and entries that have waited
// longer than maxAge. A zero duration skips that half.
func (c *Coordinator) ExpireStale(ctx context.Context, notifiedTTL, maxAge time.Duration) (ExpireResult, error) {
	var res ExpireResult
	now := c.now()

	if notifiedTTL > 0 {
		n, err := c.repo.ExpireNotifiedBefore(ctx, now.Add(-notifiedTTL))
		if err != nil {
			return res, fmt.Errorf("expire notified entries: %w", err)
		}
		res.Notified = n
	}
	if maxAge > 0 {
		n, err := c.repo.ExpireWaitingBefore(ctx, now.Add(-maxAge))
		if err != nil {
			return res, fmt.Errorf("expire waiting entries: %w", err)
		}
		res.Waiting = n
	}

	if res.Notified > 0 || res.Waiting > 0 {
		zerolog.Ctx(ctx).Info().
			Int64("notified_expired", res.Notified).
			Int64("waiting_expired", res.Waiting).
			Msg("waitlist entries expired")
	}
	return res, nil
}
