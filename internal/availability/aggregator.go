// Package availability answers "which slots are free on this day" by combining
// weekly templates, appointment types, approved time-off and active bookings.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/directory"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

// Directory is the read side of the provider directory used here.
type Directory interface {
	TemplatesForDay(ctx context.Context, day time.Weekday, providerID *uuid.UUID) ([]directory.ProviderTemplate, error)
	ApprovedTimeOff(ctx context.Context, providerIDs []uuid.UUID, from, to time.Time) ([]directory.TimeOffBlock, error)
	GetAppointmentType(ctx context.Context, id uuid.UUID) (*directory.AppointmentType, error)
}

// BookingReader returns active appointments overlapping [from, to) as bookings.
type BookingReader interface {
	ActiveBookingsBetween(ctx context.Context, from, to time.Time) ([]slot.Booking, error)
}

type Query struct {
	Date              time.Time
	ProviderID        *uuid.UUID
	AppointmentTypeID *uuid.UUID
	DurationOverride  int // minutes, 0 for none
}

type Aggregator struct {
	dir      Directory
	bookings BookingReader
	settings Settings
}

func NewAggregator(dir Directory, bookings BookingReader, settings Settings) *Aggregator {
	return &Aggregator{dir: dir, bookings: bookings, settings: settings}
}

func (a *Aggregator) Settings() Settings {
	return a.settings
}

// AvailableSlots returns the free slots of q.Date ordered by start time, then
// provider name. No templates for the day yields an empty result, not an error.
func (a *Aggregator) AvailableSlots(ctx context.Context, q Query) ([]slot.Slot, error) {
	if q.Date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if q.DurationOverride < 0 {
		return nil, apperr.Validation("duration must be positive")
	}
	log := zerolog.Ctx(ctx)
	loc := a.settings.location()

	apptType, err := a.appointmentType(ctx, q.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	duration, buffer := ResolveDuration(q.DurationOverride, apptType, a.settings)

	dayStart, dayEnd := slot.DayBounds(q.Date, loc)
	templates, err := a.dir.TemplatesForDay(ctx, dayStart.Weekday(), q.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load availability templates: %w", err)
	}
	if len(templates) == 0 {
		return []slot.Slot{}, nil
	}

	providerIDs := uniqueProviders(templates)
	// Buffers of late slots may run past midnight.
	windowEnd := dayEnd.Add(time.Duration(buffer) * time.Minute)

	var timeOff []directory.TimeOffBlock
	var booked []slot.Booking
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		timeOff, err = a.dir.ApprovedTimeOff(gctx, providerIDs, dayStart, windowEnd)
		if err != nil {
			return fmt.Errorf("load time-off: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		booked, err = a.bookings.ActiveBookingsBetween(gctx, dayStart, windowEnd)
		if err != nil {
			return fmt.Errorf("load bookings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bookings := make([]slot.Booking, 0, len(booked)+len(timeOff))
	bookings = append(bookings, booked...)
	for _, b := range timeOff {
		bookings = append(bookings, slot.Booking{
			Start:      b.Start,
			End:        b.End,
			ProviderID: b.ProviderID,
			Source:     slot.SourceTimeOff,
		})
	}

	var typeID *uuid.UUID
	if apptType != nil {
		typeID = &apptType.ID
	}

	var candidates []slot.Slot
	for _, t := range templates {
		if !t.Provider.IsActive() {
			continue
		}
		if apptType != nil && !apptType.IsEligible(t.ProviderID) {
			continue
		}
		seq, err := slot.Generate(slot.GenerateParams{
			Date:              dayStart,
			WorkStart:         t.Start,
			WorkEnd:           t.End,
			DurationMinutes:   duration,
			BufferMinutes:     buffer,
			StepMinutes:       a.settings.Step,
			ProviderID:        t.ProviderID,
			ProviderName:      t.Provider.Name(),
			ResourceID:        t.Provider.ResourceID,
			AppointmentTypeID: typeID,
			Location:          loc,
		})
		if err != nil {
			log.Warn().Err(err).Str("template_id", t.ID.String()).Msg("skipping unusable availability template")
			continue
		}
		for s := range seq {
			candidates = append(candidates, s)
		}
	}

	available := slot.Available(slot.FilterConflicts(candidates, bookings))
	sort.SliceStable(available, func(i, j int) bool {
		if !available[i].Start.Equal(available[j].Start) {
			return available[i].Start.Before(available[j].Start)
		}
		if available[i].ProviderName != available[j].ProviderName {
			return available[i].ProviderName < available[j].ProviderName
		}
		return available[i].ProviderID.String() < available[j].ProviderID.String()
	})

	log.Debug().
		Time("date", dayStart).
		Int("candidates", len(candidates)).
		Int("bookings", len(bookings)).
		Int("available", len(available)).
		Msg("computed availability")

	return available, nil
}

// appointmentType loads the requested type. An unknown or inactive type falls
// back to the defaults rather than failing the query.
func (a *Aggregator) appointmentType(ctx context.Context, id *uuid.UUID) (*directory.AppointmentType, error) {
	if id == nil {
		return nil, nil
	}
	t, err := a.dir.GetAppointmentType(ctx, *id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			zerolog.Ctx(ctx).Info().Str("appointment_type_id", id.String()).Msg("unknown appointment type, using defaults")
			return nil, nil
		}
		return nil, fmt.Errorf("load appointment type: %w", err)
	}
	if !t.Active {
		zerolog.Ctx(ctx).Info().Str("appointment_type_id", id.String()).Msg("inactive appointment type, using defaults")
		return nil, nil
	}
	return t, nil
}

func uniqueProviders(templates []directory.ProviderTemplate) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(templates))
	var ids []uuid.UUID
	for _, t := range templates {
		if _, ok := seen[t.ProviderID]; ok {
			continue
		}
		seen[t.ProviderID] = struct{}{}
		ids = append(ids, t.ProviderID)
	}
	return ids
}
