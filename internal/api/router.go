package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/availability"
	"github.com/hackgods/clinic-scheduling-engine/internal/directory"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
	"github.com/hackgods/clinic-scheduling-engine/internal/waitlist"
)

type SlotService interface {
	AvailableSlots(ctx context.Context, q availability.Query) ([]slot.Slot, error)
}

type AppointmentService interface {
	Create(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	List(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error)
	Upcoming(ctx context.Context, patientID uuid.UUID, limit int) ([]appointment.Appointment, error)
	TodayCount(ctx context.Context, providerID *uuid.UUID) (int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to appointment.Status, extras appointment.StatusExtras) (*appointment.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error)
	CheckIn(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, req appointment.RescheduleRequest) (old, created *appointment.Appointment, err error)
}

type DirectoryService interface {
	CreateProvider(ctx context.Context, in directory.NewProvider) (*directory.Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
	ListProviders(ctx context.Context, status string) ([]directory.Provider, error)
	UpdateProvider(ctx context.Context, id uuid.UUID, upd directory.ProviderUpdate) (*directory.Provider, error)
	ProviderCounts(ctx context.Context) (directory.StatusCounts, error)
	SetAvailability(ctx context.Context, providerID uuid.UUID, in []directory.TemplateInput) ([]directory.AvailabilityTemplate, error)
	GetAvailability(ctx context.Context, providerID uuid.UUID) ([]directory.AvailabilityTemplate, error)
	AddTimeOff(ctx context.Context, in directory.NewTimeOff) (*directory.TimeOffBlock, error)
	ListTimeOff(ctx context.Context, providerID uuid.UUID, from, to *time.Time) ([]directory.TimeOffBlock, error)
	SetTimeOffStatus(ctx context.Context, id uuid.UUID, status directory.TimeOffStatus) (*directory.TimeOffBlock, error)
	CreateResource(ctx context.Context, in directory.NewResource) (*directory.Resource, error)
	ListResources(ctx context.Context) ([]directory.Resource, error)
	CreateAppointmentType(ctx context.Context, in directory.NewAppointmentType) (*directory.AppointmentType, error)
	ListAppointmentTypes(ctx context.Context, activeOnly bool) ([]directory.AppointmentType, error)
}

type WaitlistService interface {
	Add(ctx context.Context, in waitlist.NewEntry) (*waitlist.Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error)
	List(ctx context.Context, f waitlist.ListFilter) ([]waitlist.Entry, error)
	Cancel(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error)
	MarkFilled(ctx context.Context, id, appointmentID uuid.UUID) (*waitlist.Entry, error)
}

type RouterConfig struct {
	Slots        SlotService
	Appointments AppointmentService
	Directory    DirectoryService
	Waitlist     WaitlistService
	Postgres     Pinger
	Redis        Pinger // optional
	Logger       zerolog.Logger
	Location     *time.Location
	RateLimiter  *RateLimiter // optional
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Get("/slots", listSlotsHandler(cfg.Slots, loc))

		appts := cfg.Appointments
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", createAppointmentHandler(appts, loc))
			r.Get("/", listAppointmentsHandler(appts, loc))
			r.Get("/today-count", todayCountHandler(appts))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getAppointmentHandler(appts))
				r.Post("/status", updateStatusHandler(appts))
				r.Post("/confirm", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
					return appts.Confirm(r.Context(), id)
				}))
				r.Post("/cancel", transitionHandler(cancelAppointment(appts)))
				r.Post("/check-in", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
					return appts.CheckIn(r.Context(), id)
				}))
				r.Post("/complete", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
					return appts.Complete(r.Context(), id)
				}))
				r.Post("/no-show", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
					return appts.MarkNoShow(r.Context(), id)
				}))
				r.Post("/reschedule", rescheduleHandler(appts, loc))
			})
		})
		r.Get("/patients/{id}/appointments/upcoming", upcomingHandler(appts))

		dir := cfg.Directory
		r.Route("/providers", func(r chi.Router) {
			r.Post("/", createProviderHandler(dir))
			r.Get("/", listProvidersHandler(dir))
			r.Get("/counts", providerCountsHandler(dir))
			r.Get("/{id}", getProviderHandler(dir))
			r.Patch("/{id}", updateProviderHandler(dir))
			r.Put("/{id}/availability", setAvailabilityHandler(dir))
			r.Get("/{id}/availability", getAvailabilityHandler(dir))
			r.Post("/{id}/time-off", addTimeOffHandler(dir))
			r.Get("/{id}/time-off", listTimeOffHandler(dir))
		})
		r.Patch("/time-off/{id}", setTimeOffStatusHandler(dir))
		r.Post("/resources", createResourceHandler(dir))
		r.Get("/resources", listResourcesHandler(dir))
		r.Post("/appointment-types", createAppointmentTypeHandler(dir))
		r.Get("/appointment-types", listAppointmentTypesHandler(dir))

		wl := cfg.Waitlist
		r.Route("/waitlist", func(r chi.Router) {
			r.Post("/", addWaitlistHandler(wl))
			r.Get("/", listWaitlistHandler(wl))
			r.Get("/{id}", getWaitlistHandler(wl))
			r.Post("/{id}/cancel", cancelWaitlistHandler(wl))
			r.Post("/{id}/fill", fillWaitlistHandler(wl))
		})
	})

	return r
}
