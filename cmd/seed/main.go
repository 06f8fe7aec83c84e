package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/directory"
	"github.com/hackgods/clinic-scheduling-engine/internal/logging"
	"github.com/hackgods/clinic-scheduling-engine/internal/notify"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
	"github.com/hackgods/clinic-scheduling-engine/internal/waitlist"
)

type seedOptions struct {
	providers int
	rooms     int
	waitlist  int
	timeOff   bool
	migrate   bool
}

func main() {
	var opts seedOptions
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Fill the database with a demo clinic",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.providers, "providers", 12, "number of providers")
	cmd.Flags().IntVar(&opts.rooms, "rooms", 4, "number of shared rooms")
	cmd.Flags().IntVar(&opts.waitlist, "waitlist", 40, "number of waitlist entries")
	cmd.Flags().BoolVar(&opts.timeOff, "time-off", true, "give some providers approved time off next week")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", true, "apply migrations first")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
}

func run(ctx context.Context, opts seedOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init("seed", cfg.Env, cfg.LogLevel)
	ctx = logger.WithContext(ctx)

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if opts.migrate {
		if _, err := db.NewMigrator(pool).Up(ctx); err != nil {
			return err
		}
	}

	dir := directory.NewService(directory.NewPgRepository(pool))

	rooms, err := seedRooms(ctx, dir, opts.rooms)
	if err != nil {
		return fmt.Errorf("seed rooms: %w", err)
	}
	providers, err := seedProviders(ctx, dir, opts.providers, rooms)
	if err != nil {
		return fmt.Errorf("seed providers: %w", err)
	}
	types, err := seedAppointmentTypes(ctx, dir, providers)
	if err != nil {
		return fmt.Errorf("seed appointment types: %w", err)
	}
	if opts.timeOff {
		if err := seedTimeOff(ctx, dir, providers, cfg.Scheduling.Location); err != nil {
			return fmt.Errorf("seed time off: %w", err)
		}
	}

	wl := waitlist.NewCoordinator(waitlist.NewPgRepository(pool), notify.LogDispatcher{}, waitlist.Settings{
		Location: cfg.Scheduling.Location,
		OfferTTL: cfg.Waitlist.NotifyTTL,
	})
	if err := seedWaitlist(ctx, wl, opts.waitlist, providers, types); err != nil {
		return fmt.Errorf("seed waitlist: %w", err)
	}

	logger.Info().
		Int("rooms", len(rooms)).
		Int("providers", len(providers)).
		Int("appointment_types", len(types)).
		Msg("seed complete")
	return nil
}

func seedRooms(ctx context.Context, dir *directory.Service, count int) ([]directory.Resource, error) {
	rooms := make([]directory.Resource, 0, count)
	for i := range count {
		r, err := dir.CreateResource(ctx, directory.NewResource{
			Name: fmt.Sprintf("Room %d (%s)", i+1, gofakeit.Color()),
			Kind: "room",
		})
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *r)
	}
	zerolog.Ctx(ctx).Info().Int("count", count).Msg("rooms seeded")
	return rooms, nil
}

// seedProviders creates providers working weekdays. Rooms are shared round-robin,
// so several providers contend for the same room.
func seedProviders(ctx context.Context, dir *directory.Service, count int, rooms []directory.Resource) ([]directory.Provider, error) {
	shifts := [][2]string{{"08:00", "16:00"}, {"09:00", "17:00"}, {"10:00", "18:00"}}

	providers := make([]directory.Provider, 0, count)
	for i := range count {
		in := directory.NewProvider{
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
		}
		if len(rooms) > 0 && i%2 == 0 {
			in.ResourceID = &rooms[(i/2)%len(rooms)].ID
		}
		p, err := dir.CreateProvider(ctx, in)
		if err != nil {
			return nil, err
		}

		shift := shifts[gofakeit.Number(0, len(shifts)-1)]
		var templates []directory.TemplateInput
		for day := time.Monday; day <= time.Friday; day++ {
			if gofakeit.Number(1, 10) == 1 {
				continue
			}
			// Split shift with a lunch hour.
			templates = append(templates,
				directory.TemplateInput{DayOfWeek: int(day), Start: slot.MustParseTimeOfDay(shift[0]), End: slot.MustParseTimeOfDay("12:00")},
				directory.TemplateInput{DayOfWeek: int(day), Start: slot.MustParseTimeOfDay("13:00"), End: slot.MustParseTimeOfDay(shift[1])},
			)
		}
		if _, err := dir.SetAvailability(ctx, p.ID, templates); err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	zerolog.Ctx(ctx).Info().Int("count", count).Msg("providers seeded")
	return providers, nil
}

func seedAppointmentTypes(ctx context.Context, dir *directory.Service, providers []directory.Provider) ([]directory.AppointmentType, error) {
	catalog := []struct {
		name     string
		code     string
		duration int
		buffer   int
	}{
		{"General consultation", "GEN", 30, 5},
		{"Follow-up", "FUP", 15, 5},
		{"Physical exam", "PHY", 45, 10},
		{"Vaccination", "VAC", 15, 0},
		{"Minor procedure", "PRC", 60, 15},
	}

	types := make([]directory.AppointmentType, 0, len(catalog))
	for _, s := range catalog {
		in := directory.NewAppointmentType{
			Name:            s.name,
			Code:            &s.code,
			DurationMinutes: s.duration,
			BufferMinutes:   s.buffer,
		}
		if s.code == "PRC" {
			for _, p := range providers {
				if gofakeit.Bool() {
					in.EligibleProviders = append(in.EligibleProviders, p.ID)
				}
			}
		}
		t, err := dir.CreateAppointmentType(ctx, in)
		if err != nil {
			return nil, err
		}
		types = append(types, *t)
	}
	zerolog.Ctx(ctx).Info().Int("count", len(types)).Msg("appointment types seeded")
	return types, nil
}

func seedTimeOff(ctx context.Context, dir *directory.Service, providers []directory.Provider, loc *time.Location) error {
	nextMonday := nextWeekday(time.Now().In(loc), time.Monday)
	for i, p := range providers {
		if i%4 != 0 {
			continue
		}
		day := nextMonday.AddDate(0, 0, gofakeit.Number(0, 4))
		reason := gofakeit.RandomString([]string{"conference", "vacation", "training", "personal"})
		_, err := dir.AddTimeOff(ctx, directory.NewTimeOff{
			ProviderID: p.ID,
			Start:      day.Add(9 * time.Hour),
			End:        day.Add(13 * time.Hour),
			Status:     directory.TimeOffApproved,
			Reason:     &reason,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func seedWaitlist(ctx context.Context, wl *waitlist.Coordinator, count int, providers []directory.Provider, types []directory.AppointmentType) error {
	urgencies := []waitlist.Urgency{waitlist.UrgencyLow, waitlist.UrgencyNormal, waitlist.UrgencyHigh, waitlist.UrgencyUrgent}

	for range count {
		in := waitlist.NewEntry{
			PatientID: uuid.New(),
			Urgency:   urgencies[gofakeit.Number(0, len(urgencies)-1)],
		}
		if len(providers) > 0 && gofakeit.Bool() {
			in.PreferredProviderID = &providers[gofakeit.Number(0, len(providers)-1)].ID
		}
		if len(types) > 0 && gofakeit.Bool() {
			in.AppointmentTypeID = &types[gofakeit.Number(0, len(types)-1)].ID
		}
		if gofakeit.Bool() {
			start := slot.MustParseTimeOfDay("08:00")
			end := slot.MustParseTimeOfDay("12:00")
			in.PreferredStart, in.PreferredEnd = &start, &end
		}
		if _, err := wl.Add(ctx, in); err != nil {
			return err
		}
	}
	zerolog.Ctx(ctx).Info().Int("count", count).Msg("waitlist seeded")
	return nil
}

// nextWeekday returns midnight of the next given weekday strictly after t.
func nextWeekday(t time.Time, day time.Weekday) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	ahead := (int(day) - int(t.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return midnight.AddDate(0, 0, ahead)
}
