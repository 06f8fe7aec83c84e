package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/directory"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type fakeDirectory struct {
	templates []directory.ProviderTemplate
	timeOff   []directory.TimeOffBlock
	types     map[uuid.UUID]directory.AppointmentType
	err       error

	gotTimeOffFrom, gotTimeOffTo time.Time
}

func (f *fakeDirectory) TemplatesForDay(_ context.Context, day time.Weekday, providerID *uuid.UUID) ([]directory.ProviderTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []directory.ProviderTemplate
	for _, t := range f.templates {
		if t.DayOfWeek == day && (providerID == nil || *providerID == t.ProviderID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeDirectory) ApprovedTimeOff(_ context.Context, ids []uuid.UUID, from, to time.Time) ([]directory.TimeOffBlock, error) {
	f.gotTimeOffFrom, f.gotTimeOffTo = from, to
	var out []directory.TimeOffBlock
	for _, b := range f.timeOff {
		for _, id := range ids {
			if b.ProviderID == id && b.Status == directory.TimeOffApproved && slot.Overlaps(b.Start, b.End, from, to) {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetAppointmentType(_ context.Context, id uuid.UUID) (*directory.AppointmentType, error) {
	t, ok := f.types[id]
	if !ok {
		return nil, apperr.NotFound("appointment type not found")
	}
	return &t, nil
}

type fakeBookings struct {
	bookings []slot.Booking
	err      error
}

func (f *fakeBookings) ActiveBookingsBetween(_ context.Context, from, to time.Time) ([]slot.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []slot.Booking
	for _, b := range f.bookings {
		if slot.Overlaps(b.Start, b.End, from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func provider(first, last string, status directory.ProviderStatus) directory.Provider {
	return directory.Provider{ID: uuid.New(), FirstName: first, LastName: last, Status: status}
}

func template(p directory.Provider, day time.Weekday, start, end string) directory.ProviderTemplate {
	return directory.ProviderTemplate{
		AvailabilityTemplate: directory.AvailabilityTemplate{
			ID:         uuid.New(),
			ProviderID: p.ID,
			DayOfWeek:  day,
			Start:      slot.MustParseTimeOfDay(start),
			End:        slot.MustParseTimeOfDay(end),
		},
		Provider: p,
	}
}

func settings() Settings {
	return Settings{DefaultDuration: 30, DefaultBuffer: 10, Step: 30, Location: time.UTC}
}

func clock(hhmm string) time.Time {
	return slot.MustParseTimeOfDay(hhmm).On(monday, time.UTC)
}

func starts(slots []slot.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.Format("15:04")
	}
	return out
}

func TestResolveDuration(t *testing.T) {
	s := Settings{DefaultDuration: 30, DefaultBuffer: 5}
	typ := &directory.AppointmentType{DurationMinutes: 60, BufferMinutes: 15}

	d, b := ResolveDuration(0, nil, s)
	assert.Equal(t, [2]int{30, 5}, [2]int{d, b})

	d, b = ResolveDuration(0, typ, s)
	assert.Equal(t, [2]int{60, 15}, [2]int{d, b})

	d, b = ResolveDuration(45, typ, s)
	assert.Equal(t, [2]int{45, 15}, [2]int{d, b})

	d, b = ResolveDuration(45, nil, s)
	assert.Equal(t, [2]int{45, 5}, [2]int{d, b})
}

func TestAvailableSlots_FiltersBookingsAndOrders(t *testing.T) {
	dana := provider("Dana", "Reyes", directory.ProviderActive)
	abe := provider("Abe", "Cho", directory.ProviderActive)
	dir := &fakeDirectory{templates: []directory.ProviderTemplate{
		template(dana, time.Monday, "08:00", "10:00"),
		template(abe, time.Monday, "09:00", "10:00"),
		template(abe, time.Tuesday, "08:00", "18:00"),
	}}
	books := &fakeBookings{bookings: []slot.Booking{{
		Start: clock("09:00"), End: clock("09:40"), ProviderID: dana.ID, Source: slot.SourceAppointment,
	}}}

	agg := NewAggregator(dir, books, settings())
	got, err := agg.AvailableSlots(context.Background(), Query{Date: monday})
	require.NoError(t, err)

	assert.Equal(t, []string{"08:00", "09:00", "09:30"}, starts(got))
	assert.Equal(t, "Dana Reyes", got[0].ProviderName)
	assert.Equal(t, "Abe Cho", got[1].ProviderName)
	assert.Equal(t, "Abe Cho", got[2].ProviderName)
	for _, s := range got {
		assert.True(t, s.Available)
		assert.Equal(t, 30, s.DurationMinutes)
		assert.Equal(t, s.Start.Add(30*time.Minute), s.End)
	}
}

func TestAvailableSlots_EmptyTemplates(t *testing.T) {
	agg := NewAggregator(&fakeDirectory{}, &fakeBookings{}, settings())
	got, err := agg.AvailableSlots(context.Background(), Query{Date: monday})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAvailableSlots_SkipsInactiveProviders(t *testing.T) {
	away := provider("Lee", "Park", directory.ProviderOnLeave)
	gone := provider("Sam", "Ode", directory.ProviderInactive)
	dir := &fakeDirectory{templates: []directory.ProviderTemplate{
		template(away, time.Monday, "08:00", "12:00"),
		template(gone, time.Monday, "08:00", "12:00"),
	}}

	got, err := NewAggregator(dir, &fakeBookings{}, settings()).AvailableSlots(context.Background(), Query{Date: monday})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAvailableSlots_ApprovedTimeOffOnly(t *testing.T) {
	dana := provider("Dana", "Reyes", directory.ProviderActive)
	dir := &fakeDirectory{
		templates: []directory.ProviderTemplate{template(dana, time.Monday, "08:00", "12:00")},
		timeOff: []directory.TimeOffBlock{
			{ProviderID: dana.ID, Start: clock("08:00"), End: clock("10:00"), Status: directory.TimeOffApproved},
			{ProviderID: dana.ID, Start: clock("10:00"), End: clock("12:00"), Status: directory.TimeOffPending},
		},
	}

	got, err := NewAggregator(dir, &fakeBookings{}, settings()).AvailableSlots(context.Background(), Query{Date: monday})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30", "11:00", "11:30"}, starts(got))
	assert.Equal(t, monday, dir.gotTimeOffFrom)
	assert.Equal(t, monday.Add(24*time.Hour+10*time.Minute), dir.gotTimeOffTo)
}

func TestAvailableSlots_AppointmentType(t *testing.T) {
	dana := provider("Dana", "Reyes", directory.ProviderActive)
	abe := provider("Abe", "Cho", directory.ProviderActive)
	crown := directory.AppointmentType{
		ID:                uuid.New(),
		Name:              "Crown",
		DurationMinutes:   90,
		BufferMinutes:     0,
		EligibleProviders: []uuid.UUID{dana.ID},
		Active:            true,
	}
	retired := directory.AppointmentType{
		ID:              uuid.New(),
		Name:            "Amalgam filling",
		DurationMinutes: 120,
		Active:          false,
	}
	dir := &fakeDirectory{
		templates: []directory.ProviderTemplate{
			template(dana, time.Monday, "08:00", "11:00"),
			template(abe, time.Monday, "08:00", "11:00"),
		},
		types: map[uuid.UUID]directory.AppointmentType{crown.ID: crown, retired.ID: retired},
	}
	agg := NewAggregator(dir, &fakeBookings{}, settings())

	got, err := agg.AvailableSlots(context.Background(), Query{Date: monday, AppointmentTypeID: &crown.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:30", "09:00", "09:30"}, starts(got))
	for _, s := range got {
		assert.Equal(t, dana.ID, s.ProviderID)
		require.NotNil(t, s.AppointmentTypeID)
		assert.Equal(t, crown.ID, *s.AppointmentTypeID)
		assert.Equal(t, 90, s.DurationMinutes)
	}

	t.Run("override wins over type", func(t *testing.T) {
		got, err := agg.AvailableSlots(context.Background(), Query{Date: monday, AppointmentTypeID: &crown.ID, DurationOverride: 180})
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00"}, starts(got))
	})

	t.Run("unknown type falls back to defaults", func(t *testing.T) {
		unknown := uuid.New()
		got, err := agg.AvailableSlots(context.Background(), Query{Date: monday, AppointmentTypeID: &unknown})
		require.NoError(t, err)
		assert.Len(t, got, 12)
		assert.Nil(t, got[0].AppointmentTypeID)
	})

	t.Run("inactive type falls back to defaults", func(t *testing.T) {
		got, err := agg.AvailableSlots(context.Background(), Query{Date: monday, AppointmentTypeID: &retired.ID})
		require.NoError(t, err)
		assert.Len(t, got, 12)
		for _, s := range got {
			assert.Nil(t, s.AppointmentTypeID)
			assert.Equal(t, 30, s.DurationMinutes)
		}
	})
}

func TestAvailableSlots_ProviderFilterAndResourceAffinity(t *testing.T) {
	room := uuid.New()
	dana := provider("Dana", "Reyes", directory.ProviderActive)
	dana.ResourceID = &room
	abe := provider("Abe", "Cho", directory.ProviderActive)
	abe.ResourceID = &room
	dir := &fakeDirectory{templates: []directory.ProviderTemplate{
		template(dana, time.Monday, "08:00", "09:00"),
		template(abe, time.Monday, "08:00", "09:00"),
	}}
	// Abe holds the shared room 08:00-08:40.
	books := &fakeBookings{bookings: []slot.Booking{{
		Start: clock("08:00"), End: clock("08:40"), ProviderID: abe.ID, ResourceID: &room,
	}}}

	got, err := NewAggregator(dir, books, settings()).AvailableSlots(context.Background(), Query{Date: monday, ProviderID: &dana.ID})
	require.NoError(t, err)
	assert.Empty(t, got, "08:00 and 08:30 both collide with the room booking")
}

func TestAvailableSlots_Errors(t *testing.T) {
	dana := provider("Dana", "Reyes", directory.ProviderActive)
	dir := &fakeDirectory{templates: []directory.ProviderTemplate{template(dana, time.Monday, "08:00", "12:00")}}
	storeDown := apperr.StoreUnavailable("store unavailable", errors.New("dial tcp"))

	_, err := NewAggregator(dir, &fakeBookings{err: storeDown}, settings()).AvailableSlots(context.Background(), Query{Date: monday})
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)

	_, err = NewAggregator(&fakeDirectory{err: storeDown}, &fakeBookings{}, settings()).AvailableSlots(context.Background(), Query{Date: monday})
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)

	_, err = NewAggregator(dir, &fakeBookings{}, settings()).AvailableSlots(context.Background(), Query{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

// Every returned slot is free and every free candidate is returned.
func TestAvailableSlots_SoundAndComplete(t *testing.T) {
	dana := provider("Dana", "Reyes", directory.ProviderActive)
	dir := &fakeDirectory{templates: []directory.ProviderTemplate{template(dana, time.Monday, "07:00", "19:00")}}
	bookings := []slot.Booking{
		{Start: clock("08:10"), End: clock("08:55"), ProviderID: dana.ID},
		{Start: clock("12:00"), End: clock("13:00"), ProviderID: dana.ID},
		{Start: clock("17:45"), End: clock("18:20"), ProviderID: dana.ID},
	}
	s := Settings{DefaultDuration: 25, DefaultBuffer: 5, Step: 5, Location: time.UTC}

	got, err := NewAggregator(dir, &fakeBookings{bookings: bookings}, s).AvailableSlots(context.Background(), Query{Date: monday})
	require.NoError(t, err)

	returned := map[time.Time]bool{}
	for _, sl := range got {
		returned[sl.Start] = true
		for _, b := range bookings {
			assert.False(t, slot.Overlaps(sl.Start, sl.Start.Add(30*time.Minute), b.Start, b.End), "slot %s collides", sl.Start)
		}
	}

	for start := clock("07:00"); !start.Add(25 * time.Minute).After(clock("19:00")); start = start.Add(5 * time.Minute) {
		free := true
		for _, b := range bookings {
			if slot.Overlaps(start, start.Add(30*time.Minute), b.Start, b.End) {
				free = false
			}
		}
		assert.Equal(t, free, returned[start], "start %s", start.Format("15:04"))
	}
}
