package slot

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hhmm string) time.Time {
	return MustParseTimeOfDay(hhmm).On(testDate, time.UTC)
}

func TestFilterConflicts_BufferedBooking(t *testing.T) {
	p := morningParams()
	seq, err := Generate(p)
	require.NoError(t, err)
	candidates := slices.Collect(seq)

	// 30 minute appointment plus 10 minute buffer
	bookings := []Booking{{
		Start:      at("09:00"),
		End:        at("09:40"),
		ProviderID: p.ProviderID,
		Source:     SourceAppointment,
	}}

	annotated := FilterConflicts(candidates, bookings)
	require.Len(t, annotated, 8)

	unavailable := []string{}
	for _, s := range annotated {
		if !s.Available {
			unavailable = append(unavailable, s.Start.Format("15:04"))
		}
	}
	// 09:30 starts before the booking's buffer ends at 09:40.
	assert.Equal(t, []string{"08:30", "09:00", "09:30"}, unavailable)
	assert.Equal(t,
		[]string{"08:00", "10:00", "10:30", "11:00", "11:30"},
		starts(Available(annotated)))

	// input untouched
	for _, s := range candidates {
		assert.True(t, s.Available)
	}
}

func TestFilterConflicts_TouchingBookingLeavesNextSlotFree(t *testing.T) {
	p := morningParams()
	seq, err := Generate(p)
	require.NoError(t, err)

	bookings := []Booking{{Start: at("09:00"), End: at("09:30"), ProviderID: p.ProviderID}}
	annotated := FilterConflicts(slices.Collect(seq), bookings)

	assert.Equal(t,
		[]string{"08:00", "09:30", "10:00", "10:30", "11:00", "11:30"},
		starts(Available(annotated)))
}

func TestFilterConflicts_OtherProviderIgnored(t *testing.T) {
	p := morningParams()
	seq, err := Generate(p)
	require.NoError(t, err)

	bookings := []Booking{{Start: at("08:00"), End: at("12:00"), ProviderID: uuid.New()}}
	assert.Len(t, Available(FilterConflicts(slices.Collect(seq), bookings)), 8)
}

func TestFilterConflicts_SharedResource(t *testing.T) {
	room := uuid.New()
	p := morningParams()
	p.ResourceID = &room
	seq, err := Generate(p)
	require.NoError(t, err)

	otherRoom := uuid.New()
	bookings := []Booking{
		{Start: at("10:00"), End: at("10:30"), ProviderID: uuid.New(), ResourceID: &room},
		{Start: at("08:00"), End: at("12:00"), ProviderID: uuid.New(), ResourceID: &otherRoom},
	}
	annotated := FilterConflicts(slices.Collect(seq), bookings)

	var blocked []string
	for _, s := range annotated {
		if !s.Available {
			blocked = append(blocked, s.Start.Format("15:04"))
		}
	}
	assert.Equal(t, []string{"09:30", "10:00"}, blocked)
}

func TestFilterConflicts_TimeOffBlocksWholeRange(t *testing.T) {
	p := morningParams()
	seq, err := Generate(p)
	require.NoError(t, err)

	bookings := []Booking{{
		Start:      testDate.Add(-24 * time.Hour),
		End:        testDate.Add(48 * time.Hour),
		ProviderID: p.ProviderID,
		Source:     SourceTimeOff,
	}}
	assert.Empty(t, Available(FilterConflicts(slices.Collect(seq), bookings)))
}

func TestOverlaps_HalfOpen(t *testing.T) {
	assert.False(t, Overlaps(at("08:00"), at("09:00"), at("09:00"), at("10:00")))
	assert.False(t, Overlaps(at("09:00"), at("10:00"), at("08:00"), at("09:00")))
	assert.True(t, Overlaps(at("08:00"), at("09:01"), at("09:00"), at("10:00")))
	assert.True(t, Overlaps(at("09:15"), at("09:45"), at("09:00"), at("10:00")))
	assert.True(t, Overlaps(at("08:00"), at("11:00"), at("09:00"), at("10:00")))
}
