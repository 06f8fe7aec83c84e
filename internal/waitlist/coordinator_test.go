package waitlist

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/notify"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

type memRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Entry
	clock   time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{entries: map[uuid.UUID]Entry{}, clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memRepo) Insert(_ context.Context, e Entry) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	m.clock = m.clock.Add(time.Minute)
	e.CreatedAt = m.clock
	e.UpdatedAt = m.clock
	m.entries[e.ID] = e
	return &e, nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, apperr.NotFound("waitlist entry not found")
	}
	return &e, nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		if f.PatientID != nil && e.PatientID != *f.PatientID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) WaitingFor(ctx context.Context, providerID uuid.UUID) ([]Entry, error) {
	st := StatusWaiting
	all, _ := m.List(ctx, ListFilter{Status: &st})
	var out []Entry
	for _, e := range all {
		if e.PreferredProviderID == nil || *e.PreferredProviderID == providerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepo) SetStatus(_ context.Context, id uuid.UUID, from Status, upd StatusUpdate) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Status != from {
		return nil, apperr.NotFound("waitlist entry not found")
	}
	e.Status = upd.To
	if upd.To == StatusNotified {
		at := upd.At
		e.NotifiedAt = &at
	}
	if upd.OfferedProviderID != nil {
		e.OfferedProviderID = upd.OfferedProviderID
	}
	if upd.OfferedStartAt != nil {
		e.OfferedStartAt = upd.OfferedStartAt
	}
	if upd.FilledAppointmentID != nil {
		e.FilledAppointmentID = upd.FilledAppointmentID
	}
	m.entries[id] = e
	return &e, nil
}

func (m *memRepo) expire(from Status, before func(Entry) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.entries {
		if e.Status == from && before(e) {
			e.Status = StatusExpired
			m.entries[id] = e
			n++
		}
	}
	return n
}

func (m *memRepo) ExpireNotifiedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return m.expire(StatusNotified, func(e Entry) bool { return e.NotifiedAt != nil && e.NotifiedAt.Before(cutoff) }), nil
}

func (m *memRepo) ExpireWaitingBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return m.expire(StatusWaiting, func(e Entry) bool { return e.CreatedAt.Before(cutoff) }), nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) WaitlistOpening(ctx context.Context, p notify.WaitlistOpening) error {
	return m.Called(ctx, p).Error(0)
}

// Sunday 1 March 2026; the freed slot is Tuesday 3 March at 10:00.
var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newCoordinator(t *testing.T) (*Coordinator, *memRepo, *mockNotifier) {
	t.Helper()
	repo := newMemRepo()
	n := &mockNotifier{}
	c := NewCoordinator(repo, n, Settings{Location: time.UTC, OfferTTL: 24 * time.Hour})
	c.now = func() time.Time { return now }
	return c, repo, n
}

func freed(provider uuid.UUID) appointment.Appointment {
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	return appointment.Appointment{
		ID:         uuid.New(),
		ProviderID: provider,
		StartAt:    start,
		EndAt:      start.Add(30 * time.Minute),
		Status:     appointment.StatusCancelled,
	}
}

func tod(s string) *slot.TimeOfDay {
	t := slot.MustParseTimeOfDay(s)
	return &t
}

func TestAdd_Validation(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()
	patient := uuid.New()

	e, err := c.Add(ctx, NewEntry{PatientID: patient})
	require.NoError(t, err)
	assert.Equal(t, UrgencyNormal, e.Urgency)
	assert.Equal(t, StatusWaiting, e.Status)

	cases := []NewEntry{
		{},
		{PatientID: patient, Urgency: "asap"},
		{PatientID: patient, PreferredDays: []int{7}},
		{PatientID: patient, PreferredStart: tod("12:00"), PreferredEnd: tod("09:00")},
	}
	for _, in := range cases {
		_, err := c.Add(ctx, in)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", in)
	}
}

func TestEntryMatches(t *testing.T) {
	provider := uuid.New()
	typeID := uuid.New()
	o := Opening{ProviderID: provider, AppointmentTypeID: &typeID, Start: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)}
	other := uuid.New()

	cases := []struct {
		name  string
		entry Entry
		want  bool
	}{
		{"no preferences", Entry{}, true},
		{"same provider", Entry{PreferredProviderID: &provider}, true},
		{"other provider", Entry{PreferredProviderID: &other}, false},
		{"same type", Entry{AppointmentTypeID: &typeID}, true},
		{"other type", Entry{AppointmentTypeID: &other}, false},
		{"tuesday preferred", Entry{PreferredDays: []time.Weekday{time.Monday, time.Tuesday}}, true},
		{"weekend only", Entry{PreferredDays: []time.Weekday{time.Saturday}}, false},
		{"inside window", Entry{PreferredStart: tod("09:00"), PreferredEnd: tod("12:00")}, true},
		{"window starts at slot", Entry{PreferredStart: tod("10:00")}, true},
		{"window ends at slot", Entry{PreferredEnd: tod("10:00")}, false},
		{"afternoon only", Entry{PreferredStart: tod("13:00")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.entry.Matches(o, time.UTC))
		})
	}

	untyped := o
	untyped.AppointmentTypeID = nil
	assert.False(t, Entry{AppointmentTypeID: &typeID}.Matches(untyped, time.UTC))
}

func TestSlotReleased_PicksMostUrgentThenOldest(t *testing.T) {
	c, repo, n := newCoordinator(t)
	ctx := context.Background()
	provider := uuid.New()

	oldNormal, err := c.Add(ctx, NewEntry{PatientID: uuid.New()})
	require.NoError(t, err)
	firstHigh, err := c.Add(ctx, NewEntry{PatientID: uuid.New(), Urgency: UrgencyHigh, PreferredProviderID: &provider})
	require.NoError(t, err)
	_, err = c.Add(ctx, NewEntry{PatientID: uuid.New(), Urgency: UrgencyHigh})
	require.NoError(t, err)
	_, err = c.Add(ctx, NewEntry{PatientID: uuid.New(), Urgency: UrgencyUrgent, PreferredDays: []int{6}})
	require.NoError(t, err)

	a := freed(provider)
	n.On("WaitlistOpening", mock.Anything, mock.MatchedBy(func(p notify.WaitlistOpening) bool {
		return p.EntryID == firstHigh.ID &&
			p.StartAt.Equal(a.StartAt) &&
			p.ExpiresAt.Equal(now.Add(24*time.Hour))
	})).Return(nil).Once()

	require.NoError(t, c.SlotReleased(ctx, a))
	n.AssertExpectations(t)

	got, _ := repo.Get(ctx, firstHigh.ID)
	assert.Equal(t, StatusNotified, got.Status)
	require.NotNil(t, got.OfferedStartAt)
	assert.True(t, got.OfferedStartAt.Equal(a.StartAt))
	got, _ = repo.Get(ctx, oldNormal.ID)
	assert.Equal(t, StatusWaiting, got.Status)
}

func TestSlotReleased_NoMatchOrPastSlot(t *testing.T) {
	c, _, n := newCoordinator(t)
	ctx := context.Background()
	someoneElse := uuid.New()
	_, err := c.Add(ctx, NewEntry{PatientID: uuid.New(), PreferredProviderID: &someoneElse})
	require.NoError(t, err)

	require.NoError(t, c.SlotReleased(ctx, freed(uuid.New())))

	past := freed(someoneElse)
	past.StartAt = now.Add(-time.Hour)
	require.NoError(t, c.SlotReleased(ctx, past))

	n.AssertNotCalled(t, "WaitlistOpening", mock.Anything, mock.Anything)
}

func TestSlotReleased_OfferExpiresAtSlotStart(t *testing.T) {
	c, _, n := newCoordinator(t)
	ctx := context.Background()
	_, err := c.Add(ctx, NewEntry{PatientID: uuid.New()})
	require.NoError(t, err)

	a := freed(uuid.New())
	a.StartAt = now.Add(2 * time.Hour)
	a.EndAt = a.StartAt.Add(30 * time.Minute)
	n.On("WaitlistOpening", mock.Anything, mock.MatchedBy(func(p notify.WaitlistOpening) bool {
		return p.ExpiresAt.Equal(a.StartAt)
	})).Return(nil).Once()

	require.NoError(t, c.SlotReleased(ctx, a))
	n.AssertExpectations(t)
}

func TestSlotReleased_DispatchErrorIsReturned(t *testing.T) {
	c, _, n := newCoordinator(t)
	ctx := context.Background()
	_, err := c.Add(ctx, NewEntry{PatientID: uuid.New()})
	require.NoError(t, err)
	n.On("WaitlistOpening", mock.Anything, mock.Anything).Return(errors.New("queue down"))

	assert.Error(t, c.SlotReleased(ctx, freed(uuid.New())))
}

func TestSlotReleased_ConcurrentReleasesNotifyDistinctEntries(t *testing.T) {
	c, repo, n := newCoordinator(t)
	ctx := context.Background()
	provider := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := c.Add(ctx, NewEntry{PatientID: uuid.New()})
		require.NoError(t, err)
	}
	n.On("WaitlistOpening", mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.SlotReleased(ctx, freed(provider)))
		}()
	}
	wg.Wait()

	st := StatusNotified
	notified, err := repo.List(ctx, ListFilter{Status: &st})
	require.NoError(t, err)
	assert.Len(t, notified, 3)
	n.AssertNumberOfCalls(t, "WaitlistOpening", 3)
}

func TestCancelAndFill(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()

	e, err := c.Add(ctx, NewEntry{PatientID: uuid.New()})
	require.NoError(t, err)
	cancelled, err := c.Cancel(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = c.MarkFilled(ctx, e.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	e2, err := c.Add(ctx, NewEntry{PatientID: uuid.New()})
	require.NoError(t, err)
	_, err = c.MarkFilled(ctx, e2.ID, uuid.Nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	apptID := uuid.New()
	filled, err := c.MarkFilled(ctx, e2.ID, apptID)
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, filled.Status)
	require.NotNil(t, filled.FilledAppointmentID)
	assert.Equal(t, apptID, *filled.FilledAppointmentID)

	_, err = c.Cancel(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExpireStale(t *testing.T) {
	c, repo, n := newCoordinator(t)
	ctx := context.Background()
	n.On("WaitlistOpening", mock.Anything, mock.Anything).Return(nil)

	old, err := c.Add(ctx, NewEntry{PatientID: uuid.New(), PreferredDays: []int{5}})
	require.NoError(t, err)
	offered, err := c.Add(ctx, NewEntry{PatientID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, c.SlotReleased(ctx, freed(uuid.New())))

	// Two days later the offer has lapsed; entries created in January are past 30 days.
	c.now = func() time.Time { return now.Add(48 * time.Hour) }
	res, err := c.ExpireStale(ctx, 24*time.Hour, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ExpireResult{Notified: 1, Waiting: 1}, res)

	got, _ := repo.Get(ctx, old.ID)
	assert.Equal(t, StatusExpired, got.Status)
	got, _ = repo.Get(ctx, offered.ID)
	assert.Equal(t, StatusExpired, got.Status)

	res, err = c.ExpireStale(ctx, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	c, _, _ := newCoordinator(t)
	bad := Status("gone")
	_, err := c.List(context.Background(), ListFilter{Status: &bad})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
