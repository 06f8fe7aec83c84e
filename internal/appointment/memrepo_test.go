package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/directory"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

// memRepo is an in-memory Repository with the same conflict rules as the
// Postgres exclusion constraints.
type memRepo struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]Appointment
	events []EventLog

	// beforeUpdate runs inside UpdateStatus before the compare-and-set.
	beforeUpdate func(m *memRepo, id uuid.UUID)
}

func newMemRepo() *memRepo {
	return &memRepo{appts: map[uuid.UUID]Appointment{}}
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	return &a, nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Date != nil && !sameDay(a.Date, *f.Date) {
			continue
		}
		out = append(out, a)
	}
	sortByStart(out)
	return out, nil
}

func (m *memRepo) Upcoming(_ context.Context, patientID uuid.UUID, now time.Time, limit int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID && a.Status.IsActive() && a.EndAt.After(now) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) CountOnDate(_ context.Context, date time.Time, providerID *uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appts {
		if !sameDay(a.Date, date) || a.Status == StatusCancelled || a.Status == StatusRescheduled {
			continue
		}
		if providerID != nil && a.ProviderID != *providerID {
			continue
		}
		n++
	}
	return n, nil
}

func (m *memRepo) ActiveBetween(_ context.Context, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.Status.IsActive() && slot.Overlaps(a.StartAt, a.ReservedUntil, from, to) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *memRepo) FindOverdue(_ context.Context, cutoff time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if (a.Status == StatusScheduled || a.Status == StatusConfirmed) && a.StartAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *memRepo) Insert(_ context.Context, a Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(a)
}

func (m *memRepo) insertLocked(a Appointment) (*Appointment, error) {
	for _, other := range m.appts {
		if !other.Status.IsActive() {
			continue
		}
		if slot.Conflicts(slot.Slot{
			Start:       a.StartAt,
			ReservedEnd: a.ReservedUntil,
			ProviderID:  a.ProviderID,
			ResourceID:  a.ResourceID,
		}, other.Booking()) {
			return nil, apperr.SlotConflict("requested time overlaps an existing booking, re-check availability")
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appts[a.ID] = a
	return &a, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from Status, upd StatusUpdate) (*Appointment, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(m, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(id, from, upd)
}

func (m *memRepo) updateLocked(id uuid.UUID, from Status, upd StatusUpdate) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, apperr.NotFound("appointment not found")
	}
	a.Status = upd.To
	at := upd.At
	switch upd.To {
	case StatusCheckedIn:
		a.CheckedInAt = &at
	case StatusCompleted:
		a.CompletedAt = &at
	case StatusCancelled:
		a.CancelledAt = &at
	}
	if upd.Reason != nil {
		a.CancellationReason = upd.Reason
	}
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) Reschedule(_ context.Context, oldID uuid.UUID, from Status, next Appointment) (*Appointment, *Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.appts[oldID]
	if _, err := m.updateLocked(oldID, from, StatusUpdate{To: StatusRescheduled, At: time.Now()}); err != nil {
		return nil, nil, err
	}
	next.RescheduledFrom = &oldID
	created, err := m.insertLocked(next)
	if err != nil {
		m.appts[oldID] = snapshot
		return nil, nil, err
	}
	old := m.appts[oldID]
	old.RescheduledTo = &created.ID
	m.appts[oldID] = old
	return &old, created, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.EventType
	}
	return out
}

func (m *memRepo) set(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appts[a.ID] = a
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sortByStart(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartAt.Before(appts[j].StartAt) })
}

// memDirectory serves providers, resources, types and time-off from maps.
type memDirectory struct {
	providers map[uuid.UUID]directory.Provider
	resources map[uuid.UUID]directory.Resource
	types     map[uuid.UUID]directory.AppointmentType
	timeOff   []directory.TimeOffBlock
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		providers: map[uuid.UUID]directory.Provider{},
		resources: map[uuid.UUID]directory.Resource{},
		types:     map[uuid.UUID]directory.AppointmentType{},
	}
}

func (d *memDirectory) addProvider(status directory.ProviderStatus) directory.Provider {
	p := directory.Provider{ID: uuid.New(), FirstName: "Dana", LastName: "Reyes", Status: status}
	d.providers[p.ID] = p
	return p
}

func (d *memDirectory) GetProvider(_ context.Context, id uuid.UUID) (*directory.Provider, error) {
	p, ok := d.providers[id]
	if !ok {
		return nil, apperr.NotFound("provider not found")
	}
	return &p, nil
}

func (d *memDirectory) GetResource(_ context.Context, id uuid.UUID) (*directory.Resource, error) {
	r, ok := d.resources[id]
	if !ok {
		return nil, apperr.NotFound("resource not found")
	}
	return &r, nil
}

func (d *memDirectory) GetAppointmentType(_ context.Context, id uuid.UUID) (*directory.AppointmentType, error) {
	t, ok := d.types[id]
	if !ok {
		return nil, apperr.NotFound("appointment type not found")
	}
	return &t, nil
}

func (d *memDirectory) ApprovedTimeOff(_ context.Context, ids []uuid.UUID, from, to time.Time) ([]directory.TimeOffBlock, error) {
	var out []directory.TimeOffBlock
	for _, b := range d.timeOff {
		for _, id := range ids {
			if b.ProviderID == id && b.Status == directory.TimeOffApproved && slot.Overlaps(b.Start, b.End, from, to) {
				out = append(out, b)
			}
		}
	}
	return out, nil
}
