// Package directory stores who can be booked and when: providers, resources,
// weekly availability templates, time-off and appointment types.
package directory

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

type ProviderStatus string

const (
	ProviderActive   ProviderStatus = "active"
	ProviderOnLeave  ProviderStatus = "on_leave"
	ProviderInactive ProviderStatus = "inactive"
)

func (s ProviderStatus) Valid() bool {
	switch s {
	case ProviderActive, ProviderOnLeave, ProviderInactive:
		return true
	}
	return false
}

type TimeOffStatus string

const (
	TimeOffPending  TimeOffStatus = "pending"
	TimeOffApproved TimeOffStatus = "approved"
	TimeOffDenied   TimeOffStatus = "denied"
)

func (s TimeOffStatus) Valid() bool {
	switch s {
	case TimeOffPending, TimeOffApproved, TimeOffDenied:
		return true
	}
	return false
}

// Provider is never deleted; deactivation is a status change.
type Provider struct {
	ID         uuid.UUID      `json:"id"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Status     ProviderStatus `json:"status"`
	ResourceID *uuid.UUID     `json:"resource_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (p Provider) Name() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p Provider) IsActive() bool {
	return p.Status == ProviderActive
}

// Resource is a shared physical asset such as an operatory or chair.
type Resource struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailabilityTemplate is one recurring weekly working window.
type AvailabilityTemplate struct {
	ID         uuid.UUID      `json:"id"`
	ProviderID uuid.UUID      `json:"provider_id"`
	DayOfWeek  time.Weekday   `json:"day_of_week"`
	Start      slot.TimeOfDay `json:"start_time"`
	End        slot.TimeOfDay `json:"end_time"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ProviderTemplate is a template joined with its provider, as read by the aggregator.
type ProviderTemplate struct {
	AvailabilityTemplate
	Provider Provider
}

type TimeOffBlock struct {
	ID         uuid.UUID     `json:"id"`
	ProviderID uuid.UUID     `json:"provider_id"`
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	Status     TimeOffStatus `json:"status"`
	Reason     *string       `json:"reason,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type AppointmentType struct {
	ID                uuid.UUID   `json:"id"`
	Name              string      `json:"name"`
	Code              *string     `json:"code,omitempty"`
	DurationMinutes   int         `json:"duration_minutes"`
	BufferMinutes     int         `json:"buffer_minutes"`
	EligibleProviders []uuid.UUID `json:"eligible_providers"`
	OnlineBookable    bool        `json:"online_bookable"`
	Active            bool        `json:"active"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// IsEligible reports whether the provider may perform this type. An empty list
// means every provider may.
func (t AppointmentType) IsEligible(providerID uuid.UUID) bool {
	return len(t.EligibleProviders) == 0 || slices.Contains(t.EligibleProviders, providerID)
}

type StatusCounts struct {
	Active   int `json:"active"`
	OnLeave  int `json:"on_leave"`
	Inactive int `json:"inactive"`
}
