package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

type CreateAppointmentRequest struct {
	PatientID         uuid.UUID                 `json:"patient_id"`
	ProviderID        uuid.UUID                 `json:"provider_id"`
	Date              string                    `json:"date"`
	StartTime         slot.TimeOfDay            `json:"start_time"`
	DurationMinutes   int                       `json:"duration_minutes"`
	Type              string                    `json:"type"`
	AppointmentTypeID *uuid.UUID                `json:"appointment_type_id"`
	ResourceID        *uuid.UUID                `json:"resource_id"`
	Price             *decimal.Decimal          `json:"price"`
	Notes             *string                   `json:"notes"`
	Source            appointment.BookingSource `json:"booking_source"`
}

type UpdateStatusRequest struct {
	Status string  `json:"status"`
	Reason *string `json:"reason"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RescheduleRequest struct {
	Date            string         `json:"date"`
	StartTime       slot.TimeOfDay `json:"start_time"`
	ProviderID      *uuid.UUID     `json:"provider_id"`
	ResourceID      *uuid.UUID     `json:"resource_id"`
	DurationMinutes int            `json:"duration_minutes"`
}

type TimeOffStatusRequest struct {
	Status string `json:"status"`
}

type FillWaitlistRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID        `json:"id"`
	PatientID          uuid.UUID        `json:"patient_id"`
	ProviderID         uuid.UUID        `json:"provider_id"`
	ResourceID         *uuid.UUID       `json:"resource_id,omitempty"`
	AppointmentTypeID  *uuid.UUID       `json:"appointment_type_id,omitempty"`
	Type               string           `json:"type"`
	Date               string           `json:"date"`
	StartAt            time.Time        `json:"start_at"`
	EndAt              time.Time        `json:"end_at"`
	DurationMinutes    int              `json:"duration_minutes"`
	BufferMinutes      int              `json:"buffer_minutes"`
	Status             string           `json:"status"`
	Source             string           `json:"booking_source"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
	CheckedInAt        *time.Time       `json:"checked_in_at,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
	CancellationReason *string          `json:"cancellation_reason,omitempty"`
	RescheduledFrom    *uuid.UUID       `json:"rescheduled_from,omitempty"`
	RescheduledTo      *uuid.UUID       `json:"rescheduled_to,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		ProviderID:         a.ProviderID,
		ResourceID:         a.ResourceID,
		AppointmentTypeID:  a.AppointmentTypeID,
		Type:               a.Type,
		Date:               a.Date.Format(time.DateOnly),
		StartAt:            a.StartAt,
		EndAt:              a.EndAt,
		DurationMinutes:    a.DurationMinutes,
		BufferMinutes:      a.BufferMinutes,
		Status:             string(a.Status),
		Source:             string(a.Source),
		Price:              a.Price,
		Notes:              a.Notes,
		CheckedInAt:        a.CheckedInAt,
		CompletedAt:        a.CompletedAt,
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
		RescheduledFrom:    a.RescheduledFrom,
		RescheduledTo:      a.RescheduledTo,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(appts))
	for i := range appts {
		out[i] = toAppointmentResponse(&appts[i])
	}
	return out
}

type RescheduleResponse struct {
	Previous    AppointmentResponse `json:"previous"`
	Appointment AppointmentResponse `json:"appointment"`
}

type SlotsResponse struct {
	Date  string      `json:"date"`
	Slots []slot.Slot `json:"slots"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
