// Package notify hands confirmations and waitlist alerts to the notification
// queue. Delivery itself (SMS, email, push) happens outside the engine.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeAppointmentBooked = "appointment:booked"
	TypeWaitlistOpening   = "waitlist:opening"

	queueName = "notifications"
)

type AppointmentBooked struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	ResourceID    *uuid.UUID `json:"resource_id,omitempty"`
	Type          string     `json:"type"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
}

// WaitlistOpening offers a freed slot to a waiting patient.
type WaitlistOpening struct {
	EntryID           uuid.UUID  `json:"entry_id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	ProviderID        uuid.UUID  `json:"provider_id"`
	AppointmentTypeID *uuid.UUID `json:"appointment_type_id,omitempty"`
	StartAt           time.Time  `json:"start_at"`
	EndAt             time.Time  `json:"end_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
}

func NewAppointmentBookedTask(p AppointmentBooked) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal %s payload: %w", TypeAppointmentBooked, err)
	}
	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.MaxRetry(5),
		asynq.TaskID(TypeAppointmentBooked + ":" + p.AppointmentID.String()),
	}
	return asynq.NewTask(TypeAppointmentBooked, b), opts, nil
}

// NewWaitlistOpeningTask builds the alert task. It stops retrying once the offer
// has expired.
func NewWaitlistOpeningTask(p WaitlistOpening) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal %s payload: %w", TypeWaitlistOpening, err)
	}
	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.MaxRetry(3),
	}
	if !p.ExpiresAt.IsZero() {
		opts = append(opts, asynq.Deadline(p.ExpiresAt))
	}
	return asynq.NewTask(TypeWaitlistOpening, b), opts, nil
}
