package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Dispatcher hands notifications off for delivery.
type Dispatcher interface {
	AppointmentBooked(ctx context.Context, p AppointmentBooked) error
	WaitlistOpening(ctx context.Context, p WaitlistOpening) error
}

// Enqueuer is the part of *asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type AsynqDispatcher struct {
	client Enqueuer
}

func NewAsynqDispatcher(client Enqueuer) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) AppointmentBooked(ctx context.Context, p AppointmentBooked) error {
	task, opts, err := NewAppointmentBookedTask(p)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task, opts)
}

func (d *AsynqDispatcher) WaitlistOpening(ctx context.Context, p WaitlistOpening) error {
	task, opts, err := NewWaitlistOpeningTask(p)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task, opts)
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, task *asynq.Task, opts []asynq.Option) error {
	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		// A duplicate task id means the same notification is already queued.
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	zerolog.Ctx(ctx).Debug().
		Str("task_type", task.Type()).
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Msg("notification enqueued")
	return nil
}

// LogDispatcher only logs. Used when no Redis is configured.
type LogDispatcher struct{}

func (LogDispatcher) AppointmentBooked(ctx context.Context, p AppointmentBooked) error {
	zerolog.Ctx(ctx).Info().
		Str("appointment_id", p.AppointmentID.String()).
		Str("patient_id", p.PatientID.String()).
		Time("start_at", p.StartAt).
		Msg("booking confirmation (not queued)")
	return nil
}

func (LogDispatcher) WaitlistOpening(ctx context.Context, p WaitlistOpening) error {
	zerolog.Ctx(ctx).Info().
		Str("entry_id", p.EntryID.String()).
		Str("patient_id", p.PatientID.String()).
		Str("provider_id", p.ProviderID.String()).
		Time("start_at", p.StartAt).
		Msg("waitlist opening (not queued)")
	return nil
}
