package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Sender delivers a notification through an external channel.
type Sender interface {
	SendBookingConfirmation(ctx context.Context, p AppointmentBooked) error
	SendWaitlistOffer(ctx context.Context, p WaitlistOpening) error
}

// NewServeMux routes queued notification tasks to sender.
func NewServeMux(sender Sender) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAppointmentBooked, handleAppointmentBooked(sender))
	mux.HandleFunc(TypeWaitlistOpening, handleWaitlistOpening(sender))
	return mux
}

// NewServer builds the asynq server that drains the notification queue.
func NewServer(opt asynq.RedisClientOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
		BaseContext: func() context.Context {
			if zerolog.DefaultContextLogger == nil {
				return context.Background()
			}
			return zerolog.DefaultContextLogger.WithContext(context.Background())
		},
	})
}

func handleAppointmentBooked(sender Sender) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p AppointmentBooked
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("decode %s: %v: %w", task.Type(), err, asynq.SkipRetry)
		}
		return sender.SendBookingConfirmation(ctx, p)
	}
}

func handleWaitlistOpening(sender Sender) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p WaitlistOpening
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("decode %s: %v: %w", task.Type(), err, asynq.SkipRetry)
		}
		return sender.SendWaitlistOffer(ctx, p)
	}
}

// LogSender records deliveries in the log. Real channels plug in behind Sender.
type LogSender struct{}

func (LogSender) SendBookingConfirmation(ctx context.Context, p AppointmentBooked) error {
	zerolog.Ctx(ctx).Info().
		Str("appointment_id", p.AppointmentID.String()).
		Str("patient_id", p.PatientID.String()).
		Time("start_at", p.StartAt).
		Msg("booking confirmation handed to delivery")
	return nil
}

func (LogSender) SendWaitlistOffer(ctx context.Context, p WaitlistOpening) error {
	zerolog.Ctx(ctx).Info().
		Str("entry_id", p.EntryID.String()).
		Str("patient_id", p.PatientID.String()).
		Time("start_at", p.StartAt).
		Time("expires_at", p.ExpiresAt).
		Msg("waitlist offer handed to delivery")
	return nil
}
