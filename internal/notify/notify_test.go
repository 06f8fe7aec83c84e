package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendBookingConfirmation(ctx context.Context, p AppointmentBooked) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockSender) SendWaitlistOffer(ctx context.Context, p WaitlistOpening) error {
	return m.Called(ctx, p).Error(0)
}

func TestAsynqDispatcher_AppointmentBooked(t *testing.T) {
	q := &mockEnqueuer{}
	p := AppointmentBooked{
		AppointmentID: uuid.New(),
		PatientID:     uuid.New(),
		ProviderID:    uuid.New(),
		Type:          "cleaning",
		StartAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	q.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		var got AppointmentBooked
		return task.Type() == TypeAppointmentBooked &&
			json.Unmarshal(task.Payload(), &got) == nil &&
			got.AppointmentID == p.AppointmentID
	}), mock.Anything).Return(&asynq.TaskInfo{ID: "t1", Queue: queueName}, nil)

	require.NoError(t, NewAsynqDispatcher(q).AppointmentBooked(context.Background(), p))
	q.AssertExpectations(t)
}

func TestAsynqDispatcher_DuplicateIsNotAnError(t *testing.T) {
	q := &mockEnqueuer{}
	q.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, asynq.ErrTaskIDConflict)

	err := NewAsynqDispatcher(q).AppointmentBooked(context.Background(), AppointmentBooked{AppointmentID: uuid.New()})
	assert.NoError(t, err)
}

func TestAsynqDispatcher_EnqueueFailure(t *testing.T) {
	q := &mockEnqueuer{}
	q.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))

	err := NewAsynqDispatcher(q).WaitlistOpening(context.Background(), WaitlistOpening{EntryID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), TypeWaitlistOpening)
	assert.Contains(t, err.Error(), "redis down")
}

func TestHandlers(t *testing.T) {
	sender := &mockSender{}
	opening := WaitlistOpening{EntryID: uuid.New(), PatientID: uuid.New(), StartAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	sender.On("SendWaitlistOffer", mock.Anything, opening).Return(nil)

	task, _, err := NewWaitlistOpeningTask(opening)
	require.NoError(t, err)
	require.NoError(t, handleWaitlistOpening(sender)(context.Background(), task))
	sender.AssertExpectations(t)

	bad := asynq.NewTask(TypeAppointmentBooked, []byte("{"))
	err = handleAppointmentBooked(sender)(context.Background(), bad)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	sender.AssertNotCalled(t, "SendBookingConfirmation", mock.Anything, mock.Anything)
}

func TestLogDispatcher(t *testing.T) {
	var d Dispatcher = LogDispatcher{}
	assert.NoError(t, d.AppointmentBooked(context.Background(), AppointmentBooked{}))
	assert.NoError(t, d.WaitlistOpening(context.Background(), WaitlistOpening{}))
}
