package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/tasks"
)

type mockRobots struct {
	mock.Mock
}

func (m *mockRobots) Tick(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRobots) Withdraw(ctx context.Context, roomID, robotID int64) error {
	return m.Called(ctx, roomID, robotID).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyRoomFull(ctx context.Context, roomID int64) (int, error) {
	args := m.Called(ctx, roomID)
	return args.Int(0), args.Error(1)
}

func TestServeMux_RoutesTasks(t *testing.T) {
	ctx := context.Background()
	robots := new(mockRobots)
	notifier := new(mockNotifier)
	mux := NewServeMux(robots, notifier)

	robots.On("Tick", ctx).Return(nil).Once()
	robots.On("Withdraw", ctx, int64(12), int64(-3)).Return(nil).Once()
	notifier.On("NotifyRoomFull", ctx, int64(7)).Return(2, nil).Once()

	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(tasks.TypeRobotTick, nil)))

	payload, err := tasks.NewRobotWithdrawTask(12, -3)
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(tasks.TypeRobotWithdraw, payload)))

	payload, err = tasks.NewRoomFullTask(7)
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(tasks.TypeRoomFull, payload)))

	robots.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestRobotWithdrawHandler_BadPayloadSkipsRetry(t *testing.T) {
	robots := new(mockRobots)
	h := NewRobotWithdrawHandler(robots)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeRobotWithdraw, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	robots.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, mock.Anything)
}

func TestRobotWithdrawHandler_FailureIsRetried(t *testing.T) {
	ctx := context.Background()
	robots := new(mockRobots)
	robots.On("Withdraw", ctx, int64(1), int64(-1)).Return(errors.New("db down")).Once()

	payload, err := tasks.NewRobotWithdrawTask(1, -1)
	require.NoError(t, err)
	err = NewRobotWithdrawHandler(robots).ProcessTask(ctx, asynq.NewTask(tasks.TypeRobotWithdraw, payload))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestRobotTickHandler_FailureSkipsRetry(t *testing.T) {
	ctx := context.Background()
	robots := new(mockRobots)
	robots.On("Tick", ctx).Return(errors.New("boom")).Once()

	err := NewRobotTickHandler(robots).ProcessTask(ctx, asynq.NewTask(tasks.TypeRobotTick, nil))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestServeMux_WithoutNotifier(t *testing.T) {
	mux := NewServeMux(new(mockRobots), nil)
	payload, err := tasks.NewRoomFullTask(7)
	require.NoError(t, err)
	err = mux.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeRoomFull, payload))
	assert.Error(t, err, "unregistered task type")
}
