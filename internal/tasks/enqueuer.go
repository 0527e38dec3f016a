package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Enqueuer 把业务侧的延迟/异步动作投递到 asynq
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer 创建 Enqueuer
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	if client == nil {
		panic("Asynq client cannot be nil for Enqueuer")
	}
	return &Enqueuer{client: client}
}

// ScheduleWithdrawal 在 delay 之后撤出机器人。相同的撤出已在排队时视为成功。
func (e *Enqueuer) ScheduleWithdrawal(ctx context.Context, roomID, robotID int64, delay time.Duration) error {
	payload, err := NewRobotWithdrawTask(roomID, robotID)
	if err != nil {
		return fmt.Errorf("failed to build withdraw task: %w", err)
	}
	task := asynq.NewTask(TypeRobotWithdraw, payload)
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.TaskID(WithdrawTaskID(roomID, robotID)),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "robot_id": robotID}).Debug("Withdraw task already queued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue withdraw task: %w", err)
	}
	logrus.WithFields(logrus.Fields{"task_id": info.ID, "queue": info.Queue}).Debug("Withdraw task enqueued")
	return nil
}

// EnqueueRoomFull 投递满员通知
func (e *Enqueuer) EnqueueRoomFull(ctx context.Context, roomID int64) error {
	payload, err := NewRoomFullTask(roomID)
	if err != nil {
		return fmt.Errorf("failed to build room full task: %w", err)
	}
	task := asynq.NewTask(TypeRoomFull, payload)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(RoomFullTaskID(roomID)),
		asynq.Queue(QueueLow),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue room full task: %w", err)
	}
	return nil
}
