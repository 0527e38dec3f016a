package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/tasks"
)

// RobotScheduler 机器人调度 (service.RobotService)
type RobotScheduler interface {
	Tick(ctx context.Context) error
	Withdraw(ctx context.Context, roomID, robotID int64) error
}

// RoomFullNotifier 满员推送 (service.NotifyService)
type RoomFullNotifier interface {
	NotifyRoomFull(ctx context.Context, roomID int64) (int, error)
}

// taskLogger 从 Task 和 Context 中提取日志字段
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	queue, _ := asynq.GetQueueName(ctx)
	retry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     retry,
		"max_retry": maxRetry,
	})
}

// RobotTickHandler 处理周期性的机器人调度任务
type RobotTickHandler struct {
	robots RobotScheduler
}

func NewRobotTickHandler(robots RobotScheduler) *RobotTickHandler {
	if robots == nil {
		panic("RobotScheduler cannot be nil for RobotTickHandler")
	}
	return &RobotTickHandler{robots: robots}
}

// ProcessTask 实现 asynq.Handler 接口。单轮失败不重试，下一轮会重新评估。
func (h *RobotTickHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)
	logCtx.Debug("Processing robot tick task...")
	if err := h.robots.Tick(ctx); err != nil {
		logCtx.WithError(err).Error("Robot tick failed")
		return fmt.Errorf("robot tick: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}

// RobotWithdrawHandler 处理延迟的机器人撤出任务
type RobotWithdrawHandler struct {
	robots RobotScheduler
}

func NewRobotWithdrawHandler(robots RobotScheduler) *RobotWithdrawHandler {
	if robots == nil {
		panic("RobotScheduler cannot be nil for RobotWithdrawHandler")
	}
	return &RobotWithdrawHandler{robots: robots}
}

func (h *RobotWithdrawHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	payload, err := tasks.ParseRobotWithdrawPayload(t.Payload())
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"room_id": payload.RoomID, "robot_id": payload.RobotID})

	if err := h.robots.Withdraw(ctx, payload.RoomID, payload.RobotID); err != nil {
		logCtx.WithError(err).Error("Robot withdrawal failed")
		return fmt.Errorf("withdraw robot %d from room %d: %w", payload.RobotID, payload.RoomID, err)
	}
	logCtx.Info("Robot withdraw task processed successfully")
	return nil
}

// RoomFullHandler 处理满员推送任务
type RoomFullHandler struct {
	notifier RoomFullNotifier
}

func NewRoomFullHandler(notifier RoomFullNotifier) *RoomFullHandler {
	if notifier == nil {
		panic("RoomFullNotifier cannot be nil for RoomFullHandler")
	}
	return &RoomFullHandler{notifier: notifier}
}

func (h *RoomFullHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	payload, err := tasks.ParseRoomFullPayload(t.Payload())
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	sent, err := h.notifier.NotifyRoomFull(ctx, payload.RoomID)
	if err != nil {
		logCtx.WithError(err).WithField("room_id", payload.RoomID).Error("Room full notification failed")
		return err
	}
	logCtx.WithFields(logrus.Fields{"room_id": payload.RoomID, "sent": sent}).Info("Room full task processed successfully")
	return nil
}
