package repository

import (
	"context"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
)

// RobotRepository 机器人池。只标记占用/空闲，不创建也不删除池成员
// (Seed 仅供运维命令预置)。
type RobotRepository interface {
	// AcquireIdle 锁定最多 n 个空闲机器人 (FOR UPDATE SKIP LOCKED)，不修改状态。
	AcquireIdle(ctx context.Context, n int) ([]domain.RobotUser, error)

	// FindByIDsForUpdate 锁定指定的池记录，不存在的 ID 被忽略。
	FindByIDsForUpdate(ctx context.Context, ids []int64) ([]domain.RobotUser, error)

	// MarkBusy / MarkIdle 批量修改池状态，ids 为负数的用户 ID。
	MarkBusy(ctx context.Context, ids []int64) error
	MarkIdle(ctx context.Context, ids []int64) error

	// Seed 预置机器人资料与池记录，已存在的跳过。
	Seed(ctx context.Context, robots []domain.User) (int, error)
}
