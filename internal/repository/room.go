package repository

import (
	"context"
	"time"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
)

// MembershipUpdate 离开房间后需要整体写回的字段
type MembershipUpdate struct {
	Participants []int64
	HostID       int64
	Status       domain.RoomStatus
	ReqNum       int
}

// RoomRepository 定义了牌桌 (table_list) 的存储和检索操作。
// 所有写操作都应在 UnitOfWork.Do 提供的事务中调用。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间，不加锁。
	// 房间不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id int64) (*domain.Room, error)

	// FindByIDForUpdate 查找并锁定房间行 (SELECT ... FOR UPDATE)。
	// 同一房间上的并发加入/离开由此串行化。
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Room, error)

	// Create 插入新房间，回填 ID 和时间戳。
	Create(ctx context.Context, room *domain.Room) error

	// UpdateParticipants 只写回成员列表 (加入房间)。
	UpdateParticipants(ctx context.Context, id int64, participants []int64) error

	// UpdateMembership 写回成员、房主、状态和人数 (离开房间)。
	UpdateMembership(ctx context.Context, id int64, upd MembershipUpdate) error

	// FindStaleOpenForUpdate 锁定所有已过开始时间或创建超过 maxAge 的招募中房间。
	FindStaleOpenForUpdate(ctx context.Context, now time.Time, maxAge time.Duration) ([]domain.Room, error)

	// MarkExpired 批量将房间置为过期终态。
	MarkExpired(ctx context.Context, ids []int64) error

	// ListActive 返回招募中、未超龄、开始时间未到的房间，按创建时间倒序。
	ListActive(ctx context.Context, now time.Time, maxAge time.Duration) ([]domain.Room, error)

	// CountActive 与 ListActive 条件相同的计数。
	CountActive(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error)

	// ListOpenRobotRooms 返回所有招募中的机器人房间。
	ListOpenRobotRooms(ctx context.Context) ([]domain.Room, error)

	// LatestRobotRoomCreatedAt 最近一次创建机器人房间的时间；没有时返回零值。
	LatestRobotRoomCreatedAt(ctx context.Context) (time.Time, error)

	// ListCreatedSince 用于后台导出。
	ListCreatedSince(ctx context.Context, since time.Time) ([]domain.Room, error)
}
