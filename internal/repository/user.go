package repository

import (
	"context"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
)

// UserRepository 定义了用户数据的存储和检索操作。
type UserRepository interface {
	// FindByID 根据用户 ID 查找用户，不存在时返回 ErrUserNotFound。
	FindByID(ctx context.Context, id int64) (*domain.User, error)

	// FindByIDForUpdate 查找并锁定用户行。
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.User, error)

	// FindByIDs 批量查询，缺失的 ID 直接忽略。
	FindByIDs(ctx context.Context, ids []int64) ([]domain.User, error)

	// FindByOpenID 根据微信 open_id 查找用户。
	FindByOpenID(ctx context.Context, openID string) (*domain.User, error)

	// ExistsID 检查 ID 是否已被占用 (生成随机用户 ID 时使用)。
	ExistsID(ctx context.Context, id int64) (bool, error)

	// Create 插入新用户。唯一约束冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, user *domain.User) error

	// SetRoom 将用户标记为在房间 roomID 中 (status=1, enter_room_id=roomID)。
	SetRoom(ctx context.Context, userID, roomID int64) error

	// ClearRoom 将用户重置为空闲 (status=0, enter_room_id=NULL)。
	ClearRoom(ctx context.Context, userID int64) error

	// ClearRooms 批量重置。
	ClearRooms(ctx context.Context, userIDs []int64) error
}
