package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// GormUserRepository 是 UserRepository 接口的 GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GormUserRepository 实例
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	if db == nil {
		panic("database connection cannot be nil for GormUserRepository")
	}
	return &GormUserRepository{db: db}
}

// FindByID 实现根据用户 ID 查找用户
func (r *GormUserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by id %d: %w", id, err)
	}
	return &user, nil
}

// FindByIDForUpdate 加行锁读取用户
func (r *GormUserRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", id).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: lock user %d: %w", id, err)
	}
	return &user, nil
}

// FindByIDs 批量查询用户
func (r *GormUserRepository) FindByIDs(ctx context.Context, ids []int64) ([]domain.User, error) {
	var users []domain.User
	if len(ids) == 0 {
		return users, nil // 避免空的 IN 查询
	}
	if err := r.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("gorm: find users by ids: %w", err)
	}
	return users, nil
}

// FindByOpenID 根据微信 open_id 查找
func (r *GormUserRepository) FindByOpenID(ctx context.Context, openID string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("open_id = ?", openID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by open_id: %w", err)
	}
	return &user, nil
}

// ExistsID 检查用户 ID 是否已被占用
func (r *GormUserRepository) ExistsID(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", id).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count users by id %d: %w", id, err)
	}
	return count > 0, nil
}

// Create 插入新用户
func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create user %d: %w", user.UserID, err)
	}
	return nil
}

// SetRoom 标记用户进入房间
func (r *GormUserRepository) SetRoom(ctx context.Context, userID, roomID int64) error {
	err := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"status":        domain.UserStatusInRoom,
			"enter_room_id": roomID,
		}).Error
	if err != nil {
		return fmt.Errorf("gorm: set room %d for user %d: %w", roomID, userID, err)
	}
	return nil
}

// ClearRoom 重置为空闲
func (r *GormUserRepository) ClearRoom(ctx context.Context, userID int64) error {
	return r.ClearRooms(ctx, []int64{userID})
}

// ClearRooms 批量重置为空闲
func (r *GormUserRepository) ClearRooms(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("user_id IN ?", userIDs).
		Updates(map[string]interface{}{
			"status":        domain.UserStatusIdle,
			"enter_room_id": gorm.Expr("NULL"),
		}).Error
	if err != nil {
		return fmt.Errorf("gorm: clear room of users %v: %w", userIDs, err)
	}
	return nil
}
