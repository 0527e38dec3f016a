package gormpersistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id int64) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

// FindByIDForUpdate 加行锁读取房间
func (r *GormRoomRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: lock room %d: %w", id, err)
	}
	return &room, nil
}

// Create 插入新房间
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if room.Participants == "" {
		room.Participants = domain.EncodeParticipants(nil)
	}
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (host: %d, store: %d): %w", room.HostID, room.StoreID, err)
	}
	return nil
}

// UpdateParticipants 写回成员列表
func (r *GormRoomRepository) UpdateParticipants(ctx context.Context, id int64, participants []int64) error {
	err := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", id).
		Update("participants", domain.EncodeParticipants(participants)).Error
	if err != nil {
		return fmt.Errorf("gorm: update participants of room %d: %w", id, err)
	}
	return nil
}

// UpdateMembership 写回离开房间后的成员、房主、状态和人数
func (r *GormRoomRepository) UpdateMembership(ctx context.Context, id int64, upd repository.MembershipUpdate) error {
	err := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"participants": domain.EncodeParticipants(upd.Participants),
			"host_id":      upd.HostID,
			"status":       upd.Status,
			"req_num":      upd.ReqNum,
		}).Error
	if err != nil {
		return fmt.Errorf("gorm: update membership of room %d: %w", id, err)
	}
	return nil
}

// staleScope 招募中且 (已过开始时间 或 创建超过 maxAge)
func staleScope(now time.Time, maxAge time.Duration) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", domain.RoomStatusOpen).
			Where("start_time <= ? OR created_at < ?", now, now.Add(-maxAge))
	}
}

// activeScope 招募中、未超龄、开始时间未到
func activeScope(now time.Time, maxAge time.Duration) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", domain.RoomStatusOpen).
			Where("created_at >= ?", now.Add(-maxAge)).
			Where("start_time > ?", now)
	}
}

// FindStaleOpenForUpdate 锁定所有需要过期回收的房间
func (r *GormRoomRepository) FindStaleOpenForUpdate(ctx context.Context, now time.Time, maxAge time.Duration) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(staleScope(now, maxAge)).
		Order("id").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find stale rooms: %w", err)
	}
	return rooms, nil
}

// MarkExpired 批量置为过期
func (r *GormRoomRepository) MarkExpired(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id IN ?", ids).
		Update("status", domain.RoomStatusExpired).Error
	if err != nil {
		return fmt.Errorf("gorm: mark rooms expired: %w", err)
	}
	return nil
}

// ListActive 返回可加入的房间，创建时间倒序
func (r *GormRoomRepository) ListActive(ctx context.Context, now time.Time, maxAge time.Duration) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Scopes(activeScope(now, maxAge)).
		Order("created_at DESC").Order("id DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list active rooms: %w", err)
	}
	return rooms, nil
}

// CountActive 可加入房间数
func (r *GormRoomRepository) CountActive(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).
		Scopes(activeScope(now, maxAge)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count active rooms: %w", err)
	}
	return count, nil
}

// ListOpenRobotRooms 招募中的机器人房间
func (r *GormRoomRepository) ListOpenRobotRooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("is_robot_room = ? AND status = ?", true, domain.RoomStatusOpen).
		Order("id").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list open robot rooms: %w", err)
	}
	return rooms, nil
}

// LatestRobotRoomCreatedAt 最近一个机器人房间的创建时间
func (r *GormRoomRepository) LatestRobotRoomCreatedAt(ctx context.Context) (time.Time, error) {
	var latest sql.NullTime
	row := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("is_robot_room = ?", true).
		Select("MAX(created_at)").
		Row()
	if err := row.Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("gorm: latest robot room: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

// ListCreatedSince 导出用，按创建时间倒序
func (r *GormRoomRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list rooms since %s: %w", since.Format(time.RFC3339), err)
	}
	return rooms, nil
}
