package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
)

// GormRobotRepository 机器人池的 GORM 实现
type GormRobotRepository struct {
	db *gorm.DB
}

func NewGormRobotRepository(db *gorm.DB) *GormRobotRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRobotRepository")
	}
	return &GormRobotRepository{db: db}
}

// AcquireIdle 锁定空闲机器人。SKIP LOCKED 让并发的调度实例拿到不同的机器人。
func (r *GormRobotRepository) AcquireIdle(ctx context.Context, n int) ([]domain.RobotUser, error) {
	var robots []domain.RobotUser
	if n <= 0 {
		return robots, nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", domain.RobotStatusIdle).
		Order("updated_at").Order("user_id DESC").
		Limit(n).
		Find(&robots).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: acquire %d idle robots: %w", n, err)
	}
	return robots, nil
}

// FindByIDsForUpdate 锁定指定机器人
func (r *GormRobotRepository) FindByIDsForUpdate(ctx context.Context, ids []int64) ([]domain.RobotUser, error) {
	var robots []domain.RobotUser
	if len(ids) == 0 {
		return robots, nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id IN ?", ids).
		Find(&robots).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: lock robots %v: %w", ids, err)
	}
	return robots, nil
}

func (r *GormRobotRepository) MarkBusy(ctx context.Context, ids []int64) error {
	return r.setStatus(ctx, ids, domain.RobotStatusBusy)
}

func (r *GormRobotRepository) MarkIdle(ctx context.Context, ids []int64) error {
	return r.setStatus(ctx, ids, domain.RobotStatusIdle)
}

func (r *GormRobotRepository) setStatus(ctx context.Context, ids []int64, status domain.RobotStatus) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&domain.RobotUser{}).
		Where("user_id IN ?", ids).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("gorm: set robot status %d for %v: %w", status, ids, err)
	}
	return nil
}

// Seed 预置机器人资料和池记录，已存在的跳过，返回新增的池记录数
func (r *GormRobotRepository) Seed(ctx context.Context, robots []domain.User) (int, error) {
	if len(robots) == 0 {
		return 0, nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&robots).Error; err != nil {
		return 0, fmt.Errorf("gorm: seed robot users: %w", err)
	}
	pool := make([]domain.RobotUser, 0, len(robots))
	for _, u := range robots {
		pool = append(pool, domain.RobotUser{UserID: u.UserID, Status: domain.RobotStatusIdle})
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&pool)
	if res.Error != nil {
		return 0, fmt.Errorf("gorm: seed robot pool: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
