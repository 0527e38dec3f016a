package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// GormStoreRepository 门店目录的 GORM 实现 (只读)
type GormStoreRepository struct {
	db *gorm.DB
}

func NewGormStoreRepository(db *gorm.DB) *GormStoreRepository {
	if db == nil {
		panic("database connection cannot be nil for GormStoreRepository")
	}
	return &GormStoreRepository{db: db}
}

func (r *GormStoreRepository) FindByID(ctx context.Context, id int64) (*domain.Store, error) {
	var store domain.Store
	err := r.db.WithContext(ctx).First(&store, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrStoreNotFound
		}
		return nil, fmt.Errorf("gorm: find store by id %d: %w", id, err)
	}
	return &store, nil
}

func (r *GormStoreRepository) FindByIDs(ctx context.Context, ids []int64) ([]domain.Store, error) {
	var stores []domain.Store
	if len(ids) == 0 {
		return stores, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("gorm: find stores by ids: %w", err)
	}
	return stores, nil
}

func (r *GormStoreRepository) ListActive(ctx context.Context) ([]domain.Store, error) {
	var stores []domain.Store
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.StoreStatusActive).
		Order("id").
		Find(&stores).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list active stores: %w", err)
	}
	return stores, nil
}

// GormAdminRepository 后台账号
type GormAdminRepository struct {
	db *gorm.DB
}

func NewGormAdminRepository(db *gorm.DB) *GormAdminRepository {
	if db == nil {
		panic("database connection cannot be nil for GormAdminRepository")
	}
	return &GormAdminRepository{db: db}
}

func (r *GormAdminRepository) FindByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	var admin domain.Admin
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrAdminNotFound
		}
		return nil, fmt.Errorf("gorm: find admin by username '%s': %w", username, err)
	}
	return &admin, nil
}

// Save 创建或更新 (按主键)
func (r *GormAdminRepository) Save(ctx context.Context, admin *domain.Admin) error {
	if err := r.db.WithContext(ctx).Save(admin).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save admin '%s': %w", admin.Username, err)
	}
	return nil
}
