package repository

import (
	"context"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
)

// StoreRepository 门店目录，只读。
type StoreRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Store, error)
	FindByIDs(ctx context.Context, ids []int64) ([]domain.Store, error)
	// ListActive 返回所有营业中的门店
	ListActive(ctx context.Context) ([]domain.Store, error)
}

// AdminRepository 后台账号
type AdminRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.Admin, error)
	Save(ctx context.Context, admin *domain.Admin) error
}
