package gormpersistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// UnitOfWork 基于 gorm 事务的 repository.UnitOfWork 实现
type UnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork 创建 UnitOfWork
func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	if db == nil {
		panic("database connection cannot be nil for UnitOfWork")
	}
	return &UnitOfWork{db: db}
}

// Do 在一个数据库事务中执行 fn，所有仓库共享同一个 tx。
// gorm 在 fn 返回错误或 panic 时回滚。
func (u *UnitOfWork) Do(ctx context.Context, fn func(r repository.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepos(tx))
	})
}

// NewRepos 用给定的连接 (或事务) 构造整套仓库
func NewRepos(db *gorm.DB) repository.Repos {
	return repository.Repos{
		Rooms:  NewGormRoomRepository(db),
		Users:  NewGormUserRepository(db),
		Stores: NewGormStoreRepository(db),
		Robots: NewGormRobotRepository(db),
		Admins: NewGormAdminRepository(db),
	}
}

var _ repository.UnitOfWork = (*UnitOfWork)(nil)
