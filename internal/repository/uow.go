package repository

import "context"

// Repos 绑定到同一个事务的仓库集合
type Repos struct {
	Rooms  RoomRepository
	Users  UserRepository
	Stores StoreRepository
	Robots RobotRepository
	Admins AdminRepository
}

// UnitOfWork 提供显式的事务边界。
// fn 返回 nil 则提交，返回错误或 panic 则整体回滚；ctx 被取消时同样回滚。
type UnitOfWork interface {
	Do(ctx context.Context, fn func(r Repos) error) error
}
