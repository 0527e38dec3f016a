package repository

import (
	"context"
	"time"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
)

// StateRepository 定义了跨实例共享的轻量状态，通常由 Redis 实现。
// 房间与用户的持久状态不在这里，它们只能经由 UnitOfWork 修改。
type StateRepository interface {
	// === Scheduler Lock ===

	// AcquireTickLock 尝试获取机器人调度锁 (SET NX)。
	// 返回 token 与是否获取成功；释放时需要传回 token。
	AcquireTickLock(ctx context.Context, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseTickLock 仅在锁仍属于 token 时删除。
	ReleaseTickLock(ctx context.Context, token string) error

	// === WeChat Access Token ===

	// GetAccessToken 读取缓存的微信 access_token，未命中返回 ErrNotFound。
	GetAccessToken(ctx context.Context) (string, error)

	// SetAccessToken 缓存 access_token。
	SetAccessToken(ctx context.Context, token string, ttl time.Duration) error

	// === Rate Limiting ===

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限。
	CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error)

	// === PubSub ===

	// PublishRoomEvent 在事务提交后广播房间变更。
	PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error
}
