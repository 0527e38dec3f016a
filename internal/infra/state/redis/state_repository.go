package redisstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultKeyPrefix 默认 key 前缀 (mahjong)
const DefaultKeyPrefix = "mj:"

// releaseLockScript 只删除仍属于自己的锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) tickLockKey() string {
	return r.keyPrefix + "robot:tick:lock"
}

func (r *RedisStateRepository) accessTokenKey() string {
	return r.keyPrefix + "wechat:access_token"
}

// RoomEventsChannel 牌桌变更事件频道
func RoomEventsChannel(keyPrefix string) string {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return keyPrefix + "tables:events"
}

// --- StateRepository Interface Implementation ---

// AcquireTickLock 获取调度锁
func (r *RedisStateRepository) AcquireTickLock(ctx context.Context, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	key := r.tickLockKey()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis: failed to acquire tick lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseTickLock 释放调度锁
func (r *RedisStateRepository) ReleaseTickLock(ctx context.Context, token string) error {
	key := r.tickLockKey()
	if err := releaseLockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: failed to release tick lock %s: %w", key, err)
	}
	return nil
}

// GetAccessToken 读取缓存的 access_token
func (r *RedisStateRepository) GetAccessToken(ctx context.Context) (string, error) {
	key := r.accessTokenKey()
	token, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis: failed to get access token from %s: %w", key, err)
	}
	return token, nil
}

// SetAccessToken 缓存 access_token
func (r *RedisStateRepository) SetAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	key := r.accessTokenKey()
	if err := r.client.Set(ctx, key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set access token on %s: %w", key, err)
	}
	return nil
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error) {
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, duration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", key, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", key, err)
	}
	return count > int64(limit), nil
}

// PublishRoomEvent 将房间变更发布到牌桌事件频道
func (r *RedisStateRepository) PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error {
	channel := RoomEventsChannel(r.keyPrefix)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal room event (room %d): %w", event.RoomID, err)
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"room_id":      event.RoomID,
			"event":        event.Type,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish room event to channel %s: %w", channel, err)
	}
	return nil
}

// DecodeRoomEvent 解析频道消息
func DecodeRoomEvent(payload string) (domain.RoomEvent, error) {
	var event domain.RoomEvent
	if err := json.UnmarshalFromString(payload, &event); err != nil {
		return event, fmt.Errorf("redis: failed to unmarshal room event: %w", err)
	}
	return event, nil
}

var _ repository.StateRepository = (*RedisStateRepository)(nil)
