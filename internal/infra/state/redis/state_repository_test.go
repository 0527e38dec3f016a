package redisstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

func setupRepo(t *testing.T) (*RedisStateRepository, *miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStateRepository(client, "test:"), mr, client
}

func TestTickLock_Exclusive(t *testing.T) {
	repo, mr, _ := setupRepo(t)
	ctx := context.Background()

	token, ok, err := repo.AcquireTickLock(ctx, 50*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)
	assert.True(t, mr.Exists("test:robot:tick:lock"))

	_, ok, err = repo.AcquireTickLock(ctx, 50*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the lock is held")

	// 其他持有者的 token 不能释放锁
	require.NoError(t, repo.ReleaseTickLock(ctx, "someone-else"))
	assert.True(t, mr.Exists("test:robot:tick:lock"))

	require.NoError(t, repo.ReleaseTickLock(ctx, token))
	assert.False(t, mr.Exists("test:robot:tick:lock"))
}

func TestTickLock_Expires(t *testing.T) {
	repo, mr, _ := setupRepo(t)
	ctx := context.Background()

	_, ok, err := repo.AcquireTickLock(ctx, 50*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(51 * time.Second)

	_, ok, err = repo.AcquireTickLock(ctx, 50*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccessToken_Cache(t *testing.T) {
	repo, mr, _ := setupRepo(t)
	ctx := context.Background()

	_, err := repo.GetAccessToken(ctx)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.SetAccessToken(ctx, "tok", time.Minute))
	got, err := repo.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	mr.FastForward(2 * time.Minute)
	_, err = repo.GetAccessToken(ctx)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCheckRateLimit(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exceeded, err := repo.CheckRateLimit(ctx, "test:rl:1.2.3.4", 3, time.Second)
		require.NoError(t, err)
		assert.False(t, exceeded)
	}
	exceeded, err := repo.CheckRateLimit(ctx, "test:rl:1.2.3.4", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestPublishRoomEvent(t *testing.T) {
	repo, _, client := setupRepo(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, RoomEventsChannel("test:"))
	defer sub.Close()
	_, err := sub.Receive(ctx) // 等待订阅确认
	require.NoError(t, err)

	event := domain.RoomEvent{
		Type:         domain.RoomEventJoined,
		RoomID:       42,
		Status:       domain.RoomStatusOpen,
		HostID:       5,
		ReqNum:       4,
		Participants: []int64{5, -3},
	}
	require.NoError(t, repo.PublishRoomEvent(ctx, event))

	select {
	case msg := <-sub.Channel():
		got, err := DecodeRoomEvent(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, int64(42), got.RoomID)
		assert.Equal(t, []int64{5, -3}, got.Participants)
		assert.Equal(t, domain.RoomEventJoined, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("room event was not delivered")
	}
}
