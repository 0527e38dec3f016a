package hub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	redisstate "github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/state/redis"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func register(t *testing.T, h *Hub, clients ...*Client) {
	t.Helper()
	for _, c := range clients {
		require.True(t, h.QueueMessage(HubMessage{Type: "register", Client: c}))
	}
	require.Eventually(t, func() bool { return h.ClientCount() == len(clients) }, time.Second, 5*time.Millisecond)
}

func receive(t *testing.T, c *Client) domain.RoomEvent {
	t.Helper()
	select {
	case msg := <-c.send:
		var got eventMessage
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "table_event", got.Type)
		return got.Event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return domain.RoomEvent{}
	}
}

func TestHub_BroadcastRoutesByTopic(t *testing.T) {
	h := startHub(t)
	all := NewClient(h, nil, AllTables, 0)
	five := NewClient(h, nil, 5, 7)
	register(t, h, all, five)

	require.True(t, h.Publish(domain.RoomEvent{Type: domain.RoomEventJoined, RoomID: 5, Participants: []int64{1, 7}}))
	assert.Equal(t, int64(5), receive(t, all).RoomID)
	ev := receive(t, five)
	assert.Equal(t, domain.RoomEventJoined, ev.Type)
	assert.Equal(t, []int64{1, 7}, ev.Participants)

	require.True(t, h.Publish(domain.RoomEvent{Type: domain.RoomEventCreated, RoomID: 6}))
	assert.Equal(t, int64(6), receive(t, all).RoomID)
	select {
	case <-five.send:
		t.Fatal("client subscribed to table 5 must not receive table 6 events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	h := startHub(t)
	c := NewClient(h, nil, AllTables, 0)
	register(t, h, c)

	require.True(t, h.QueueMessage(HubMessage{Type: "unregister", Client: c}))
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestHub_SubscribeForwardsRedisEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := startHub(t)
	c := NewClient(h, nil, AllTables, 0)
	register(t, h, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Subscribe(ctx, rdb, redisstate.RoomEventsChannel("mj:")) }()

	states := redisstate.NewRedisStateRepository(rdb, "mj:")
	event := domain.RoomEvent{Type: domain.RoomEventLeft, RoomID: 9, HostID: 3, Participants: []int64{3}}

	// 订阅建立之前发布的消息会丢失，因此重复发布直到收到
	var got domain.RoomEvent
	require.Eventually(t, func() bool {
		_ = states.PublishRoomEvent(context.Background(), event)
		select {
		case msg := <-c.send:
			var m eventMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				return false
			}
			got = m.Event
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(9), got.RoomID)
	assert.Equal(t, domain.RoomEventLeft, got.Type)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}
