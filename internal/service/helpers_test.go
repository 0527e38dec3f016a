package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/persistence/memory"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

var testNow = time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestStore() *memory.Store {
	return memory.NewStore(memory.WithClock(fixedClock(testNow)))
}

func seedUsers(s *memory.Store, ids ...int64) {
	for _, id := range ids {
		s.PutUser(domain.User{UserID: id, Nickname: "u"})
	}
}

// seedRoom 放入一个招募中的房间，并同步设置成员的所在房间指针
func seedRoom(s *memory.Store, host int64, participants []int64, reqNum int) int64 {
	room := domain.Room{
		HostID:    host,
		StoreID:   1,
		ReqNum:    reqNum,
		Status:    domain.RoomStatusOpen,
		StartTime: testNow.Add(2 * time.Hour),
		CreatedAt: testNow.Add(-10 * time.Minute),
		UpdatedAt: testNow.Add(-10 * time.Minute),
	}
	room.SetParticipantIDs(participants)
	id := s.PutRoom(room)
	for _, p := range participants {
		u, ok := s.User(p)
		if !ok {
			u = domain.User{UserID: p}
		}
		rid := id
		u.Status = domain.UserStatusInRoom
		u.EnterRoomID = &rid
		s.PutUser(u)
	}
	return id
}

func mustRoom(t *testing.T, s *memory.Store, id int64) domain.Room {
	t.Helper()
	room, ok := s.Room(id)
	require.True(t, ok, "room %d not found", id)
	return room
}

func mustUser(t *testing.T, s *memory.Store, id int64) domain.User {
	t.Helper()
	u, ok := s.User(id)
	require.True(t, ok, "user %d not found", id)
	return u
}

// inTx 在单个事务中执行并要求成功
func inTx(t *testing.T, s *memory.Store, fn func(r repository.Repos) error) {
	t.Helper()
	require.NoError(t, s.Do(context.Background(), fn))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (p *recordingPublisher) PublishRoomEvent(ctx context.Context, e domain.RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []domain.RoomEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.RoomEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	rooms []int64
}

func (n *recordingNotifier) EnqueueRoomFull(ctx context.Context, roomID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rooms = append(n.rooms, roomID)
	return nil
}

// fixedRand 总是返回固定值
type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) IntN(n int) int {
	if r.n >= n {
		return n - 1
	}
	return r.n
}
