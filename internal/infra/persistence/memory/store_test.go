package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

func TestStore_Do_RollsBackOnError(t *testing.T) {
	s := NewStore()
	s.PutUser(domain.User{UserID: 1})
	roomID := s.PutRoom(domain.Room{HostID: 1, ReqNum: 4, Participants: "[1]"})

	boom := errors.New("boom")
	err := s.Do(context.Background(), func(r repository.Repos) error {
		require.NoError(t, r.Rooms.UpdateParticipants(context.Background(), roomID, []int64{1, 2}))
		require.NoError(t, r.Users.SetRoom(context.Background(), 1, roomID))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	room, ok := s.Room(roomID)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, room.ParticipantIDs())
	u, _ := s.User(1)
	assert.Equal(t, domain.UserStatusIdle, u.Status)
	assert.Nil(t, u.EnterRoomID)
}

func TestStore_Do_Commits(t *testing.T) {
	s := NewStore()
	s.PutUser(domain.User{UserID: 1})

	var created domain.Room
	err := s.Do(context.Background(), func(r repository.Repos) error {
		created = domain.Room{HostID: 1, ReqNum: 4, StartTime: time.Now().Add(time.Hour)}
		created.SetParticipantIDs([]int64{1})
		if err := r.Rooms.Create(context.Background(), &created); err != nil {
			return err
		}
		return r.Users.SetRoom(context.Background(), 1, created.ID)
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	u, _ := s.User(1)
	id, in := u.InRoom()
	assert.True(t, in)
	assert.Equal(t, created.ID, id)
}

func TestStore_Do_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Do(ctx, func(r repository.Repos) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStore_ActiveAndStaleQueries(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return now }))
	fresh := s.PutRoom(domain.Room{StartTime: now.Add(time.Hour), CreatedAt: now.Add(-time.Minute)})
	newer := s.PutRoom(domain.Room{StartTime: now.Add(time.Hour), CreatedAt: now})
	started := s.PutRoom(domain.Room{StartTime: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)})
	old := s.PutRoom(domain.Room{StartTime: now.Add(time.Hour), CreatedAt: now.Add(-3 * time.Hour)})
	s.PutRoom(domain.Room{StartTime: now.Add(time.Hour), CreatedAt: now, Status: domain.RoomStatusExpired})

	err := s.Do(context.Background(), func(r repository.Repos) error {
		active, err := r.Rooms.ListActive(context.Background(), now, domain.RoomMaxAge)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, newer, active[0].ID)
		assert.Equal(t, fresh, active[1].ID)

		stale, err := r.Rooms.FindStaleOpenForUpdate(context.Background(), now, domain.RoomMaxAge)
		require.NoError(t, err)
		require.Len(t, stale, 2)
		assert.Equal(t, started, stale[0].ID)
		assert.Equal(t, old, stale[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_RobotPool(t *testing.T) {
	s := NewStore()
	err := s.Do(context.Background(), func(r repository.Repos) error {
		n, err := r.Robots.Seed(context.Background(), []domain.User{{UserID: -1}, {UserID: -2}})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = r.Robots.Seed(context.Background(), []domain.User{{UserID: -1}})
		require.NoError(t, err)
		assert.Zero(t, n)

		idle, err := r.Robots.AcquireIdle(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, idle, 1)
		return r.Robots.MarkBusy(context.Background(), []int64{idle[0].UserID})
	})
	require.NoError(t, err)

	busy := 0
	for _, id := range []int64{-1, -2} {
		rb, ok := s.Robot(id)
		require.True(t, ok)
		if rb.Status == domain.RobotStatusBusy {
			busy++
		}
	}
	assert.Equal(t, 1, busy)
}
