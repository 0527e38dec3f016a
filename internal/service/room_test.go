package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/persistence/memory"
)

func newRoomFixture() (*RoomService, *recordingPublisher, *recordingNotifier, *memory.Store) {
	s := newTestStore()
	s.PutStore(domain.Store{ID: 1, Name: "东风麻将馆", Address: "人民路 1 号", Status: domain.StoreStatusActive})
	pub := &recordingPublisher{}
	notifier := &recordingNotifier{}
	svc := NewRoomService(s, NewRoomEngine(), pub, notifier).WithClock(fixedClock(testNow))
	return svc, pub, notifier, s
}

func TestRoomService_CreateRoom(t *testing.T) {
	svc, pub, _, fx := newRoomFixture()
	seedUsers(fx, 5)

	room, err := svc.CreateRoom(context.Background(), CreateRoomInput{
		HostID:    5,
		StoreID:   1,
		StartTime: testNow.Add(time.Hour),
		ReqNum:    3,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, room.ParticipantIDs())
	assert.Equal(t, 3, room.ReqNum)

	id, in := mustUser(t, fx, 5).InRoom()
	assert.True(t, in)
	assert.Equal(t, room.ID, id)
	assert.Equal(t, []domain.RoomEventType{domain.RoomEventCreated}, pub.types())
}

func TestRoomService_CreateRoom_Validation(t *testing.T) {
	svc, _, _, fx := newRoomFixture()
	seedUsers(fx, 5, 6)
	seedRoom(fx, 6, []int64{6}, 4)
	ctx := context.Background()
	future := testNow.Add(time.Hour)

	tests := []struct {
		name string
		in   CreateRoomInput
		want error
	}{
		{"invalid req_num", CreateRoomInput{HostID: 5, StoreID: 1, StartTime: future, ReqNum: 2}, ErrInvalidRoomParams},
		{"start time in past", CreateRoomInput{HostID: 5, StoreID: 1, StartTime: testNow}, ErrInvalidStartTime},
		{"unknown store", CreateRoomInput{HostID: 5, StoreID: 42, StartTime: future}, ErrStoreNotFound},
		{"unknown host", CreateRoomInput{HostID: 77, StoreID: 1, StartTime: future}, ErrUserNotFound},
		{"host already in open room", CreateRoomInput{HostID: 6, StoreID: 1, StartTime: future}, ErrAlreadyInRoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRoom(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRoomService_CreateRoom_StalePointerCountsAsIdle(t *testing.T) {
	svc, _, _, fx := newRoomFixture()
	old := seedRoom(fx, 5, []int64{5}, 4)
	room := mustRoom(t, fx, old)
	room.Status = domain.RoomStatusExpired
	fx.PutRoom(room)

	_, err := svc.CreateRoom(context.Background(), CreateRoomInput{HostID: 5, StoreID: 1, StartTime: testNow.Add(time.Hour)})
	require.NoError(t, err)
}

func TestRoomService_AdminCreateRoom(t *testing.T) {
	svc, _, notifier, fx := newRoomFixture()
	seedUsers(fx, 5, 6, 7)
	for _, id := range []int64{-1, -2} {
		fx.PutUser(domain.User{UserID: id, Nickname: "牌友"})
		fx.PutRobot(domain.RobotUser{UserID: id, Status: domain.RobotStatusIdle})
	}

	room, err := svc.AdminCreateRoom(context.Background(), AdminCreateRoomInput{
		Participants: []int64{5, -1, 5, 6},
		StoreID:      1,
		StartTime:    testNow.Add(time.Hour),
		ReqNum:       3,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, -1, 6}, room.ParticipantIDs())
	assert.Equal(t, int64(5), room.HostID)
	assert.True(t, room.IsRobotRoom)

	rb, _ := fx.Robot(-1)
	assert.Equal(t, domain.RobotStatusBusy, rb.Status)
	for _, id := range []int64{5, -1, 6} {
		got, in := mustUser(t, fx, id).InRoom()
		assert.True(t, in)
		assert.Equal(t, room.ID, got)
	}
	assert.Equal(t, []int64{room.ID}, notifier.rooms, "full room triggers notification")

	_, err = svc.AdminCreateRoom(context.Background(), AdminCreateRoomInput{
		Participants: []int64{7, -1},
		StoreID:      1,
		StartTime:    testNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrAlreadyInRoom, "robot already seated")

	_, err = svc.AdminCreateRoom(context.Background(), AdminCreateRoomInput{
		Participants: []int64{7, -9},
		StoreID:      1,
		StartTime:    testNow.Add(time.Hour),
	})
	assert.Error(t, err)
}

func TestRoomService_AdminCreateRoom_InvalidParticipants(t *testing.T) {
	svc, _, _, _ := newRoomFixture()
	ctx := context.Background()
	start := testNow.Add(time.Hour)

	_, err := svc.AdminCreateRoom(ctx, AdminCreateRoomInput{StoreID: 1, StartTime: start})
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = svc.AdminCreateRoom(ctx, AdminCreateRoomInput{Participants: []int64{1, 2, 3, 4}, StoreID: 1, StartTime: start, ReqNum: 3})
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = svc.AdminCreateRoom(ctx, AdminCreateRoomInput{Participants: []int64{1, 0}, StoreID: 1, StartTime: start})
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestRoomService_AdminCreateRoom_BusyRobot(t *testing.T) {
	svc, _, _, fx := newRoomFixture()
	seedUsers(fx, 5)
	fx.PutUser(domain.User{UserID: -3})
	fx.PutRobot(domain.RobotUser{UserID: -3, Status: domain.RobotStatusBusy})

	_, err := svc.AdminCreateRoom(context.Background(), AdminCreateRoomInput{
		Participants: []int64{5, -3},
		StoreID:      1,
		StartTime:    testNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrRobotUnavailable)
	_, in := mustUser(t, fx, 5).InRoom()
	assert.False(t, in, "failed create must not seat anyone")
}

func TestRoomService_EnterRoom_FallsBackToCurrentPointer(t *testing.T) {
	svc, pub, _, fx := newRoomFixture()
	current := seedRoom(fx, 6, []int64{6, 5}, 4)
	target := seedRoom(fx, 1, []int64{1}, 4)

	res, err := svc.EnterRoom(context.Background(), 5, target, nil)
	require.NoError(t, err)
	require.NotNil(t, res.LeftTableID)
	assert.Equal(t, current, *res.LeftTableID)
	assert.Equal(t, []int64{1, 5}, res.Participants)
	assert.Equal(t, []int64{6}, mustRoom(t, fx, current).ParticipantIDs())
	assert.Equal(t, []domain.RoomEventType{domain.RoomEventLeft, domain.RoomEventJoined}, pub.types())
}

func TestRoomService_EnterRoom_StaleCurrentTableID(t *testing.T) {
	svc, pub, _, fx := newRoomFixture()
	actual := seedRoom(fx, 6, []int64{6, 5}, 4)
	other := seedRoom(fx, 7, []int64{7}, 4)
	target := seedRoom(fx, 1, []int64{1}, 4)

	// 客户端传来的当前房间与用户实际所在房间不一致
	res, err := svc.EnterRoom(context.Background(), 5, target, &other)
	require.NoError(t, err)
	require.NotNil(t, res.LeftTableID)
	assert.Equal(t, actual, *res.LeftTableID)
	assert.Equal(t, []int64{1, 5}, res.Participants)

	assert.Equal(t, []int64{6}, mustRoom(t, fx, actual).ParticipantIDs())
	assert.Equal(t, []int64{7}, mustRoom(t, fx, other).ParticipantIDs())
	roomID, ok := mustUser(t, fx, 5).InRoom()
	require.True(t, ok)
	assert.Equal(t, target, roomID)
	assert.Equal(t, []domain.RoomEventType{domain.RoomEventLeft, domain.RoomEventJoined}, pub.types())
}

func TestRoomService_EnterRoom_UnknownUser(t *testing.T) {
	svc, pub, _, fx := newRoomFixture()
	target := seedRoom(fx, 1, []int64{1}, 4)

	_, err := svc.EnterRoom(context.Background(), 42, target, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, []int64{1}, mustRoom(t, fx, target).ParticipantIDs())
	assert.Empty(t, pub.types())
}

func TestRoomService_EnterRoom_FullTriggersNotification(t *testing.T) {
	svc, _, notifier, fx := newRoomFixture()
	seedUsers(fx, 9)
	target := seedRoom(fx, 1, []int64{1, 2, 3}, 4)

	res, err := svc.EnterRoom(context.Background(), 9, target, nil)
	require.NoError(t, err)
	assert.True(t, res.IsFull)
	assert.Equal(t, []int64{target}, notifier.rooms)
}

func TestRoomService_EnterRoom_Declines(t *testing.T) {
	svc, _, _, fx := newRoomFixture()
	seedUsers(fx, 9)
	full := seedRoom(fx, 1, []int64{1, 2, 3, 4}, 4)

	_, err := svc.EnterRoom(context.Background(), 9, full, nil)
	assert.ErrorIs(t, err, ErrRoomFull)

	_, err = svc.EnterRoom(context.Background(), 9, 999, nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = svc.EnterRoom(context.Background(), 1, full, nil)
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestRoomService_EnterRoom_ConcurrentJoinsRespectCapacity(t *testing.T) {
	svc, _, _, fx := newRoomFixture()
	target := seedRoom(fx, 1, []int64{1}, 4)
	users := []int64{11, 12, 13, 14, 15, 16, 17, 18}
	seedUsers(fx, users...)

	var ok, full int32
	var wg sync.WaitGroup
	for _, id := range users {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.EnterRoom(context.Background(), id, target, nil)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case assert.ErrorIs(t, err, ErrRoomFull):
				atomic.AddInt32(&full, 1)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok)
	assert.Equal(t, int32(5), full)
	assert.Len(t, mustRoom(t, fx, target).ParticipantIDs(), 4)
}

func TestRoomService_ExitRoom(t *testing.T) {
	svc, pub, _, fx := newRoomFixture()
	roomID := seedRoom(fx, 5, []int64{5}, 3)

	_, err := svc.ExitRoom(context.Background(), 9, roomID)
	assert.ErrorIs(t, err, ErrNotInRoom)

	res, err := svc.ExitRoom(context.Background(), 5, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusExpired, res.Status)
	assert.Empty(t, res.Participants)
	assert.Equal(t, []domain.RoomEventType{domain.RoomEventExpired}, pub.types())

	_, err = svc.ExitRoom(context.Background(), 5, 999)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
