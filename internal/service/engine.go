package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// DefaultMaxCapacity 换桌/加入时使用的人数上限，实际上限还受房间 req_num 约束。
const DefaultMaxCapacity = 4

// Reason 描述一次被拒绝的加入/离开。空值表示成功。
// 拒绝是正常的业务结果，不是错误，不会导致事务回滚。
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonRoomNotFound  Reason = "ROOM_NOT_FOUND"
	ReasonTableNotFound Reason = "TABLE_NOT_FOUND"
	ReasonAlreadyInRoom Reason = "ALREADY_IN_ROOM"
	ReasonRoomFull      Reason = "ROOM_FULL"
	ReasonNotInRoom     Reason = "NOT_IN_ROOM"
	ReasonRoomClosed    Reason = "ROOM_CLOSED"
)

// DeclineError 把拒绝原因包装成错误，用于需要整体回滚的组合操作 (换桌)。
type DeclineError struct {
	Reason Reason
}

func (e *DeclineError) Error() string { return "declined: " + string(e.Reason) }

// Unwrap 让 errors.Is(err, ErrRoomFull) 等判断可用
func (e *DeclineError) Unwrap() error { return ReasonError(e.Reason) }

// JoinResult 加入结果
type JoinResult struct {
	Reason       Reason
	RoomID       int64
	HostID       int64
	Status       domain.RoomStatus
	ReqNum       int
	Participants []int64
}

// OK 是否加入成功
func (r JoinResult) OK() bool { return r.Reason == ReasonNone }

// Full 加入后是否满员
func (r JoinResult) Full() bool { return r.OK() && len(r.Participants) >= r.ReqNum }

// LeaveResult 离开结果，字段为离开后的房间状态
type LeaveResult struct {
	Reason       Reason
	RoomID       int64
	HostID       int64
	Status       domain.RoomStatus
	ReqNum       int
	Participants []int64
}

func (r LeaveResult) OK() bool { return r.Reason == ReasonNone }

// SwitchResult 换桌结果。Left 为 nil 表示没有发生离开。
type SwitchResult struct {
	Left   *LeaveResult
	Joined JoinResult
}

// RoomEngine 是唯一允许修改房间成员、房主、状态、人数以及用户所在房间指针的组件。
// 所有方法都在调用方提供的事务 (repository.Repos) 中执行。
type RoomEngine struct{}

// NewRoomEngine 创建 RoomEngine
func NewRoomEngine() *RoomEngine {
	return &RoomEngine{}
}

// Join 将 userID 追加到房间成员末尾，并设置用户的所在房间。
// 实际上限为 min(maxCapacity, req_num)。
func (e *RoomEngine) Join(ctx context.Context, r repository.Repos, roomID, userID int64, maxCapacity int) (JoinResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	room, err := r.Rooms.FindByIDForUpdate(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return JoinResult{Reason: ReasonRoomNotFound, RoomID: roomID}, nil
		}
		return JoinResult{}, fmt.Errorf("join room %d: %w", roomID, err)
	}

	ids := domain.DedupeParticipants(room.ParticipantIDs())
	res := JoinResult{
		RoomID:       room.ID,
		HostID:       room.HostID,
		Status:       room.Status,
		ReqNum:       room.ReqNum,
		Participants: ids,
	}

	if domain.ContainsParticipant(ids, userID) {
		res.Reason = ReasonAlreadyInRoom
		return res, nil
	}
	if room.Status != domain.RoomStatusOpen {
		res.Reason = ReasonRoomClosed
		return res, nil
	}
	if len(ids) >= joinCapacity(maxCapacity, room.ReqNum) {
		res.Reason = ReasonRoomFull
		return res, nil
	}

	ids = append(ids, userID)
	if err := r.Rooms.UpdateParticipants(ctx, room.ID, ids); err != nil {
		return JoinResult{}, fmt.Errorf("join room %d: %w", roomID, err)
	}
	if err := r.Users.SetRoom(ctx, userID, room.ID); err != nil {
		return JoinResult{}, fmt.Errorf("join room %d: %w", roomID, err)
	}

	res.Participants = ids
	logCtx.WithField("count", len(ids)).Debug("Participant joined")
	return res, nil
}

func joinCapacity(maxCapacity, reqNum int) int {
	if reqNum > 0 && reqNum < maxCapacity {
		return reqNum
	}
	return maxCapacity
}

// Leave 将 userID 移出房间。
//   - 房主离开时，剩余成员中的第一个成为新房主；房间清空时房主保持为离开者。
//   - 房主离开且 req_num 为 3 时，req_num 变为 4。
//   - 房间清空时状态变为已过期。
//   - 仅当新状态为招募中或已过期时写回房间行。
//   - 离开者的所在房间指针总是被清除。
func (e *RoomEngine) Leave(ctx context.Context, r repository.Repos, roomID, userID int64) (LeaveResult, error) {
	room, err := r.Rooms.FindByIDForUpdate(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return LeaveResult{Reason: ReasonTableNotFound, RoomID: roomID}, nil
		}
		return LeaveResult{}, fmt.Errorf("leave room %d: %w", roomID, err)
	}

	ids := domain.DedupeParticipants(room.ParticipantIDs())
	if !domain.ContainsParticipant(ids, userID) {
		return LeaveResult{
			Reason:       ReasonNotInRoom,
			RoomID:       room.ID,
			HostID:       room.HostID,
			Status:       room.Status,
			ReqNum:       room.ReqNum,
			Participants: ids,
		}, nil
	}

	remaining := domain.RemoveParticipant(ids, userID)
	hostID := room.HostID
	reqNum := room.ReqNum
	if room.HostID == userID {
		if len(remaining) > 0 {
			hostID = remaining[0]
		}
		if reqNum == 3 {
			reqNum = 4
		}
	}
	status := room.Status
	if len(remaining) == 0 {
		status = domain.RoomStatusExpired
	}

	if status == domain.RoomStatusOpen || status == domain.RoomStatusExpired {
		err := r.Rooms.UpdateMembership(ctx, room.ID, repository.MembershipUpdate{
			Participants: remaining,
			HostID:       hostID,
			Status:       status,
			ReqNum:       reqNum,
		})
		if err != nil {
			return LeaveResult{}, fmt.Errorf("leave room %d: %w", roomID, err)
		}
	}
	if err := r.Users.ClearRoom(ctx, userID); err != nil {
		return LeaveResult{}, fmt.Errorf("leave room %d: %w", roomID, err)
	}

	logrus.WithFields(logrus.Fields{
		"room_id": room.ID,
		"user_id": userID,
		"host_id": hostID,
		"status":  status,
		"req_num": reqNum,
	}).Debug("Participant left")

	return LeaveResult{
		RoomID:       room.ID,
		HostID:       hostID,
		Status:       status,
		ReqNum:       reqNum,
		Participants: remaining,
	}, nil
}

// EnterOrSwitch 先离开 currentID (若提供且不同于目标)，再加入 targetID。
// 离开的拒绝被忽略；加入被拒绝时返回 *DeclineError，调用方的事务必须因此回滚，
// 保证换桌失败时用户仍留在原房间。
func (e *RoomEngine) EnterOrSwitch(ctx context.Context, r repository.Repos, targetID, userID int64, currentID *int64) (SwitchResult, error) {
	var res SwitchResult

	leaving := currentID != nil && *currentID != targetID
	if leaving {
		// 按 ID 升序加锁，避免两个反向换桌的请求互相等待
		first, second := *currentID, targetID
		if second < first {
			first, second = second, first
		}
		for _, id := range []int64{first, second} {
			if _, err := r.Rooms.FindByIDForUpdate(ctx, id); err != nil && !errors.Is(err, repository.ErrRoomNotFound) {
				return res, fmt.Errorf("lock room %d: %w", id, err)
			}
		}

		left, err := e.Leave(ctx, r, *currentID, userID)
		if err != nil {
			return res, err
		}
		if left.OK() {
			res.Left = &left
		} else {
			logrus.WithFields(logrus.Fields{
				"room_id": *currentID,
				"user_id": userID,
				"reason":  left.Reason,
			}).Debug("Leave before switch declined, continuing with join")
		}
	}

	joined, err := e.Join(ctx, r, targetID, userID, DefaultMaxCapacity)
	if err != nil {
		return res, err
	}
	res.Joined = joined
	if !joined.OK() {
		return res, &DeclineError{Reason: joined.Reason}
	}
	return res, nil
}
