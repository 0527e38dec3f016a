package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// EventPublisher 广播已提交的房间变更 (redis pubsub)
type EventPublisher interface {
	PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error
}

// RoomFullNotifier 房间满员时触发通知 (asynq 任务)
type RoomFullNotifier interface {
	EnqueueRoomFull(ctx context.Context, roomID int64) error
}

// CreateRoomInput 用户建房参数
type CreateRoomInput struct {
	HostID    int64
	StoreID   int64
	StartTime time.Time
	ReqNum    int
	GameType  string
	Remark    string
}

// AdminCreateRoomInput 后台建房参数，Participants 第一个元素为房主
type AdminCreateRoomInput struct {
	Participants []int64
	StoreID      int64
	StartTime    time.Time
	ReqNum       int
	GameType     string
	Remark       string
}

// EnterResult 进入房间的结果
type EnterResult struct {
	TableID      int64   `json:"table_id"`
	HostID       int64   `json:"host_id"`
	ReqNum       int     `json:"req_num"`
	Participants []int64 `json:"participants"`
	IsFull       bool    `json:"is_full"`
	LeftTableID  *int64  `json:"left_table_id,omitempty"`
}

// ExitResult 退出房间的结果
type ExitResult struct {
	TableID      int64             `json:"table_id"`
	HostID       int64             `json:"host_id"`
	Status       domain.RoomStatus `json:"status"`
	ReqNum       int               `json:"req_num"`
	Participants []int64           `json:"participants"`
}

// RoomService 负责牌桌生命周期相关的业务逻辑。
type RoomService struct {
	uow      repository.UnitOfWork
	engine   *RoomEngine
	events   EventPublisher
	notifier RoomFullNotifier
	now      func() time.Time
}

// NewRoomService 创建 RoomService 实例。events 和 notifier 可以为 nil。
func NewRoomService(uow repository.UnitOfWork, engine *RoomEngine, events EventPublisher, notifier RoomFullNotifier) *RoomService {
	if uow == nil {
		panic("UnitOfWork cannot be nil for RoomService")
	}
	if engine == nil {
		engine = NewRoomEngine()
	}
	return &RoomService{
		uow:      uow,
		engine:   engine,
		events:   events,
		notifier: notifier,
		now:      time.Now,
	}
}

// WithClock 替换时间来源 (测试用)
func (s *RoomService) WithClock(now func() time.Time) *RoomService {
	s.now = now
	return s
}

// CreateRoom 创建一个新房间，房主为唯一初始成员。
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"host_id": in.HostID, "store_id": in.StoreID})

	reqNum, err := normalizeReqNum(in.ReqNum)
	if err != nil {
		return nil, err
	}
	if !in.StartTime.After(s.now()) {
		return nil, ErrInvalidStartTime
	}

	room := &domain.Room{
		HostID:    in.HostID,
		StoreID:   in.StoreID,
		ReqNum:    reqNum,
		Status:    domain.RoomStatusOpen,
		StartTime: in.StartTime,
		GameType:  in.GameType,
		Remark:    in.Remark,
	}
	room.SetParticipantIDs([]int64{in.HostID})

	err = s.uow.Do(ctx, func(r repository.Repos) error {
		if err := s.requireIdle(ctx, r, in.HostID); err != nil {
			return err
		}
		if _, err := r.Stores.FindByID(ctx, in.StoreID); err != nil {
			if errors.Is(err, repository.ErrStoreNotFound) {
				return ErrStoreNotFound
			}
			return err
		}
		if err := r.Rooms.Create(ctx, room); err != nil {
			return err
		}
		return r.Users.SetRoom(ctx, in.HostID, room.ID)
	})
	if err != nil {
		return nil, s.logTxError(logCtx, "CreateRoom", err)
	}

	logCtx.WithField("room_id", room.ID).Info("Room created successfully")
	s.publish(ctx, roomEvent(domain.RoomEventCreated, room, s.now()))
	return room, nil
}

// AdminCreateRoom 后台按给定成员建房。成员去重保序，第一个为房主；
// 机器人成员必须在池中空闲，并被标记为占用。
func (s *RoomService) AdminCreateRoom(ctx context.Context, in AdminCreateRoomInput) (*domain.Room, error) {
	participants := domain.DedupeParticipants(in.Participants)
	logCtx := logrus.WithFields(logrus.Fields{"participants": participants, "store_id": in.StoreID})

	reqNum, err := normalizeReqNum(in.ReqNum)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 || len(participants) > reqNum {
		return nil, ErrInvalidParticipants
	}
	for _, id := range participants {
		if id == 0 {
			return nil, ErrInvalidParticipants
		}
	}
	if !in.StartTime.After(s.now()) {
		return nil, ErrInvalidStartTime
	}

	_, robots := domain.SplitParticipants(participants)
	robotIDs := make([]int64, 0, len(robots))
	for _, p := range robots {
		robotIDs = append(robotIDs, p.Wire())
	}

	room := &domain.Room{
		HostID:      participants[0],
		StoreID:     in.StoreID,
		ReqNum:      reqNum,
		Status:      domain.RoomStatusOpen,
		StartTime:   in.StartTime,
		GameType:    in.GameType,
		Remark:      in.Remark,
		IsRobotRoom: len(robotIDs) > 0,
	}
	room.SetParticipantIDs(participants)

	err = s.uow.Do(ctx, func(r repository.Repos) error {
		if _, err := r.Stores.FindByID(ctx, in.StoreID); err != nil {
			if errors.Is(err, repository.ErrStoreNotFound) {
				return ErrStoreNotFound
			}
			return err
		}
		for _, id := range participants {
			if err := s.requireIdle(ctx, r, id); err != nil {
				return err
			}
		}
		if len(robotIDs) > 0 {
			pool, err := r.Robots.FindByIDsForUpdate(ctx, robotIDs)
			if err != nil {
				return err
			}
			if len(pool) != len(robotIDs) {
				return ErrRobotUnavailable
			}
			for _, rb := range pool {
				if rb.Status != domain.RobotStatusIdle {
					return ErrRobotUnavailable
				}
			}
		}
		if err := r.Rooms.Create(ctx, room); err != nil {
			return err
		}
		for _, id := range participants {
			if err := r.Users.SetRoom(ctx, id, room.ID); err != nil {
				return err
			}
		}
		return r.Robots.MarkBusy(ctx, robotIDs)
	})
	if err != nil {
		return nil, s.logTxError(logCtx, "AdminCreateRoom", err)
	}

	logCtx.WithField("room_id", room.ID).Info("Room created by admin")
	s.publish(ctx, roomEvent(domain.RoomEventCreated, room, s.now()))
	if len(participants) >= room.ReqNum {
		s.notifyFull(ctx, room.ID)
	}
	return room, nil
}

// EnterRoom 进入或换到 tableID。
// 锁顺序：先用户行，再按 id 升序锁房间行。用户行上的所在房间优先于
// 客户端传入的 currentTableID，保证一人只在一个房间。
func (s *RoomService) EnterRoom(ctx context.Context, userID, tableID int64, currentTableID *int64) (*EnterResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "table_id": tableID})

	var res SwitchResult
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		user, err := r.Users.FindByIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		current := currentTableID
		if roomID, ok := user.InRoom(); ok && roomID != tableID {
			// 以用户行上的所在房间为准
			if current != nil && *current != roomID {
				logCtx.WithFields(logrus.Fields{"client_current": *current, "current": roomID}).
					Debug("Stale current table id replaced")
			}
			current = &roomID
		}

		res, err = s.engine.EnterOrSwitch(ctx, r, tableID, userID, current)
		return err
	})
	if err != nil {
		var decline *DeclineError
		if errors.As(err, &decline) {
			logCtx.WithField("reason", decline.Reason).Info("Enter room declined")
			return nil, ReasonError(decline.Reason)
		}
		return nil, s.logTxError(logCtx, "EnterRoom", err)
	}

	now := s.now()
	out := &EnterResult{
		TableID:      res.Joined.RoomID,
		HostID:       res.Joined.HostID,
		ReqNum:       res.Joined.ReqNum,
		Participants: res.Joined.Participants,
		IsFull:       res.Joined.Full(),
	}
	if res.Left != nil {
		left := res.Left.RoomID
		out.LeftTableID = &left
		s.publish(ctx, leaveEvent(*res.Left, now))
	}
	s.publish(ctx, domain.RoomEvent{
		Type:         domain.RoomEventJoined,
		RoomID:       res.Joined.RoomID,
		Status:       res.Joined.Status,
		HostID:       res.Joined.HostID,
		ReqNum:       res.Joined.ReqNum,
		Participants: res.Joined.Participants,
		At:           now,
	})
	if out.IsFull {
		s.notifyFull(ctx, out.TableID)
	}

	logCtx.WithField("count", len(out.Participants)).Info("User entered room")
	return out, nil
}

// ExitRoom 离开房间
func (s *RoomService) ExitRoom(ctx context.Context, userID, tableID int64) (*ExitResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "table_id": tableID})

	var res LeaveResult
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		// 与 EnterRoom 相同的锁顺序，先锁用户行
		if _, err := r.Users.FindByIDForUpdate(ctx, userID); err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
		var err error
		res, err = s.engine.Leave(ctx, r, tableID, userID)
		return err
	})
	if err != nil {
		return nil, s.logTxError(logCtx, "ExitRoom", err)
	}
	if !res.OK() {
		logCtx.WithField("reason", res.Reason).Info("Exit room declined")
		return nil, ReasonError(res.Reason)
	}

	s.publish(ctx, leaveEvent(res, s.now()))
	logCtx.WithFields(logrus.Fields{"host_id": res.HostID, "status": res.Status}).Info("User exited room")
	return &ExitResult{
		TableID:      res.RoomID,
		HostID:       res.HostID,
		Status:       res.Status,
		ReqNum:       res.ReqNum,
		Participants: res.Participants,
	}, nil
}

// --- 私有辅助函数 ---

func normalizeReqNum(n int) (int, error) {
	switch n {
	case 0:
		return DefaultMaxCapacity, nil
	case 3, 4:
		return n, nil
	default:
		return 0, ErrInvalidRoomParams
	}
}

// requireIdle 锁定用户并确认其不在任何招募中的房间。
// 指针指向已结束的房间视为空闲。
func (s *RoomService) requireIdle(ctx context.Context, r repository.Repos, userID int64) error {
	user, err := r.Users.FindByIDForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	roomID, ok := user.InRoom()
	if !ok {
		return nil
	}
	room, err := r.Rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil
		}
		return err
	}
	if room.Status == domain.RoomStatusOpen {
		return ErrAlreadyInRoom
	}
	return nil
}

func (s *RoomService) logTxError(logCtx *logrus.Entry, op string, err error) error {
	mapped := mapRepoError(err)
	if errors.Is(mapped, ErrInternalServer) {
		logCtx.WithError(err).Errorf("%s: transaction failed", op)
	} else {
		logCtx.WithError(err).Warnf("%s: declined", op)
	}
	return mapped
}

func (s *RoomService) publish(ctx context.Context, event domain.RoomEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRoomEvent(ctx, event); err != nil {
		logrus.WithError(err).WithField("room_id", event.RoomID).Warn("Failed to publish room event")
	}
}

func (s *RoomService) notifyFull(ctx context.Context, roomID int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EnqueueRoomFull(ctx, roomID); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to enqueue room full notification")
	}
}

func roomEvent(t domain.RoomEventType, room *domain.Room, at time.Time) domain.RoomEvent {
	return domain.RoomEvent{
		Type:         t,
		RoomID:       room.ID,
		Status:       room.Status,
		HostID:       room.HostID,
		ReqNum:       room.ReqNum,
		Participants: room.ParticipantIDs(),
		At:           at,
	}
}

func leaveEvent(res LeaveResult, at time.Time) domain.RoomEvent {
	t := domain.RoomEventLeft
	if res.Status == domain.RoomStatusExpired {
		t = domain.RoomEventExpired
	}
	return domain.RoomEvent{
		Type:         t,
		RoomID:       res.RoomID,
		Status:       res.Status,
		HostID:       res.HostID,
		ReqNum:       res.ReqNum,
		Participants: res.Participants,
		At:           at,
	}
}
