package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// RobotConfig 机器人调度参数
type RobotConfig struct {
	MinActiveRooms      int           // 可加入房间少于此数时创建机器人房间
	CreateInterval      time.Duration // 两次创建之间的最小间隔
	Dwell               time.Duration // 最近一次加入后至少停留多久才允许概率撤出
	WithdrawProbability float64       // 满足条件时撤出的概率
	WithdrawDelay       time.Duration // 决定撤出到实际离开的延迟
	WorkStartHour       int           // 工作时段 [start, end)，两者相等表示全天
	WorkEndHour         int
	TickLockTTL         time.Duration
	Location            *time.Location
}

// DefaultRobotConfig 默认调度参数
func DefaultRobotConfig() RobotConfig {
	return RobotConfig{
		MinActiveRooms:      3,
		CreateInterval:      10 * time.Minute,
		Dwell:               5 * time.Minute,
		WithdrawProbability: 0.3,
		WithdrawDelay:       3 * time.Second,
		WorkStartHour:       9,
		WorkEndHour:         23,
		TickLockTTL:         50 * time.Second,
		Location:            time.Local,
	}
}

// Rand 随机源，测试中可替换为确定值
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.Intn(n) }

// TickLocker 保证多实例下同一时刻只有一个 tick 在执行
type TickLocker interface {
	AcquireTickLock(ctx context.Context, ttl time.Duration) (string, bool, error)
	ReleaseTickLock(ctx context.Context, token string) error
}

// WithdrawalScheduler 延迟执行机器人撤出 (asynq ProcessIn)
type WithdrawalScheduler interface {
	ScheduleWithdrawal(ctx context.Context, roomID, robotID int64, delay time.Duration) error
}

// RobotService 维持最少数量的可加入房间，并在真实用户到来后撤出机器人。
type RobotService struct {
	uow         repository.UnitOfWork
	engine      *RoomEngine
	cfg         RobotConfig
	locker      TickLocker
	withdrawals WithdrawalScheduler
	events      EventPublisher
	rng         Rand
	now         func() time.Time
}

// NewRobotService 创建 RobotService。locker、withdrawals、events 可以为 nil：
// 没有 withdrawals 时撤出在 tick 内同步执行。
func NewRobotService(uow repository.UnitOfWork, engine *RoomEngine, cfg RobotConfig,
	locker TickLocker, withdrawals WithdrawalScheduler, events EventPublisher) *RobotService {
	if uow == nil {
		panic("UnitOfWork cannot be nil for RobotService")
	}
	if engine == nil {
		engine = NewRoomEngine()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &RobotService{
		uow:         uow,
		engine:      engine,
		cfg:         cfg,
		locker:      locker,
		withdrawals: withdrawals,
		events:      events,
		rng:         globalRand{},
		now:         time.Now,
	}
}

// WithRand 替换随机源
func (s *RobotService) WithRand(rng Rand) *RobotService {
	s.rng = rng
	return s
}

// WithClock 替换时间来源
func (s *RobotService) WithClock(now func() time.Time) *RobotService {
	s.now = now
	return s
}

// Tick 执行一轮调度：先评估撤出，再评估创建。
// 单轮内的错误只记录日志，不向上返回，下一轮独立执行。
func (s *RobotService) Tick(ctx context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.AcquireTickLock(ctx, s.cfg.TickLockTTL)
		if err != nil {
			logrus.WithError(err).Error("Robot tick: failed to acquire lock")
			return nil
		}
		if !ok {
			logrus.Debug("Robot tick: another instance holds the lock, skipping")
			return nil
		}
		defer func() {
			if err := s.locker.ReleaseTickLock(context.Background(), token); err != nil {
				logrus.WithError(err).Warn("Robot tick: failed to release lock")
			}
		}()
	}

	if err := s.evaluateExits(ctx); err != nil {
		logrus.WithError(err).Error("Robot tick: exit evaluation failed")
	}
	if err := s.evaluateCreation(ctx); err != nil {
		logrus.WithError(err).Error("Robot tick: creation evaluation failed")
	}
	return nil
}

// withdrawal 一次待执行的撤出
type withdrawal struct {
	roomID  int64
	robotID int64
}

func (s *RobotService) evaluateExits(ctx context.Context) error {
	now := s.now()
	var pending []withdrawal
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		rooms, err := r.Rooms.ListOpenRobotRooms(ctx)
		if err != nil {
			return err
		}
		for i := range rooms {
			room := &rooms[i]
			ids := domain.DedupeParticipants(room.ParticipantIDs())
			humans, robots := domain.SplitParticipants(ids)
			if len(robots) == 0 {
				continue
			}
			if s.shouldWithdraw(room, len(ids), len(humans), now) {
				pending = append(pending, withdrawal{roomID: room.ID, robotID: robots[0].Wire()})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, w := range pending {
		logCtx := logrus.WithFields(logrus.Fields{"room_id": w.roomID, "robot_id": w.robotID})
		if s.withdrawals != nil {
			if err := s.withdrawals.ScheduleWithdrawal(ctx, w.roomID, w.robotID, s.cfg.WithdrawDelay); err != nil {
				logCtx.WithError(err).Error("Failed to schedule robot withdrawal")
				continue
			}
			logCtx.WithField("delay", s.cfg.WithdrawDelay).Info("Robot withdrawal scheduled")
			continue
		}
		if err := s.Withdraw(ctx, w.roomID, w.robotID); err != nil {
			logCtx.WithError(err).Error("Robot withdrawal failed")
		}
	}
	return nil
}

// shouldWithdraw 差一人满员时必定撤出；否则需要有真实用户、超过停留时间并通过随机判定。
func (s *RobotService) shouldWithdraw(room *domain.Room, total, humans int, now time.Time) bool {
	if total == room.ReqNum-1 {
		return true
	}
	if total < room.ReqNum-2 || humans < 1 {
		return false
	}
	if now.Sub(room.UpdatedAt) <= s.cfg.Dwell {
		return false
	}
	return s.rng.Float64() < s.cfg.WithdrawProbability
}

// Withdraw 让机器人离开房间并回到空闲池，两者在同一事务中。
// 机器人已不在房间时不做任何修改。
func (s *RobotService) Withdraw(ctx context.Context, roomID, robotID int64) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "robot_id": robotID})
	if robotID >= 0 {
		return fmt.Errorf("withdraw: %d is not a robot id", robotID)
	}

	var res LeaveResult
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		var err error
		res, err = s.engine.Leave(ctx, r, roomID, robotID)
		if err != nil || !res.OK() {
			return err
		}
		return r.Robots.MarkIdle(ctx, []int64{robotID})
	})
	if err != nil {
		return fmt.Errorf("withdraw robot %d from room %d: %w", robotID, roomID, err)
	}
	if !res.OK() {
		logCtx.WithField("reason", res.Reason).Info("Robot withdrawal skipped")
		return nil
	}

	logCtx.WithFields(logrus.Fields{"host_id": res.HostID, "remaining": len(res.Participants)}).Info("Robot withdrawn")
	if s.events != nil {
		if err := s.events.PublishRoomEvent(ctx, leaveEvent(res, s.now())); err != nil {
			logCtx.WithError(err).Warn("Failed to publish room event")
		}
	}
	return nil
}

func (s *RobotService) inWorkingHours(now time.Time) bool {
	if s.cfg.WorkStartHour == s.cfg.WorkEndHour {
		return true
	}
	h := now.In(s.cfg.Location).Hour()
	if s.cfg.WorkStartHour < s.cfg.WorkEndHour {
		return h >= s.cfg.WorkStartHour && h < s.cfg.WorkEndHour
	}
	// 跨午夜，例如 20 -> 2
	return h >= s.cfg.WorkStartHour || h < s.cfg.WorkEndHour
}

// nextStartTime 至少一小时之后的下一个整点或半点
func nextStartTime(now time.Time) time.Time {
	earliest := now.Add(time.Hour)
	t := earliest.Truncate(30 * time.Minute)
	if t.Before(earliest) {
		t = t.Add(30 * time.Minute)
	}
	return t
}

func (s *RobotService) evaluateCreation(ctx context.Context) error {
	now := s.now()
	if !s.inWorkingHours(now) {
		return nil
	}

	var created *domain.Room
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		count, err := r.Rooms.CountActive(ctx, now, domain.RoomMaxAge)
		if err != nil {
			return err
		}
		if count >= int64(s.cfg.MinActiveRooms) {
			return nil
		}
		latest, err := r.Rooms.LatestRobotRoomCreatedAt(ctx)
		if err != nil {
			return err
		}
		if !latest.IsZero() && now.Sub(latest) < s.cfg.CreateInterval {
			return nil
		}

		robots, err := r.Robots.AcquireIdle(ctx, 1+s.rng.IntN(2))
		if err != nil {
			return err
		}
		if len(robots) == 0 {
			logrus.Warn("Robot tick: no idle robots, skipping room creation")
			return nil
		}
		stores, err := r.Stores.ListActive(ctx)
		if err != nil {
			return err
		}
		if len(stores) == 0 {
			logrus.Warn("Robot tick: no active stores, skipping room creation")
			return nil
		}
		store := stores[s.rng.IntN(len(stores))]

		ids := make([]int64, 0, len(robots))
		for _, rb := range robots {
			ids = append(ids, rb.UserID)
		}
		room := &domain.Room{
			HostID:      ids[0],
			StoreID:     store.ID,
			ReqNum:      DefaultMaxCapacity,
			Status:      domain.RoomStatusOpen,
			StartTime:   nextStartTime(now),
			IsRobotRoom: true,
		}
		room.SetParticipantIDs(ids)
		if err := r.Rooms.Create(ctx, room); err != nil {
			return err
		}
		for _, id := range ids {
			if err := r.Users.SetRoom(ctx, id, room.ID); err != nil {
				return err
			}
		}
		if err := r.Robots.MarkBusy(ctx, ids); err != nil {
			return err
		}
		created = room
		return nil
	})
	if err != nil {
		return err
	}
	if created == nil {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"room_id":    created.ID,
		"store_id":   created.StoreID,
		"robots":     created.ParticipantIDs(),
		"start_time": created.StartTime,
	}).Info("Robot room created")
	if s.events != nil {
		if err := s.events.PublishRoomEvent(ctx, roomEvent(domain.RoomEventCreated, created, now)); err != nil {
			logrus.WithError(err).WithField("room_id", created.ID).Warn("Failed to publish room event")
		}
	}
	return nil
}

// SeedRobots 预置 count 个机器人，ID 从 start 开始递减 (start 必须为负数)。
func (s *RobotService) SeedRobots(ctx context.Context, count int, start int64) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	if start >= 0 {
		return 0, errors.New("robot ids must be negative")
	}
	robots := make([]domain.User, 0, count)
	for i := 0; i < count; i++ {
		id := start - int64(i)
		robots = append(robots, domain.User{
			UserID:   id,
			Nickname: fmt.Sprintf("牌友%d", -id),
			Status:   domain.UserStatusIdle,
		})
	}
	var added int
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		var err error
		added, err = r.Robots.Seed(ctx, robots)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("seed robots: %w", err)
	}
	logrus.WithFields(logrus.Fields{"requested": count, "added": added}).Info("Robots seeded")
	return added, nil
}
