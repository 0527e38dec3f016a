// Package memory 提供进程内的 repository 实现。
// 事务串行执行，在数据副本上操作，成功时整体提交，失败时整体丢弃。
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

type state struct {
	rooms       map[int64]domain.Room
	users       map[int64]domain.User
	stores      map[int64]domain.Store
	robots      map[int64]domain.RobotUser
	admins      map[string]domain.Admin
	nextRoomID  int64
	nextAdminID int64
}

func newState() *state {
	return &state{
		rooms:       make(map[int64]domain.Room),
		users:       make(map[int64]domain.User),
		stores:      make(map[int64]domain.Store),
		robots:      make(map[int64]domain.RobotUser),
		admins:      make(map[string]domain.Admin),
		nextRoomID:  1,
		nextAdminID: 1,
	}
}

func (s *state) clone() *state {
	c := &state{
		rooms:       make(map[int64]domain.Room, len(s.rooms)),
		users:       make(map[int64]domain.User, len(s.users)),
		stores:      make(map[int64]domain.Store, len(s.stores)),
		robots:      make(map[int64]domain.RobotUser, len(s.robots)),
		admins:      make(map[string]domain.Admin, len(s.admins)),
		nextRoomID:  s.nextRoomID,
		nextAdminID: s.nextAdminID,
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.users {
		c.users[k] = copyUser(v)
	}
	for k, v := range s.stores {
		c.stores[k] = v
	}
	for k, v := range s.robots {
		c.robots[k] = v
	}
	for k, v := range s.admins {
		c.admins[k] = v
	}
	return c
}

// copyUser 指针字段需要深拷贝，否则回滚时副本上的修改会泄漏
func copyUser(u domain.User) domain.User {
	if u.EnterRoomID != nil {
		id := *u.EnterRoomID
		u.EnterRoomID = &id
	}
	if u.OpenID != nil {
		o := *u.OpenID
		u.OpenID = &o
	}
	return u
}

// Store 进程内数据存储，实现 repository.UnitOfWork
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

// Option 配置 Store
type Option func(*Store)

// WithClock 替换时间来源 (写入 created_at / updated_at)
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore 创建空的 Store
func NewStore(opts ...Option) *Store {
	s := &Store{data: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do 串行执行事务。fn 返回错误、panic 或 ctx 已取消时，副本被丢弃。
func (s *Store) Do(ctx context.Context, fn func(r repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(s.repos(ctx, work)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) repos(ctx context.Context, st *state) repository.Repos {
	tx := &txn{ctx: ctx, st: st, now: s.now}
	return repository.Repos{
		Rooms:  &roomRepo{tx},
		Users:  &userRepo{tx},
		Stores: &storeRepo{tx},
		Robots: &robotRepo{tx},
		Admins: &adminRepo{tx},
	}
}

// 以下方法绕过事务直接读写已提交数据，用于预置数据和断言。

// PutUser 插入或覆盖用户
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.UserID] = copyUser(u)
}

// PutStore 插入或覆盖门店
func (s *Store) PutStore(st domain.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.stores[st.ID] = st
}

// PutRobot 插入机器人池记录
func (s *Store) PutRobot(r domain.RobotUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.robots[r.UserID] = r
}

// PutRoom 插入房间，ID 为 0 时自动分配；返回房间 ID
func (s *Store) PutRoom(r domain.Room) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.data.nextRoomID
	}
	if r.ID >= s.data.nextRoomID {
		s.data.nextRoomID = r.ID + 1
	}
	if r.Participants == "" {
		r.Participants = domain.EncodeParticipants(nil)
	}
	s.data.rooms[r.ID] = r
	return r.ID
}

// Room 读取已提交的房间
func (s *Store) Room(id int64) (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.rooms[id]
	return r, ok
}

// User 读取已提交的用户
func (s *Store) User(id int64) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	return copyUser(u), ok
}

// Robot 读取已提交的机器人池记录
func (s *Store) Robot(id int64) (domain.RobotUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.robots[id]
	return r, ok
}

// Rooms 返回所有已提交的房间 (按 ID 升序)
func (s *Store) Rooms() []domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Room, 0, len(s.data.rooms))
	for _, r := range s.data.rooms {
		out = append(out, r)
	}
	sortRooms(out, func(a, b domain.Room) bool { return a.ID < b.ID })
	return out
}

var _ repository.UnitOfWork = (*Store)(nil)
