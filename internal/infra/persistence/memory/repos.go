package memory

import (
	"context"
	"sort"
	"time"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// txn 一次事务内共享的数据副本
type txn struct {
	ctx context.Context
	st  *state
	now func() time.Time
}

func (t *txn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.ctx.Err()
}

func sortRooms(rooms []domain.Room, less func(a, b domain.Room) bool) {
	sort.SliceStable(rooms, func(i, j int) bool { return less(rooms[i], rooms[j]) })
}

func byCreatedDesc(a, b domain.Room) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func isActive(r domain.Room, now time.Time, maxAge time.Duration) bool {
	return r.Status == domain.RoomStatusOpen &&
		!r.CreatedAt.Before(now.Add(-maxAge)) &&
		r.StartTime.After(now)
}

func isStale(r domain.Room, now time.Time, maxAge time.Duration) bool {
	return r.Status == domain.RoomStatusOpen &&
		(!r.StartTime.After(now) || r.CreatedAt.Before(now.Add(-maxAge)))
}

type roomRepo struct{ *txn }

func (r *roomRepo) FindByID(ctx context.Context, id int64) (*domain.Room, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	room, ok := r.st.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return &room, nil
}

// FindByIDForUpdate 事务已串行化，无需额外加锁
func (r *roomRepo) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Room, error) {
	return r.FindByID(ctx, id)
}

func (r *roomRepo) Create(ctx context.Context, room *domain.Room) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	if room.ID == 0 {
		room.ID = r.st.nextRoomID
	} else if _, exists := r.st.rooms[room.ID]; exists {
		return repository.ErrDuplicateEntry
	}
	if room.ID >= r.st.nextRoomID {
		r.st.nextRoomID = room.ID + 1
	}
	now := r.now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = now
	}
	if room.Participants == "" {
		room.Participants = domain.EncodeParticipants(nil)
	}
	r.st.rooms[room.ID] = *room
	return nil
}

func (r *roomRepo) UpdateParticipants(ctx context.Context, id int64, participants []int64) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	room, ok := r.st.rooms[id]
	if !ok {
		return nil // 与 UPDATE ... WHERE id = ? 一致：未命中不报错
	}
	room.SetParticipantIDs(participants)
	room.UpdatedAt = r.now()
	r.st.rooms[id] = room
	return nil
}

func (r *roomRepo) UpdateMembership(ctx context.Context, id int64, upd repository.MembershipUpdate) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	room, ok := r.st.rooms[id]
	if !ok {
		return nil
	}
	room.SetParticipantIDs(upd.Participants)
	room.HostID = upd.HostID
	room.Status = upd.Status
	room.ReqNum = upd.ReqNum
	room.UpdatedAt = r.now()
	r.st.rooms[id] = room
	return nil
}

func (r *roomRepo) FindStaleOpenForUpdate(ctx context.Context, now time.Time, maxAge time.Duration) ([]domain.Room, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	out := []domain.Room{}
	for _, room := range r.st.rooms {
		if isStale(room, now, maxAge) {
			out = append(out, room)
		}
	}
	sortRooms(out, func(a, b domain.Room) bool { return a.ID < b.ID })
	return out, nil
}

func (r *roomRepo) MarkExpired(ctx context.Context, ids []int64) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	now := r.now()
	for _, id := range ids {
		if room, ok := r.st.rooms[id]; ok {
			room.Status = domain.RoomStatusExpired
			room.UpdatedAt = now
			r.st.rooms[id] = room
		}
	}
	return nil
}

func (r *roomRepo) ListActive(ctx context.Context, now time.Time, maxAge time.Duration) ([]domain.Room, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	out := []domain.Room{}
	for _, room := range r.st.rooms {
		if isActive(room, now, maxAge) {
			out = append(out, room)
		}
	}
	sortRooms(out, byCreatedDesc)
	return out, nil
}

func (r *roomRepo) CountActive(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	rooms, err := r.ListActive(ctx, now, maxAge)
	if err != nil {
		return 0, err
	}
	return int64(len(rooms)), nil
}

func (r *roomRepo) ListOpenRobotRooms(ctx context.Context) ([]domain.Room, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	out := []domain.Room{}
	for _, room := range r.st.rooms {
		if room.IsRobotRoom && room.Status == domain.RoomStatusOpen {
			out = append(out, room)
		}
	}
	sortRooms(out, func(a, b domain.Room) bool { return a.ID < b.ID })
	return out, nil
}

func (r *roomRepo) LatestRobotRoomCreatedAt(ctx context.Context) (time.Time, error) {
	if err := r.check(ctx); err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for _, room := range r.st.rooms {
		if room.IsRobotRoom && room.CreatedAt.After(latest) {
			latest = room.CreatedAt
		}
	}
	return latest, nil
}

func (r *roomRepo) ListCreatedSince(ctx context.Context, since time.Time) ([]domain.Room, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	out := []domain.Room{}
	for _, room := range r.st.rooms {
		if !room.CreatedAt.Before(since) {
			out = append(out, room)
		}
	}
	sortRooms(out, byCreatedDesc)
	return out, nil
}

type userRepo struct{ *txn }

func (r *userRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	u, ok := r.st.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u = copyUser(u)
	return &u, nil
}

func (r *userRepo) FindByIDForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	return r.FindByID(ctx, id)
}

func (r *userRepo) FindByIDs(ctx context.Context, ids []int64) ([]domain.User, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	out := []domain.User{}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := r.st.users[id]; ok {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

func (r *userRepo) FindByOpenID(ctx context.Context, openID string) (*domain.User, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	for _, u := range r.st.users {
		if u.OpenID != nil && *u.OpenID == openID {
			u = copyUser(u)
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *userRepo) ExistsID(ctx context.Context, id int64) (bool, error) {
	if err := r.check(ctx); err != nil {
		return false, err
	}
	_, ok := r.st.users[id]
	return ok, nil
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	if _, exists := r.st.users[user.UserID]; exists {
		return repository.ErrDuplicateEntry
	}
	if user.OpenID != nil {
		for _, u := range r.st.users {
			if u.OpenID != nil && *u.OpenID == *user.OpenID {
				return repository.ErrDuplicateEntry
			}
		}
	}
	now := r.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.st.users[user.UserID] = copyUser(*user)
	return nil
}

func (r *userRepo) SetRoom(ctx context.Context, userID, roomID int64) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	u, ok := r.st.users[userID]
	if !ok {
		return nil
	}
	id := roomID
	u.Status = domain.UserStatusInRoom
	u.EnterRoomID = &id
	u.UpdatedAt = r.now()
	r.st.users[userID] = u
	return nil
}

func (r *userRepo) ClearRoom(ctx context.Context, userID int64) error {
	return r.ClearRooms(ctx, []int64{userID})
}

func (r *userRepo) ClearRooms(ctx context.Context, userIDs []int64) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	now := r.now()
	for _, id := range userIDs {
		u, ok := r.st.users[id]
		if !ok {
			continue
		}
		u.Status = domain.UserStatusIdle
		u.EnterRoomID = nil
		u.UpdatedAt = now
		r.st.users[id] = u
	}
	return nil
}

type storeRepo struct{ *txn }

func (r *storeRepo) FindByID(ctx context.Context, id int64) (*domain.Store, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	s, ok := r.st.stores[id]
	if !ok {
		return nil, repository.ErrStoreNotFound
	}
	return &s, nil
}

func (r *storeRepo) FindByIDs(ctx context.Context, ids []int64) ([]domain.Store, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	out := []domain.Store{}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if s, ok := r.st.stores[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *storeRepo) ListActive(ctx context.Context) ([]domain.Store, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	out := []domain.Store{}
	for _, s := range r.st.stores {
		if s.Status == domain.StoreStatusActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type robotRepo struct{ *txn }

func (r *robotRepo) AcquireIdle(ctx context.Context, n int) ([]domain.RobotUser, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	idle := []domain.RobotUser{}
	for _, rb := range r.st.robots {
		if rb.Status == domain.RobotStatusIdle {
			idle = append(idle, rb)
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		if !idle[i].UpdatedAt.Equal(idle[j].UpdatedAt) {
			return idle[i].UpdatedAt.Before(idle[j].UpdatedAt)
		}
		return idle[i].UserID > idle[j].UserID
	})
	if n < 0 {
		n = 0
	}
	if len(idle) > n {
		idle = idle[:n]
	}
	return idle, nil
}

func (r *robotRepo) FindByIDsForUpdate(ctx context.Context, ids []int64) ([]domain.RobotUser, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	out := []domain.RobotUser{}
	for _, id := range ids {
		if rb, ok := r.st.robots[id]; ok {
			out = append(out, rb)
		}
	}
	return out, nil
}

func (r *robotRepo) MarkBusy(ctx context.Context, ids []int64) error {
	return r.setStatus(ctx, ids, domain.RobotStatusBusy)
}

func (r *robotRepo) MarkIdle(ctx context.Context, ids []int64) error {
	return r.setStatus(ctx, ids, domain.RobotStatusIdle)
}

func (r *robotRepo) setStatus(ctx context.Context, ids []int64, status domain.RobotStatus) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	now := r.now()
	for _, id := range ids {
		if rb, ok := r.st.robots[id]; ok {
			rb.Status = status
			rb.UpdatedAt = now
			r.st.robots[id] = rb
		}
	}
	return nil
}

func (r *robotRepo) Seed(ctx context.Context, robots []domain.User) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	added := 0
	now := r.now()
	for _, u := range robots {
		if _, ok := r.st.users[u.UserID]; !ok {
			u.CreatedAt, u.UpdatedAt = now, now
			r.st.users[u.UserID] = copyUser(u)
		}
		if _, ok := r.st.robots[u.UserID]; !ok {
			r.st.robots[u.UserID] = domain.RobotUser{UserID: u.UserID, Status: domain.RobotStatusIdle, UpdatedAt: now}
			added++
		}
	}
	return added, nil
}

type adminRepo struct{ *txn }

func (r *adminRepo) FindByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	a, ok := r.st.admins[username]
	if !ok {
		return nil, repository.ErrAdminNotFound
	}
	return &a, nil
}

func (r *adminRepo) Save(ctx context.Context, admin *domain.Admin) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	if admin.ID == 0 {
		if _, exists := r.st.admins[admin.Username]; exists {
			return repository.ErrDuplicateEntry
		}
		admin.ID = r.st.nextAdminID
		r.st.nextAdminID++
		admin.CreatedAt = r.now()
	}
	r.st.admins[admin.Username] = *admin
	return nil
}
