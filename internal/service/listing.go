package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// ParticipantView 牌桌成员详情。机器人对客户端不可区分。
type ParticipantView struct {
	UserID    int64  `json:"user_id"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
	IsHost    bool   `json:"is_host"`
	IsMe      bool   `json:"isMe"`
}

// TableView 牌桌列表/详情的一项
type TableView struct {
	ID               int64             `json:"id"`
	HostID           int64             `json:"host_id"`
	StoreID          int64             `json:"store_id"`
	StoreName        string            `json:"store_name"`
	StoreAddress     string            `json:"store_address"`
	ReqNum           int               `json:"req_num"`
	Status           domain.RoomStatus `json:"status"`
	StartTime        time.Time         `json:"start_time"`
	GameType         string            `json:"game_type"`
	Remark           string            `json:"remark"`
	CreatedAt        time.Time         `json:"created_at"`
	ParticipantCount int               `json:"participant_count"`
	Participants     []ParticipantView `json:"participants"`
	IsCurrentRoom    bool              `json:"isCurrentRoom"`
}

// SweepResult 过期清扫结果
type SweepResult struct {
	Expired  []domain.Room
	Released []int64
}

// SweepExpired 将所有已过开始时间或超龄的招募中房间置为过期，
// 并释放其全部成员 (用户指针清空，机器人回到空闲池)。
// 批量执行，最终状态与对每个成员调用 Leave 的最后一步一致。
func (e *RoomEngine) SweepExpired(ctx context.Context, r repository.Repos, now time.Time) (SweepResult, error) {
	var res SweepResult
	stale, err := r.Rooms.FindStaleOpenForUpdate(ctx, now, domain.RoomMaxAge)
	if err != nil {
		return res, err
	}
	if len(stale) == 0 {
		return res, nil
	}

	roomIDs := make([]int64, 0, len(stale))
	var members []int64
	for _, room := range stale {
		roomIDs = append(roomIDs, room.ID)
		members = append(members, room.ParticipantIDs()...)
	}
	members = domain.DedupeParticipants(members)

	if err := r.Rooms.MarkExpired(ctx, roomIDs); err != nil {
		return res, err
	}
	if err := r.Users.ClearRooms(ctx, members); err != nil {
		return res, err
	}
	_, robots := domain.SplitParticipants(members)
	if len(robots) > 0 {
		robotIDs := make([]int64, 0, len(robots))
		for _, p := range robots {
			robotIDs = append(robotIDs, p.Wire())
		}
		if err := r.Robots.MarkIdle(ctx, robotIDs); err != nil {
			return res, err
		}
	}

	for i := range stale {
		stale[i].Status = domain.RoomStatusExpired
	}
	res.Expired = stale
	res.Released = members
	return res, nil
}

// ListTables 先清扫过期房间，再在同一事务中返回可加入的房间 (创建时间倒序)。
// viewerID 为 nil 表示匿名访问。
func (s *RoomService) ListTables(ctx context.Context, viewerID *int64) ([]TableView, error) {
	logCtx := logrus.WithField("viewer_id", viewerID)
	now := s.now()

	var (
		swept SweepResult
		views []TableView
	)
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		var err error
		swept, err = s.engine.SweepExpired(ctx, r, now)
		if err != nil {
			return err
		}
		rooms, err := r.Rooms.ListActive(ctx, now, domain.RoomMaxAge)
		if err != nil {
			return err
		}
		views, err = enrichRooms(ctx, r, rooms, viewerID)
		return err
	})
	if err != nil {
		return nil, s.logTxError(logCtx, "ListTables", err)
	}

	if len(swept.Expired) > 0 {
		logCtx.WithFields(logrus.Fields{
			"expired":  len(swept.Expired),
			"released": len(swept.Released),
		}).Info("Expired stale rooms")
		for i := range swept.Expired {
			ev := roomEvent(domain.RoomEventExpired, &swept.Expired[i], now)
			s.publish(ctx, ev)
		}
	}
	return views, nil
}

// GetTableDetail 返回单个房间详情，不做清扫
func (s *RoomService) GetTableDetail(ctx context.Context, tableID int64, viewerID *int64) (*TableView, error) {
	logCtx := logrus.WithFields(logrus.Fields{"table_id": tableID, "viewer_id": viewerID})

	var view *TableView
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		room, err := r.Rooms.FindByID(ctx, tableID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		views, err := enrichRooms(ctx, r, []domain.Room{*room}, viewerID)
		if err != nil {
			return err
		}
		view = &views[0]
		return nil
	})
	if err != nil {
		return nil, s.logTxError(logCtx, "GetTableDetail", err)
	}
	return view, nil
}

// enrichRooms 批量加载成员与门店信息。找不到用户记录的成员被静默丢弃。
func enrichRooms(ctx context.Context, r repository.Repos, rooms []domain.Room, viewerID *int64) ([]TableView, error) {
	views := make([]TableView, 0, len(rooms))
	if len(rooms) == 0 {
		return views, nil
	}

	participants := make([][]int64, len(rooms))
	var userIDs, storeIDs []int64
	for i, room := range rooms {
		participants[i] = domain.DedupeParticipants(room.ParticipantIDs())
		userIDs = append(userIDs, participants[i]...)
		storeIDs = append(storeIDs, room.StoreID)
	}

	users, err := r.Users.FindByIDs(ctx, domain.DedupeParticipants(userIDs))
	if err != nil {
		return nil, err
	}
	stores, err := r.Stores.FindByIDs(ctx, domain.DedupeParticipants(storeIDs))
	if err != nil {
		return nil, err
	}
	userByID := make(map[int64]domain.User, len(users))
	for _, u := range users {
		userByID[u.UserID] = u
	}
	storeByID := make(map[int64]domain.Store, len(stores))
	for _, st := range stores {
		storeByID[st.ID] = st
	}

	for i, room := range rooms {
		view := TableView{
			ID:               room.ID,
			HostID:           room.HostID,
			StoreID:          room.StoreID,
			ReqNum:           room.ReqNum,
			Status:           room.Status,
			StartTime:        room.StartTime,
			GameType:         room.GameType,
			Remark:           room.Remark,
			CreatedAt:        room.CreatedAt,
			ParticipantCount: len(participants[i]),
			Participants:     make([]ParticipantView, 0, len(participants[i])),
		}
		if st, ok := storeByID[room.StoreID]; ok {
			view.StoreName = st.Name
			view.StoreAddress = st.Address
		}
		for _, id := range participants[i] {
			me := viewerID != nil && *viewerID == id
			if me {
				view.IsCurrentRoom = true
			}
			u, ok := userByID[id]
			if !ok {
				continue
			}
			view.Participants = append(view.Participants, ParticipantView{
				UserID:    u.UserID,
				Nickname:  u.Nickname,
				AvatarURL: u.AvatarURL,
				IsHost:    u.UserID == room.HostID,
				IsMe:      me,
			})
		}
		views = append(views, view)
	}
	return views, nil
}
