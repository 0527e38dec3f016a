package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/wechat"
)

// MessageSender 订阅消息发送
type MessageSender interface {
	SendSubscribeMessage(ctx context.Context, msg wechat.SubscribeMessage) error
}

// NotifyService 房间满员时给真实成员推送订阅消息
type NotifyService struct {
	uow        repository.UnitOfWork
	sender     MessageSender
	templateID string
}

// NewNotifyService sender 为 nil 或 templateID 为空时通知被跳过
func NewNotifyService(uow repository.UnitOfWork, sender MessageSender, templateID string) *NotifyService {
	if uow == nil {
		panic("UnitOfWork cannot be nil for NotifyService")
	}
	return &NotifyService{uow: uow, sender: sender, templateID: templateID}
}

// Enabled 是否配置了推送
func (s *NotifyService) Enabled() bool {
	return s.sender != nil && s.templateID != ""
}

// NotifyRoomFull 给房间内有 open_id 的真实用户发送满员通知。
// 单个用户发送失败只记录日志；房间不存在时跳过。返回成功发送的数量。
func (s *NotifyService) NotifyRoomFull(ctx context.Context, roomID int64) (int, error) {
	logCtx := logrus.WithField("room_id", roomID)
	if !s.Enabled() {
		logCtx.Debug("Room full notification skipped: wechat push not configured")
		return 0, nil
	}

	var (
		room  *domain.Room
		store *domain.Store
		users []domain.User
	)
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		var err error
		room, err = r.Rooms.FindByID(ctx, roomID)
		if err != nil {
			return err
		}
		humans, _ := domain.SplitParticipants(room.ParticipantIDs())
		ids := make([]int64, 0, len(humans))
		for _, p := range humans {
			ids = append(ids, p.Wire())
		}
		if users, err = r.Users.FindByIDs(ctx, ids); err != nil {
			return err
		}
		store, err = r.Stores.FindByID(ctx, room.StoreID)
		if errors.Is(err, repository.ErrStoreNotFound) {
			store, err = &domain.Store{}, nil
		}
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("Room full notification skipped: room not found")
			return 0, nil
		}
		return 0, fmt.Errorf("load room %d for notification: %w", roomID, err)
	}

	sent := 0
	for _, u := range users {
		if u.OpenID == nil || *u.OpenID == "" {
			continue
		}
		msg := wechat.SubscribeMessage{
			ToUser:     *u.OpenID,
			TemplateID: s.templateID,
			Page:       fmt.Sprintf("pages/table/detail?tableId=%d", room.ID),
			Data: map[string]map[string]string{
				"thing1": {"value": truncate(store.Name, 20)},
				"time2":  {"value": room.StartTime.Format("2006-01-02 15:04")},
				"thing3": {"value": fmt.Sprintf("%d人桌已满员", room.ReqNum)},
			},
		}
		if err := s.sender.SendSubscribeMessage(ctx, msg); err != nil {
			logCtx.WithError(err).WithField("user_id", u.UserID).Warn("Failed to send room full notification")
			continue
		}
		sent++
	}
	logCtx.WithField("sent", sent).Info("Room full notifications sent")
	return sent, nil
}

// truncate 按字符截断 (订阅消息 thing 类型限 20 字)
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
