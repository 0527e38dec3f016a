package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/wechat"
)

type fakeSender struct {
	sent []wechat.SubscribeMessage
	fail map[string]bool
}

func (f *fakeSender) SendSubscribeMessage(ctx context.Context, msg wechat.SubscribeMessage) error {
	if f.fail[msg.ToUser] {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestNotifyRoomFull(t *testing.T) {
	s := newTestStore()
	s.PutStore(domain.Store{ID: 1, Name: "一二三四五六七八九十一二三四五六七八九十超长", Status: domain.StoreStatusActive})
	a, b, c := "open-a", "open-b", "open-c"
	s.PutUser(domain.User{UserID: 5, OpenID: &a})
	s.PutUser(domain.User{UserID: 6})
	s.PutUser(domain.User{UserID: 7, OpenID: &b})
	s.PutUser(domain.User{UserID: 8, OpenID: &c})
	roomID := seedRoom(s, 5, []int64{5, -1, 6, 7, 8}, 4)

	sender := &fakeSender{fail: map[string]bool{"open-c": true}}
	svc := NewNotifyService(s, sender, "tmpl-1")

	sent, err := svc.NotifyRoomFull(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, sender.sent, 2)

	msg := sender.sent[0]
	assert.Equal(t, "tmpl-1", msg.TemplateID)
	assert.Len(t, []rune(msg.Data["thing1"]["value"]), 20)
	assert.Contains(t, msg.Page, "tableId=")
}

func TestNotifyRoomFull_Skips(t *testing.T) {
	s := newTestStore()

	sent, err := NewNotifyService(s, nil, "tmpl").NotifyRoomFull(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, sent, "not configured")

	sender := &fakeSender{}
	sent, err = NewNotifyService(s, sender, "tmpl").NotifyRoomFull(context.Background(), 404)
	require.NoError(t, err)
	assert.Zero(t, sent, "missing room")
	assert.Empty(t, sender.sent)
}
