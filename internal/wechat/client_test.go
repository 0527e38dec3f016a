package wechat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	token string
	ttl   time.Duration
}

func (m *memCache) GetAccessToken(ctx context.Context) (string, error) {
	if m.token == "" {
		return "", errors.New("miss")
	}
	return m.token, nil
}

func (m *memCache) SetAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	m.token, m.ttl = token, ttl
	return nil
}

func TestCode2Session(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sns/jscode2session", r.URL.Path)
		assert.Equal(t, "the-code", r.URL.Query().Get("js_code"))
		assert.Equal(t, "app", r.URL.Query().Get("appid"))
		w.Header().Set("Content-Type", "text/plain") // 微信实际返回 text/plain
		_, _ = io.WriteString(w, `{"openid":"o-123","session_key":"sk"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "app", "secret", nil)
	sess, err := c.Code2Session(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "o-123", sess.OpenID)
}

func TestCode2Session_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"errcode":40029,"errmsg":"invalid code"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "app", "secret", nil)
	_, err := c.Code2Session(context.Background(), "bad")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40029, apiErr.Code)
}

func TestCode2Session_NotConfigured(t *testing.T) {
	c := NewClient("", "", "", nil)
	_, err := c.Code2Session(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendSubscribeMessage_CachesToken(t *testing.T) {
	var tokenCalls, sendCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cgi-bin/token":
			atomic.AddInt32(&tokenCalls, 1)
			_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":7200}`)
		case "/cgi-bin/message/subscribe/send":
			atomic.AddInt32(&sendCalls, 1)
			assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), `"touser":"o-1"`)
			_, _ = io.WriteString(w, `{"errcode":0,"errmsg":"ok"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cache := &memCache{}
	c := NewClient(srv.URL, "app", "secret", cache)
	msg := SubscribeMessage{ToUser: "o-1", TemplateID: "tpl", Data: map[string]map[string]string{"thing1": {"value": "x"}}}

	require.NoError(t, c.SendSubscribeMessage(context.Background(), msg))
	require.NoError(t, c.SendSubscribeMessage(context.Background(), msg))

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&sendCalls))
	assert.Equal(t, "tok", cache.token)
	assert.Equal(t, 7200*time.Second-5*time.Minute, cache.ttl)
}
