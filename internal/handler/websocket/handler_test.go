package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/hub"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/middleware"
)

func newServer(t *testing.T, origin string) (*httptest.Server, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := hub.NewHub()
	go h.Run()
	t.Cleanup(h.Stop)

	r := gin.New()
	r.GET("/ws/tables", middleware.OptionalAuth("ws-secret"), NewWebSocketHandler(h, origin).HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/tables" + query
}

func TestHandleConnection_ReceivesTableEvents(t *testing.T) {
	srv, h := newServer(t, "")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?tableId=3"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Publish(domain.RoomEvent{Type: domain.RoomEventLeft, RoomID: 4})
	h.Publish(domain.RoomEvent{Type: domain.RoomEventJoined, RoomID: 3, Participants: []int64{1, 2}})

	// 只收到所订阅房间的事件
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type  string           `json:"type"`
		Event domain.RoomEvent `json:"event"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "table_event", msg.Type)
	assert.Equal(t, int64(3), msg.Event.RoomID)
	assert.Equal(t, []int64{1, 2}, msg.Event.Participants)
}

func TestHandleConnection_InvalidTableID(t *testing.T) {
	srv, _ := newServer(t, "")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?tableId=-1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleConnection_RejectsForeignOrigin(t *testing.T) {
	srv, _ := newServer(t, "https://admin.example.com")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://admin.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	conn.Close()
}
