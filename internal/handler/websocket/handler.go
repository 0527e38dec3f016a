package websocket

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/hub"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/middleware"
)

// WebSocketHandler 负责处理 /ws/tables 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空或 "*" 时不校验来源 (小程序请求不带 Origin)。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			return strings.EqualFold(origin, allowedOrigin)
		},
	}

	return &WebSocketHandler{upgrader: upgrader, hub: h}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/tables?tableId={id}，不带 tableId 时订阅全部牌桌
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	userID, _ := middleware.UserID(c) // 匿名订阅者为 0
	logCtx := logrus.WithField("user_id", userID)

	tableID := hub.AllTables
	if s := c.Query("tableId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			logCtx.WithField("table_id", s).Warn("WS Handler: Invalid table ID format")
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": http.StatusBadRequest, "message": "Invalid tableId"})
			return
		}
		tableID = id
	}
	logCtx = logCtx.WithField("table_id", tableID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Warn("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, tableID, userID)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client, TableID: tableID}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	client.Run()
	logCtx.Info("WS Handler: Client registered")
}
