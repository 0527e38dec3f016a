package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub     *Hub            // 所属的 Hub
	conn    *websocket.Conn // WebSocket 连接
	tableID int64           // 订阅的房间，AllTables 表示订阅全部
	userID  int64           // 匿名为 0
	send    chan []byte     // 待推送消息的缓冲通道
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, tableID, userID int64) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		tableID: tableID,
		userID:  userID,
		// 推送只有房间事件，缓冲不需要太大
		send: make(chan []byte, 64),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"user_id": c.userID, "table_id": c.tableID})
}

// ReadPump 只负责维持心跳和检测断开，客户端发来的内容被忽略。
func (c *Client) ReadPump() {
	defer func() {
		// 请求 Hub 注销此客户端；Hub 已停止或阻塞时不要卡住
		select {
		case c.hub.messageChan <- HubMessage{Type: "unregister", Client: c}:
		case <-c.hub.done:
		case <-time.After(1 * time.Second):
			c.logger().Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		c.logger().Debug("ReadPump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	// 初始读超时，收到 Pong 后顺延
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// 读到的消息直接丢弃，只关心错误
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logger().Debug("WebSocket connection closed")
			}
			return // 触发 defer 中的注销
		}
	}
}

// WritePump 将 send 通道中的消息写入连接，并定期发送 Ping。
func (c *Client) WritePump() {
	// 定期 Ping，保持连接并检测断开
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		// 注销由 ReadPump 负责
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 注销时关闭了通道，尽量发一个关闭帧
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger().WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Ping 失败通常意味着连接已断开
				c.logger().WithError(err).Debug("Failed to send ping message")
				return
			}
		}
	}
}

// TableID 订阅的房间
func (c *Client) TableID() int64 { return c.tableID }

// UserID 连接所属用户，匿名为 0
func (c *Client) UserID() int64 { return c.userID }

// CloseConn 关闭底层连接，ReadPump 随之退出并注销
func (c *Client) CloseConn() { c.conn.Close() }
