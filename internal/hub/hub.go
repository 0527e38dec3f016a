// Package hub 把已提交的房间变更推送给正在浏览牌桌列表的 WebSocket 客户端。
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	redisstate "github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/state/redis"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发送心跳，消息很小
	maxMessageSize = 512
)

// AllTables 订阅全部牌桌的主题
const AllTables int64 = 0

// HubMessage 在 Hub 内部通道传递的消息
type HubMessage struct {
	Type    string // "register", "unregister", "broadcast"
	TableID int64  // broadcast 时为事件所属房间
	Client  *Client
	Payload []byte
}

// Hub 维护订阅者集合并分发房间事件。
// 订阅 AllTables 的客户端收到全部事件，订阅某个房间的客户端只收到该房间的事件。
type Hub struct {
	messageChan chan HubMessage
	done        chan struct{}
	stopOnce    sync.Once

	// map[tableID]map[*Client]bool
	topics   map[int64]map[*Client]bool
	topicsMu sync.RWMutex
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub() *Hub {
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		done:        make(chan struct{}),
		topics:      make(map[int64]map[*Client]bool),
	}
}

// Run 启动 Hub 的主事件循环，应在单独的 goroutine 中运行，Stop 后返回。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	for {
		select {
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "broadcast":
				h.broadcast(msg.TableID, msg.Payload)
			default:
				log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		case <-h.done:
			h.closeAll()
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop 停止事件循环并关闭所有客户端
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	h.topicsMu.Lock()
	if _, ok := h.topics[client.tableID]; !ok {
		h.topics[client.tableID] = make(map[*Client]bool)
	}
	h.topics[client.tableID][client] = true
	h.topicsMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"table_id": client.tableID,
		"user_id":  client.userID,
	}).Debug("Client registered to Hub")
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	h.topicsMu.Lock()
	defer h.topicsMu.Unlock()
	clients, ok := h.topics[client.tableID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.topics, client.tableID)
	}
	logrus.WithFields(logrus.Fields{
		"table_id": client.tableID,
		"user_id":  client.userID,
	}).Debug("Client unregistered from Hub")
}

func (h *Hub) closeAll() {
	h.topicsMu.Lock()
	defer h.topicsMu.Unlock()
	for id, clients := range h.topics {
		for c := range clients {
			close(c.send)
		}
		delete(h.topics, id)
	}
}

// broadcast 发送给订阅全部牌桌以及订阅该房间的客户端
func (h *Hub) broadcast(tableID int64, message []byte) {
	h.topicsMu.RLock()
	recipients := make([]*Client, 0, len(h.topics[AllTables])+len(h.topics[tableID]))
	for c := range h.topics[AllTables] {
		recipients = append(recipients, c)
	}
	if tableID != AllTables {
		for c := range h.topics[tableID] {
			recipients = append(recipients, c)
		}
	}
	h.topicsMu.RUnlock()

	for _, client := range recipients {
		// 非阻塞发送，慢客户端不拖慢广播
		select {
		case client.send <- message:
		default:
			logrus.WithFields(logrus.Fields{
				"table_id": tableID,
				"user_id":  client.userID,
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。队列已满时返回 false。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"table_id":     msg.TableID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// eventMessage 推送给客户端的消息格式
type eventMessage struct {
	Type  string           `json:"type"`
	Event domain.RoomEvent `json:"event"`
}

// Publish 把房间事件排入广播队列
func (h *Hub) Publish(event domain.RoomEvent) bool {
	payload, err := json.Marshal(eventMessage{Type: "table_event", Event: event})
	if err != nil {
		logrus.WithError(err).WithField("room_id", event.RoomID).Error("Failed to marshal room event")
		return false
	}
	return h.QueueMessage(HubMessage{Type: "broadcast", TableID: event.RoomID, Payload: payload})
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.topicsMu.RLock()
	defer h.topicsMu.RUnlock()
	n := 0
	for _, clients := range h.topics {
		n += len(clients)
	}
	return n
}

// Subscribe 订阅 Redis 上的房间事件频道并转发给本地客户端，直到 ctx 结束。
// 多实例部署时每个实例都订阅，因此任一实例提交的变更都能推送到所有连接。
func (h *Hub) Subscribe(ctx context.Context, rdb *redis.Client, channel string) error {
	log := logrus.WithFields(logrus.Fields{"component": "hub", "channel": channel})
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.WithError(err).Error("Failed to subscribe to room events")
		return err
	}
	log.Info("Subscribed to room events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info("Room event subscription stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := redisstate.DecodeRoomEvent(msg.Payload)
			if err != nil {
				log.WithError(err).Warn("Dropping malformed room event")
				continue
			}
			h.Publish(event)
		}
	}
}
