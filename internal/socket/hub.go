package socket

import (
	"context"

	"community-chat/internal/chat"
	"community-chat/internal/constants"
	"community-chat/internal/platform/config"
	"community-chat/internal/platform/logger"
	"community-chat/internal/presence"
	presencedb "community-chat/internal/storage/database/presence"
)

// frame 待分發的出站幀
type frame struct {
	payload []byte
	// except 不為 nil 時跳過該連接（例如打字提示不回送給發送者）
	except *Client
}

// Hub 連接路由器
// 單一 goroutine 串行處理註冊、註銷與廣播，客戶端集合不需要加鎖
type Hub struct {
	service   *chat.Service
	directory *presence.Directory

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan frame
	quit       chan struct{}
}

// NewHub 創建連接路由器
func NewHub(service *chat.Service, directory *presence.Directory) *Hub {
	broadcastBuffer := constants.DefaultSocketBroadcastBuffer
	if cfg := config.Get(); cfg != nil && cfg.Limits.Socket.BroadcastBuffer > 0 {
		broadcastBuffer = cfg.Limits.Socket.BroadcastBuffer
	}

	h := &Hub{
		service:    service,
		directory:  directory,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan frame, broadcastBuffer),
		quit:       make(chan struct{}),
	}

	// 在線名單變動時向所有連接重播
	directory.SetOnChange(func(entries []*presencedb.Entry) {
		h.BroadcastEvent(EventOnlineUsers, entries)
	})

	return h
}

// Run 啟動主循環
func (h *Hub) Run() {
	ctx := context.Background()
	logger.Info(ctx, "socket hub 啟動")

	for {
		select {
		case <-h.quit:
			logger.Info(ctx, "socket hub 關閉中")
			for client := range h.clients {
				h.dropClient(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			logger.Info(ctx, "連接已註冊",
				logger.WithUserID(client.identity.UserID),
				logger.WithUsername(client.identity.DisplayName),
				logger.WithDetails(map[string]interface{}{"active": len(h.clients)}))

			if err := h.directory.Join(ctx, client.identity); err == nil {
				// Join 失敗時名單回調已略過，仍讓連接繼續服務
				h.sendSnapshot(ctx, client)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.dropClient(client)
				h.directory.Leave(ctx, client.identity)
				logger.Info(ctx, "連接已註銷",
					logger.WithUserID(client.identity.UserID),
					logger.WithUsername(client.identity.DisplayName),
					logger.WithDetails(map[string]interface{}{"active": len(h.clients)}))
			}

		case f := <-h.broadcast:
			for client := range h.clients {
				if client == f.except {
					continue
				}
				select {
				case client.send <- f.payload:
				default:
					// 發送緩衝滿代表消費過慢，直接踢出以保護其他連接
					logger.Warning(ctx, "連接消費過慢，強制斷開",
						logger.WithUsername(client.identity.DisplayName))
					h.dropClient(client)
					h.directory.Leave(ctx, client.identity)
				}
			}
		}
	}
}

// dropClient 移除連接並釋放資源（只在主循環中調用）
func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	client.conn.Close()
}

// sendSnapshot 向單一連接發送當前在線名單
func (h *Hub) sendSnapshot(ctx context.Context, client *Client) {
	entries, err := h.directory.Snapshot(ctx)
	if err != nil {
		return
	}
	payload, err := encodeEvent(EventOnlineUsers, entries)
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

// BroadcastEvent 向所有連接廣播事件
func (h *Hub) BroadcastEvent(event string, data interface{}) {
	h.broadcastFrame(event, data, nil)
}

// broadcastExcept 向除指定連接外的所有連接廣播事件
func (h *Hub) broadcastExcept(except *Client, event string, data interface{}) {
	h.broadcastFrame(event, data, except)
}

func (h *Hub) broadcastFrame(event string, data interface{}, except *Client) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		logger.LogErrorf("事件編碼失敗 (%s): %v", event, err)
		return
	}

	// 緩衝滿時阻塞生產者而不丟幀：主循環持續消費，已落地的消息必須送達；
	// 慢速連接由每連接發送緩衝的踢出機制處理
	select {
	case h.broadcast <- frame{payload: payload, except: except}:
	case <-h.quit:
		logger.LogWarnf("hub 已關閉，放棄事件: %s", event)
	}
}

// Shutdown 停止主循環並斷開所有連接
func (h *Hub) Shutdown() {
	close(h.quit)
}
