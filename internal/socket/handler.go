package socket

import (
	"net/http"

	"community-chat/internal/identity"
	"community-chat/internal/platform/config"
	"community-chat/internal/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler websocket 升級入口
type Handler struct {
	hub      *Hub
	verifier *identity.Verifier
	upgrader websocket.Upgrader
}

// NewHandler 創建 websocket 入口
func NewHandler(hub *Hub, verifier *identity.Verifier) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// checkOrigin 驗證升級請求來源
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	cfg := config.Get()
	if cfg == nil || len(cfg.Server.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Serve 處理升級請求
// 握手攜帶 token 與 username 查詢參數；驗證失敗降級為訪客，不拒絕連接
func (h *Handler) Serve(c *gin.Context) {
	ctx := c.Request.Context()

	token := c.Query("token")
	guestName := c.Query("username")
	id := h.verifier.Resolve(ctx, token, guestName)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warning(ctx, "websocket 升級失敗: "+err.Error())
		return
	}

	client := NewClient(h.hub, conn, id)
	h.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
