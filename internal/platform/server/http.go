package server

import (
	"errors"
	"strconv"

	"community-chat/internal/chat"
	"community-chat/internal/constants"
	"community-chat/internal/httputil"
	"community-chat/internal/identity"
	"community-chat/internal/platform/config"
	"community-chat/internal/platform/health"
	"community-chat/internal/platform/middleware"
	"community-chat/internal/presence"
	"community-chat/internal/socket"
	"community-chat/internal/upload"

	"github.com/gin-gonic/gin"
)

// Deps 路由依賴
type Deps struct {
	Service   *chat.Service
	Hub       *socket.Hub
	Directory *presence.Directory
	Uploads   *upload.Store
	Verifier  *identity.Verifier
}

// securityHeadersMiddleware 添加安全標頭
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 防止點擊劫持
		c.Header("X-Frame-Options", "DENY")

		// 防止 MIME 類型嗅探
		c.Header("X-Content-Type-Options", "nosniff")

		// 啟用 XSS 保護
		c.Header("X-XSS-Protection", "1; mode=block")

		// 推薦政策
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// 權限政策
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		c.Next()
	}
}

// corsMiddleware 依配置的允許來源處理跨域
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		cfg := config.Get()
		allowed := false
		if cfg != nil {
			for _, o := range cfg.Server.AllowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Guest-Name")
		c.Header("Access-Control-Max-Age", "86400") // 預檢請求緩存 24 小時

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Router 設定路由
func Router(deps *Deps) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())

	// 請求 ID 中間件（最優先，兼作日誌 trace ID）
	r.Use(middleware.RequestIDMiddleware())

	r.Use(securityHeadersMiddleware())

	// 請求元數據中間件（提取 IP、User-Agent）
	r.Use(middleware.RequestMetadataMiddleware())

	// 從配置讀取限制參數
	cfg := config.Get()

	maxMemory := int64(constants.DefaultMaxMultipartMemory)
	if cfg != nil && cfg.Limits.Request.MaxMultipartMemory > 0 {
		maxMemory = cfg.Limits.Request.MaxMultipartMemory
	}
	r.MaxMultipartMemory = maxMemory

	maxBodySize := int64(constants.DefaultMaxRequestBodySize)
	if cfg != nil && cfg.Limits.Request.MaxBodySize > 0 {
		maxBodySize = cfg.Limits.Request.MaxBodySize
	}
	r.Use(middleware.RequestSizeLimiter(maxBodySize))

	// Rate Limiting
	if cfg == nil || cfg.Limits.RateLimiting.Enabled {
		r.Use(middleware.NewChatRateLimiter().Middleware())
	}

	// 身份解析（降級為訪客，不攔截請求）
	r.Use(middleware.IdentityMiddleware(deps.Verifier))

	healthHandler := health.NewHealthHandler()
	r.GET("/health", healthHandler.HealthCheck)

	// 媒體檔案靜態服務
	r.Static(deps.Uploads.PublicURL(), deps.Uploads.Dir())

	api := &chatAPI{deps: deps}

	chatGroup := r.Group("/api/chat")
	{
		chatGroup.GET("/messages", api.listMessages)
		chatGroup.POST("/send", api.sendMessage)
		chatGroup.POST("/upload", api.uploadMedia)
		chatGroup.PUT("/edit/:messageId", api.editMessage)
		chatGroup.DELETE("/delete/:messageId", api.deleteMessage)
		chatGroup.DELETE("/delete-for-me/:messageId", api.deleteMessageForMe)
		chatGroup.PATCH("/status/:messageId", api.updateStatus)
		chatGroup.GET("/online-users", api.onlineUsers)
		chatGroup.POST("/reactions/:messageId", api.toggleReaction)
		chatGroup.GET("/reactions/:messageId", api.getReactions)
	}

	// websocket 升級入口
	wsHandler := socket.NewHandler(deps.Hub, deps.Verifier)
	r.GET("/api/chat/ws", wsHandler.Serve)

	return r
}

// chatAPI 聊天 HTTP 處理器
type chatAPI struct {
	deps *Deps
}

// respondServiceError 將服務層錯誤映射為 HTTP 響應
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		httputil.NotFoundError(c, httputil.MessageNotFound)
	case errors.Is(err, chat.ErrForbidden):
		httputil.Forbidden(c, "")
	case errors.Is(err, chat.ErrInvalidInput):
		httputil.BadRequest(c, err.Error())
	default:
		httputil.InternalServerError(c, err)
	}
}

// actorFrom 取出已解析的身份；訪客可用請求內的 senderName 覆蓋顯示名稱
func actorFrom(c *gin.Context, senderName string) (identity.Identity, error) {
	actor := middleware.GetIdentity(c)
	if actor.IsGuest() && senderName != "" {
		if err := middleware.ValidateUsername(senderName); err != nil {
			return actor, err
		}
		actor = identity.Guest(middleware.SanitizeInput(senderName))
	}
	return actor, nil
}

// 獲取消息列表
func (a *chatAPI) listMessages(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "0"))

	viewer := middleware.GetIdentity(c)
	result, err := a.deps.Service.ListMessages(c.Request.Context(), viewer, page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"success":  true,
		"messages": result.Messages,
		"hasMore":  result.HasMore,
		"page":     result.Page,
		"pageSize": result.PageSize,
	})
}

// 發送文字消息
func (a *chatAPI) sendMessage(c *gin.Context) {
	var req struct {
		Message    string `json:"message"`
		SenderName string `json:"senderName"`
		ReplyTo    string `json:"replyTo"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	actor, err := actorFrom(c, req.SenderName)
	if err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	msg, err := a.deps.Service.Send(c.Request.Context(), actor, chat.SendInput{
		Body:    middleware.SanitizeInput(req.Message),
		ReplyTo: req.ReplyTo,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	a.deps.Hub.BroadcastEvent(socket.EventNewMessage, msg)

	c.JSON(200, gin.H{
		"success": true,
		"message": httputil.MessageSent,
		"data":    msg,
	})
}

// 上傳媒體並發送媒體消息
func (a *chatAPI) uploadMedia(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		httputil.BadRequest(c, "缺少上傳檔案")
		return
	}

	caption := c.PostForm("caption")
	if caption != "" {
		if err := middleware.ValidateMessageContent(caption); err != nil {
			httputil.BadRequest(c, err.Error())
			return
		}
	}

	actor, err := actorFrom(c, c.PostForm("senderName"))
	if err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	result, err := a.deps.Uploads.Save(fileHeader)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrFileTooLarge):
			c.JSON(413, httputil.ErrorWithCode(httputil.ErrorCodeFileTooLarge, httputil.FileTooLarge))
		case errors.Is(err, upload.ErrUnsupportedType):
			c.JSON(400, httputil.ErrorWithCode(httputil.ErrorCodeInvalidFileType, httputil.InvalidFileFormat))
		default:
			httputil.InternalServerError(c, err)
		}
		return
	}

	msg, err := a.deps.Service.Send(c.Request.Context(), actor, chat.SendInput{
		Body:          middleware.SanitizeInput(caption),
		Type:          result.Kind,
		MediaURL:      result.URL,
		MediaFileName: result.OriginalName,
		MediaSize:     result.Size,
		ReplyTo:       c.PostForm("replyTo"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	a.deps.Hub.BroadcastEvent(socket.EventNewMessage, msg)

	c.JSON(200, gin.H{
		"success": true,
		"message": httputil.MediaUploaded,
		"data":    msg,
	})
}

// 編輯消息
func (a *chatAPI) editMessage(c *gin.Context) {
	messageID := c.Param("messageId")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	actor := middleware.GetIdentity(c)
	msg, err := a.deps.Service.Edit(c.Request.Context(), actor, messageID, middleware.SanitizeInput(req.Message))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	a.deps.Hub.BroadcastEvent(socket.EventMessageEdited, msg)

	c.JSON(200, gin.H{
		"success": true,
		"message": httputil.MessageUpdated,
		"data":    msg,
	})
}

// 整體刪除消息
func (a *chatAPI) deleteMessage(c *gin.Context) {
	messageID := c.Param("messageId")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	actor := middleware.GetIdentity(c)
	if _, err := a.deps.Service.Delete(c.Request.Context(), actor, messageID); err != nil {
		respondServiceError(c, err)
		return
	}

	a.deps.Hub.BroadcastEvent(socket.EventMessageDeleted, gin.H{"messageId": messageID})

	c.JSON(200, httputil.Success(httputil.MessageDeleted))
}

// 對自己刪除消息
func (a *chatAPI) deleteMessageForMe(c *gin.Context) {
	messageID := c.Param("messageId")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	actor := middleware.GetIdentity(c)
	if err := a.deps.Service.DeleteForMe(c.Request.Context(), actor, messageID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(200, httputil.Success(httputil.MessageDeletedFor))
}

// 更新消息狀態
func (a *chatAPI) updateStatus(c *gin.Context) {
	messageID := c.Param("messageId")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	actor := middleware.GetIdentity(c)
	msg, err := a.deps.Service.UpdateStatus(c.Request.Context(), actor, messageID, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	a.deps.Hub.BroadcastEvent(socket.EventMessageStatusUpdated, gin.H{
		"messageId": messageID,
		"status":    msg.Status,
	})

	c.JSON(200, httputil.Success(httputil.StatusUpdated))
}

// 獲取在線用戶名單
func (a *chatAPI) onlineUsers(c *gin.Context) {
	entries, err := a.deps.Directory.Snapshot(c.Request.Context())
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	c.JSON(200, httputil.SuccessWithData("onlineUsers", entries))
}

// 切換消息反應
func (a *chatAPI) toggleReaction(c *gin.Context) {
	messageID := c.Param("messageId")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	var req struct {
		Type     string `json:"type"`
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	actor, err := actorFrom(c, req.Username)
	if err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	result, err := a.deps.Service.ToggleReaction(c.Request.Context(), actor, messageID, req.Type)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	a.deps.Hub.BroadcastEvent(socket.EventReactionUpdated, result)

	c.JSON(200, gin.H{
		"success": true,
		"data":    result,
	})
}

// 獲取消息反應
func (a *chatAPI) getReactions(c *gin.Context) {
	messageID := c.Param("messageId")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	result, err := a.deps.Service.GetReactions(c.Request.Context(), messageID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"success": true,
		"data":    result,
	})
}
