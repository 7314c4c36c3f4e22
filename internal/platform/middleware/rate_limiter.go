package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"community-chat/internal/constants"
	"community-chat/internal/platform/config"

	"github.com/gin-gonic/gin"
)

// RateLimiter 速率限制器
type RateLimiter struct {
	visitors map[string]*Visitor
	mu       sync.RWMutex
	rate     int           // 每個時間窗口允許的請求數
	window   time.Duration // 時間窗口
}

// Visitor 訪問者信息
type Visitor struct {
	lastSeen  time.Time
	requests  int
	resetTime time.Time
}

// NewRateLimiter 創建新的速率限制器
// rate: 每個時間窗口允許的請求數
// window: 時間窗口（例如：time.Minute）
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*Visitor),
		rate:     rate,
		window:   window,
	}

	// 啟動清理 goroutine，定期清理過期的訪問者記錄
	go rl.cleanupVisitors()

	return rl
}

// Middleware 返回 Gin 中間件
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		if !rl.allowRequest(ip) {
			rejectTooManyRequests(c)
			return
		}

		c.Next()
	}
}

// allowRequest 檢查是否允許請求
func (rl *RateLimiter) allowRequest(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	visitor, exists := rl.visitors[ip]

	if !exists {
		// 新訪問者
		rl.visitors[ip] = &Visitor{
			lastSeen:  now,
			requests:  1,
			resetTime: now.Add(rl.window),
		}
		return true
	}

	// 檢查時間窗口是否已過期
	if now.After(visitor.resetTime) {
		// 重置計數器
		visitor.requests = 1
		visitor.resetTime = now.Add(rl.window)
		visitor.lastSeen = now
		return true
	}

	// 檢查是否超過速率限制
	if visitor.requests >= rl.rate {
		visitor.lastSeen = now
		return false
	}

	visitor.requests++
	visitor.lastSeen = now
	return true
}

// cleanupVisitors 定期清理過期的訪問者記錄
func (rl *RateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()

		for ip, visitor := range rl.visitors {
			// 如果訪問者超過 10 分鐘沒有活動，刪除記錄
			if now.Sub(visitor.lastSeen) > 10*time.Minute {
				delete(rl.visitors, ip)
			}
		}

		rl.mu.Unlock()
	}
}

// rejectTooManyRequests 回應速率限制錯誤
func rejectTooManyRequests(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      "請求過於頻繁，請稍後再試",
		"success":    false,
		"request_id": GetRequestID(c),
	})
	c.Abort()
}

// PerEndpointRateLimiter 為不同端點前綴設置不同的速率限制
type PerEndpointRateLimiter struct {
	limiters map[string]*RateLimiter
	default_ *RateLimiter
}

// NewPerEndpointRateLimiter 創建端點級速率限制器
func NewPerEndpointRateLimiter(defaultRate int, defaultWindow time.Duration) *PerEndpointRateLimiter {
	return &PerEndpointRateLimiter{
		limiters: make(map[string]*RateLimiter),
		default_: NewRateLimiter(defaultRate, defaultWindow),
	}
}

// NewChatRateLimiter 依配置創建聊天服務的端點級速率限制器
// 發送與上傳端點有較嚴格的獨立配額
func NewChatRateLimiter() *PerEndpointRateLimiter {
	defaultRate := constants.DefaultRateLimitPerMinute
	messageRate := constants.DefaultMessageRateLimit
	uploadRate := constants.DefaultUploadRateLimit

	if cfg := config.Get(); cfg != nil {
		if cfg.Limits.RateLimiting.DefaultPerMinute > 0 {
			defaultRate = cfg.Limits.RateLimiting.DefaultPerMinute
		}
		if cfg.Limits.RateLimiting.MessagesPerMin > 0 {
			messageRate = cfg.Limits.RateLimiting.MessagesPerMin
		}
		if cfg.Limits.RateLimiting.UploadsPerMin > 0 {
			uploadRate = cfg.Limits.RateLimiting.UploadsPerMin
		}
	}

	p := NewPerEndpointRateLimiter(defaultRate, time.Minute)
	p.SetLimit("/api/chat/send", messageRate, time.Minute)
	p.SetLimit("/api/chat/upload", uploadRate, time.Minute)
	return p
}

// SetLimit 為特定端點前綴設置限制
func (p *PerEndpointRateLimiter) SetLimit(pathPrefix string, rate int, window time.Duration) {
	p.limiters[pathPrefix] = NewRateLimiter(rate, window)
}

// Middleware 返回 Gin 中間件
func (p *PerEndpointRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		ip := c.ClientIP()

		limiter := p.default_
		for prefix, l := range p.limiters {
			if strings.HasPrefix(path, prefix) {
				limiter = l
				break
			}
		}

		if !limiter.allowRequest(ip) {
			rejectTooManyRequests(c)
			return
		}

		c.Next()
	}
}
