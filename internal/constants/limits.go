package constants

// HTTP 請求相關常數
const (
	// 默認值（可被配置覆蓋）
	DefaultMaxRequestBodySize = 60 << 20 // 60MB（需容納媒體上傳）
	DefaultMaxMultipartMemory = 10 << 20 // 10MB
	DefaultRequestTimeout     = 30       // 秒
)

// 分頁相關常數
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	MinPageSize     = 1
)

// 訊息相關常數
const (
	DefaultMaxMessageLength = 10000
	MaxUsernameLength       = 100
)

// 媒體上傳相關常數
const (
	DefaultMaxUploadSize = 50 << 20 // 50MB
)

// Rate Limiting 默認值
const (
	DefaultRateLimitPerMinute = 100
	DefaultMessageRateLimit   = 30
	DefaultUploadRateLimit    = 10
)

// WebSocket 連接相關常數
const (
	DefaultSocketMaxMessageSize  = 64 << 10 // 64KB
	DefaultSocketSendBuffer      = 64
	DefaultSocketBroadcastBuffer = 256
	DefaultPongWaitSeconds       = 60
	DefaultWriteWaitSeconds      = 10
)

// 在線狀態相關常數
const (
	// 離線後保留 Presence 條目的寬限時間（秒），用於吸收重新整理頁面等短暫斷線
	DefaultOfflineGraceSeconds = 30
)
