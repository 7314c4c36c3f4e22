package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"community-chat/internal/constants"
	"community-chat/internal/platform/config"

	"github.com/gin-gonic/gin"
)

// ValidateMessageContent 驗證訊息內容
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("訊息內容不能為空")
	}

	cfg := config.Get()
	maxLength := constants.DefaultMaxMessageLength
	if cfg != nil && cfg.Limits.Message.MaxLength > 0 {
		maxLength = cfg.Limits.Message.MaxLength
	}

	if len(content) > maxLength {
		return fmt.Errorf("訊息內容超過最大長度限制 (%d 字符)", maxLength)
	}

	// 防止 NULL 字符注入
	if strings.Contains(content, "\x00") {
		return fmt.Errorf("訊息內容包含非法字符")
	}

	return nil
}

// ValidateUsername 驗證顯示名稱
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("顯示名稱不能為空")
	}

	if len(username) > constants.MaxUsernameLength {
		return fmt.Errorf("顯示名稱超過最大長度限制 (%d 字符)", constants.MaxUsernameLength)
	}

	// 防止 NULL 字符注入和查詢運算符
	if strings.ContainsAny(username, "\x00${}") {
		return fmt.Errorf("顯示名稱包含非法字符")
	}

	return nil
}

// ValidateMessageID 驗證消息 ID 格式（MongoDB ObjectID）
func ValidateMessageID(messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("消息 ID 不能為空")
	}

	// MongoDB ObjectID 長度為 24 個十六進制字符
	if len(messageID) != 24 {
		return fmt.Errorf("消息 ID 格式錯誤")
	}

	for _, c := range messageID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return fmt.Errorf("消息 ID 格式錯誤")
		}
	}

	return nil
}

// SanitizeInput 消毒輸入（移除危險字符）
func SanitizeInput(input string) string {
	// 移除 NULL 字符
	input = strings.ReplaceAll(input, "\x00", "")

	// 移除控制字符（除了換行和 Tab）
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// RequestSizeLimiter 限制請求體大小的中間件
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("請求體過大，最大允許 %d 字節", maxSize),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
