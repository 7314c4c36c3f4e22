package middleware

import (
	"strings"

	"community-chat/internal/identity"

	"github.com/gin-gonic/gin"
)

const identityKey = "session_identity"

// IdentityMiddleware 解析 HTTP 請求的身份
// Authorization: Bearer <token> 攜帶憑證；驗證失敗降級為訪客，不拒絕請求。
// 訪客可透過 X-Guest-Name 頭部或 username 查詢參數提供顯示名稱
func IdentityMiddleware(verifier *identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
		if token == "" {
			token = c.Query("token")
		}

		guestName := c.GetHeader("X-Guest-Name")
		if guestName == "" {
			guestName = c.Query("username")
		}

		id := verifier.Resolve(c.Request.Context(), token, guestName)
		c.Set(identityKey, id)

		c.Next()
	}
}

// GetIdentity 從 gin.Context 獲取已解析的身份
func GetIdentity(c *gin.Context) identity.Identity {
	if value, exists := c.Get(identityKey); exists {
		if id, ok := value.(identity.Identity); ok {
			return id
		}
	}
	return identity.Guest("Guest")
}
