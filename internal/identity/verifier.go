package identity

import (
	"context"
	"fmt"
	"strings"

	"community-chat/internal/platform/logger"
	"community-chat/internal/storage/database/user"

	"github.com/golang-jwt/jwt/v5"
)

// 憑證為該字面值時視同未提供（前端對未登錄用戶發送的哨兵值）
const guestTokenSentinel = "guest"

// Claims 用戶 token 的聲明內容
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Verifier 身份驗證器
// 將連接握手攜帶的憑證解析為身份；任何驗證失敗都降級為訪客，絕不拒絕連接
type Verifier struct {
	secret       []byte
	users        user.UserRepository
	guestDefault string
}

// NewVerifier 創建身份驗證器
func NewVerifier(secret string, users user.UserRepository, guestDefault string) *Verifier {
	if guestDefault == "" {
		guestDefault = "Guest"
	}
	return &Verifier{
		secret:       []byte(secret),
		users:        users,
		guestDefault: guestDefault,
	}
}

// Resolve 解析憑證為會話身份
// 降級路徑一律記錄 auth_degraded 原因，以便區分「刻意訪客」與「認證子系統故障」
func (v *Verifier) Resolve(ctx context.Context, token, guestName string) Identity {
	token = strings.TrimSpace(token)

	// 未提供憑證或哨兵值：具名或匿名訪客
	if token == "" || token == guestTokenSentinel {
		name := guestName
		if name == "" {
			name = v.guestDefault
		}
		return Guest(name)
	}

	claims, err := v.parseToken(token)
	if err != nil {
		// 無效或過期的憑證：降級為訪客
		logger.Warning(ctx, "身份驗證失敗，降級為訪客",
			logger.WithAction("auth_degraded"),
			logger.WithDetails(map[string]interface{}{
				"reason": "invalid_token",
				"error":  err.Error(),
			}))
		return Guest(v.guestDefault)
	}

	u, err := v.users.GetByID(ctx, claims.UserID)
	if err != nil {
		// 帳號不存在（例如已刪除）或查詢失敗：降級為訪客
		logger.Warning(ctx, "用戶資料查詢失敗，降級為訪客",
			logger.WithAction("auth_degraded"),
			logger.WithUserID(claims.UserID),
			logger.WithDetails(map[string]interface{}{
				"reason": "profile_lookup_failed",
				"error":  err.Error(),
			}))
		return Guest(v.guestDefault)
	}

	return Authenticated(claims.UserID, u.Username)
}

// parseToken 驗證並解析 JWT
func (v *Verifier) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token missing userId claim")
	}

	return claims, nil
}
