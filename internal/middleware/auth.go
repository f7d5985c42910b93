package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"award_chat/internal/utils"
)

// ClaimsKey gin.Context 中存放 *utils.MemberClaims 的鍵
const ClaimsKey = "memberClaims"

// MemberAuth 是一個 Gin 中間件，驗證 joined 事件發出的成員 token
func MemberAuth(tokens *utils.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 從請求頭中獲取 Authorization 字段
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := tokens.ParseToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// Claims 取出 MemberAuth 驗證過的 token 內容
func Claims(c *gin.Context) (*utils.MemberClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*utils.MemberClaims)
	return claims, ok
}
