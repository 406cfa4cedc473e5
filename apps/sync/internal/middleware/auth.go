package middleware

import (
	"SocialSync/consts"
	"SocialSync/pkg/result"
	"SocialSync/pkg/util"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ginPrincipalIDKey    = "principal_id"
	ginPrincipalEmailKey = "principal_email"
	ginDeviceIDKey       = "device_id"
)

// JWTAuthMiddleware 校验 Authorization: Bearer <token>，通过后把主体写入 gin.Context
func JWTAuthMiddleware(signer *util.TokenSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 客户端凭证问题属于正常业务流程，不记日志
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			result.Abort(c, http.StatusUnauthorized, consts.CodeUnauthorized)
			return
		}
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || strings.TrimSpace(token) == "" {
			result.Abort(c, http.StatusUnauthorized, consts.CodeUnauthorized)
			return
		}

		claims, err := signer.Parse(strings.TrimSpace(token))
		if err != nil {
			result.Abort(c, http.StatusUnauthorized, consts.CodeInvalidToken)
			return
		}

		c.Set(ginPrincipalIDKey, claims.PrincipalID)
		c.Set(ginPrincipalEmailKey, claims.Email)
		c.Set(ginDeviceIDKey, claims.DeviceID)
		c.Next()
	}
}

// GetPrincipalEmail 当前请求主体的邮箱
func GetPrincipalEmail(c *gin.Context) (string, bool) {
	email := c.GetString(ginPrincipalEmailKey)
	return email, email != ""
}

// GetPrincipalID 当前请求主体的 ID
func GetPrincipalID(c *gin.Context) (string, bool) {
	id := c.GetString(ginPrincipalIDKey)
	return id, id != ""
}
