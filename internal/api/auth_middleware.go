package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	currentUserContextKey = "current-user"
)

// RequestUser 存储请求上下文中的认证用户信息
type RequestUser struct {
	ID    string
	Email string
}

// IdentityMiddleware 解析 Bearer Token 并注入用户身份。
//
// 未携带 Token 的请求按游客放行（记录读取允许游客作用域），
// 携带了无效 Token 则直接 401，避免静默降级成游客。
func (h *HTTPHandler) IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "无效的授权头格式",
			})
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "缺少 Bearer Token",
			})
			return
		}

		claims, err := h.authManager.ParseToken(tokenString)
		if err != nil {
			logrus.WithError(err).Warn("failed to parse jwt token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeSessionExpired,
				Message: "Token 无效或已过期",
			})
			return
		}

		c.Set(currentUserContextKey, &RequestUser{
			ID:    claims.UserID,
			Email: claims.Email,
		})
		c.Next()
	}
}

// RequireUser 身份守卫中间件，积分与同步等操作必须登录。
func (h *HTTPHandler) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || strings.TrimSpace(user.ID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "需要登录",
			})
			return
		}
		c.Next()
	}
}

// CurrentUser 从上下文获取当前认证用户，游客请求返回 nil
func CurrentUser(c *gin.Context) *RequestUser {
	value, exists := c.Get(currentUserContextKey)
	if !exists {
		return nil
	}
	user, ok := value.(*RequestUser)
	if !ok {
		return nil
	}
	return user
}

// ownerScope 返回当前请求的记录作用域，游客为空串
func ownerScope(c *gin.Context) string {
	if user := CurrentUser(c); user != nil {
		return user.ID
	}
	return ""
}
