package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"marketpay/internal/auth"
	"marketpay/internal/logger"
	"marketpay/internal/model"
	"marketpay/internal/service"
	"marketpay/pkg/response"
)

const (
	CurrentUserKey       = "current_user"
	RequestIDHeader      = "X-Request-ID"
	IdempotencyKeyHeader = "Idempotency-Key"
)

// UserResolver service.AccountService 实现
type UserResolver interface {
	ResolveUser(ctx context.Context, id *service.Identity) (*model.User, error)
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))

		// 处理请求
		c.Next()

		if query != "" {
			path = path + "?" + query
		}

		entry := log.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
		})
		if user, ok := c.Get(CurrentUserKey); ok {
			entry = entry.WithField("user_id", user.(*model.User).ID)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("HTTP")
		} else {
			entry.Info("HTTP")
		}
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("panic", err).WithField("path", c.Request.URL.Path).Error("PANIC")
				response.ServerError(c, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, Idempotency-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthRequiredMiddleware 校验 Bearer token，并把对应的本地用户写入上下文（CurrentUserKey）。
// 首次访问的身份会自动建档
func AuthRequiredMiddleware(jwtSecret []byte, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := checkAuthorization(c, jwtSecret)
		if err != nil {
			_ = c.Error(err).SetType(gin.ErrorTypePrivate)
			response.Unauthorized(c, "未登录或登录已过期")
			return
		}

		user, err := users.ResolveUser(c.Request.Context(), &service.Identity{
			Subject:  claims.Subject,
			Username: claims.Name,
			Email:    claims.Email,
		})
		if err != nil {
			_ = c.Error(err).SetType(gin.ErrorTypePrivate)
			response.ServerError(c, "加载用户失败")
			return
		}

		c.Set(CurrentUserKey, user)
		c.Next()
	}
}

var errTokenNotExist = errors.New("token 不存在")

func checkAuthorization(c *gin.Context, jwtSecret []byte) (*auth.Claims, error) {
	header := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if header == "" || token == "" || token == header {
		return nil, errTokenNotExist
	}
	return auth.ParseToken(token, jwtSecret)
}

// currentUser 只能在 AuthRequiredMiddleware 之后调用
func currentUser(c *gin.Context) *model.User {
	return c.MustGet(CurrentUserKey).(*model.User)
}
