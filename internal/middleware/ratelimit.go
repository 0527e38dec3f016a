package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimiter 计数器存储 (redisstate.RedisStateRepository)
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error)
}

// RateLimit 返回一个 Gin 中间件，用于基于客户端 IP 地址进行速率限制。
// limiter: 计数器存储，必须提供。
// maxRequests: 在指定时间窗口内允许的最大请求数。
// window: 速率限制的时间窗口。
func RateLimit(limiter RateLimiter, maxRequests int, window time.Duration) gin.HandlerFunc {
	// 启动时检查依赖
	if limiter == nil {
		panic("RateLimiter cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 使用客户端 IP 作为限流键的一部分
		// 在反向代理后面时需配置 gin 的 TrustedProxies 才能拿到真实 IP
		key := "ratelimit:" + c.ClientIP()

		// 计数加一并判断是否超过窗口内的上限
		exceeded, err := limiter.CheckRateLimit(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			// 计数器不可用时放行
			logrus.WithError(err).Error("RateLimit: counter check failed, allowing request")
			c.Next()
			return
		}
		if exceeded {
			// 超限直接中止，不再进入后续处理
			abortJSON(c, http.StatusTooManyRequests, "Too many requests")
			return
		}
		c.Next() // 未超限，继续处理请求
	}
}
