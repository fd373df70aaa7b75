package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LorillaJm/es6-sub000/pkg/metrics"
)

// Metrics HTTP 指标中间件；route 使用路由模板，避免路径参数导致标签基数膨胀
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
