package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/api/handler"
	"github.com/LorillaJm/es6-sub000/internal/api/middleware"
	"github.com/LorillaJm/es6-sub000/pkg/jwt"
	"github.com/LorillaJm/es6-sub000/pkg/redis"
)

// maxBodyBytes 打卡与更正请求体上限
const maxBodyBytes = 64 << 10

// Pinger 就绪检查项
type Pinger func(ctx context.Context) error

// Setup 初始化并返回 Gin 路由引擎
// rdb 可为 nil：此时跳过令牌黑名单与限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, ready map[string]Pinger, logger *zap.Logger) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	if err := handler.RegisterValidators(); err != nil {
		return nil, err
	}

	var (
		blacklist middleware.TokenBlacklist
		limiter   middleware.RateLimiter
	)
	if rdb != nil {
		blacklist, limiter = rdb, rdb
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 / 指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", readiness(ready))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, blacklist, logger))

	writeLimit := middleware.RateLimit(limiter, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window, logger)

	attendance := v1.Group("/attendance")
	{
		// 打卡（本人或主管代签，Handler 层鉴权）
		attendance.POST("/check-in", writeLimit, h.Attendance.CheckIn)
		attendance.POST("/check-out", writeLimit, h.Attendance.CheckOut)
		attendance.POST("/breaks/start", writeLimit, h.Attendance.StartBreak)
		attendance.POST("/breaks/end", writeLimit, h.Attendance.EndBreak)

		attendance.GET("/active", h.Attendance.GetActive)
		attendance.GET("/history", h.Attendance.GetHistory)
		attendance.GET("/history/export", h.Attendance.ExportHistory)

		attendance.POST("/records/:id/corrections", middleware.RoleAuth(jwt.RoleAdmin), writeLimit, h.Attendance.CorrectShift)

		// 实时镜像（可能短暂滞后于台账）
		supervised := attendance.Group("", middleware.RoleAuth(jwt.RoleSupervisor, jwt.RoleAdmin))
		{
			supervised.GET("/live/:person_id", h.Live.GetLiveStatus)
			supervised.GET("/orgs/:org_id/summary", h.Live.GetOrgSummary)
			supervised.GET("/rewards/:person_id", h.Live.GetReward)
		}
	}

	return r, nil
}

func readiness(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(gin.H, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		c.JSON(status, result)
	}
}
