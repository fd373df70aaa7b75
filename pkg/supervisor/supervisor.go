// Package supervisor 后台协程监督树：发件箱中继、分发器与 HTTP 服务统一启停、崩溃重启
package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

// Config 监督树配置
type Config struct {
	FailureThreshold float64       // 进入退避前允许的失败次数
	FailureDecay     float64       // 失败计数衰减（秒）
	FailureBackoff   time.Duration // 超过阈值后的等待时间
	ShutdownTimeout  time.Duration // 每个服务的停止等待时间
}

// Tree 两层监督树：workers（中继、分发器）与 api（HTTP）
// 分层隔离故障：分发器反复崩溃不会拖垮 HTTP 服务
type Tree struct {
	root    *suture.Supervisor
	workers *suture.Supervisor
	api     *suture.Supervisor
}

// New 创建监督树
func New(name string, cfg Config, logger *zap.Logger) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	spec := suture.Spec{
		EventHook:        eventHook(logger),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	child := spec
	child.EventHook = nil

	t := &Tree{
		root:    suture.New(name, spec),
		workers: suture.New("workers", child),
		api:     suture.New("api", child),
	}
	t.root.Add(t.workers)
	t.root.Add(t.api)
	return t
}

// AddWorker 注册后台服务
func (t *Tree) AddWorker(svc suture.Service) suture.ServiceToken {
	return t.workers.Add(svc)
}

// AddAPI 注册对外服务
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve 阻塞运行直到 ctx 取消
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground 后台运行，返回结束信号
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

func eventHook(logger *zap.Logger) suture.EventHook {
	return func(e suture.Event) {
		fields := make([]zap.Field, 0, 4)
		for k, v := range e.Map() {
			fields = append(fields, zap.Any(k, v))
		}
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			logger.Error(e.String(), fields...)
		case suture.EventTypeBackoff:
			logger.Warn(e.String(), fields...)
		default:
			logger.Info(e.String(), fields...)
		}
	}
}

// ── HTTP 服务 ──

// HTTPService 把 *http.Server 包装为受监督服务
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// NewHTTPService 创建 HTTP 受监督服务
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout, logger: logger}
}

// Serve 实现 suture.Service
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("HTTP 服务启动", zap.String("addr", h.server.Addr))
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			h.logger.Error("HTTP 服务异常退出", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		h.logger.Error("HTTP 服务关闭超时", zap.Error(err))
		return err
	}
	h.logger.Info("HTTP 服务已关闭")
	return ctx.Err()
}

// String 供监督树日志使用
func (h *HTTPService) String() string { return "http-server" }
