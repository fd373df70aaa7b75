package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/api/handler"
	"github.com/LorillaJm/es6-sub000/internal/api/router"
	"github.com/LorillaJm/es6-sub000/internal/cache"
	"github.com/LorillaJm/es6-sub000/internal/directory"
	"github.com/LorillaJm/es6-sub000/internal/outbox"
	"github.com/LorillaJm/es6-sub000/internal/repository"
	"github.com/LorillaJm/es6-sub000/internal/service"
	"github.com/LorillaJm/es6-sub000/pkg/database"
	"github.com/LorillaJm/es6-sub000/pkg/jwt"
	"github.com/LorillaJm/es6-sub000/pkg/redis"
	"github.com/LorillaJm/es6-sub000/pkg/supervisor"
)

type serveOptions struct {
	skipMigrate bool
}

// NewServeCommand 启动 HTTP 服务、发件箱中继与分发器
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动考勤服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipMigrate, "skip-migrate", false, "启动时不执行数据库迁移")

	return cmd
}

func runServe(ctx context.Context, rootOpts *RootOptions, opts *serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. 配置与日志
	cfg, logger, err := bootstrap(rootOpts)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("directory_mode", cfg.Directory.Mode),
	)

	// 2. 数据库与迁移
	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	defer sqlDB.Close()

	if !opts.skipMigrate {
		if err := database.RunMigrations(sqlDB, logger); err != nil {
			return err
		}
	}

	// 3. Redis（可选：失败时降级运行，镜像事件留在发件箱等待重试）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，实时镜像、Token 黑名单与限流将不可用", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// 4. 人员目录与缓存
	dir, reload, err := newDirectory(cfg, logger)
	if err != nil {
		return err
	}
	personCache, err := cache.NewPersonCache(cfg.Cache.PersonMaxEntries, cfg.Cache.PersonTTL)
	if err != nil {
		return fmt.Errorf("初始化人员缓存失败: %w", err)
	}
	defer personCache.Close()

	// 5. 发件箱：分发器 → 中继
	repo := repository.NewRepository(db, repository.WithLockTimeout(cfg.Ledger.LockTimeout))
	dispatcher, err := outbox.NewDispatcher(cfg.Outbox, logger)
	if err != nil {
		return err
	}
	defer dispatcher.Close()
	relay := outbox.NewRelay(cfg.Outbox, repo.Outbox, dispatcher, logger)

	// 6. 依赖注入: Repository → Service → Handler
	deps := service.Dependencies{
		Directory:   dir,
		PersonCache: personCache,
		Notifier:    relay,
	}
	if rdb != nil {
		deps.MirrorStore = rdb
	}
	svc := service.NewService(cfg, repo, deps, logger)

	dispatcher.AddConsumer("mirror", svc.Mirror.Project)
	dispatcher.AddConsumer("gamification", svc.Gamification.Apply)

	// 7. 路由
	ready := map[string]router.Pinger{"db": sqlDB.PingContext}
	if rdb != nil {
		ready["redis"] = rdb.Ping
	}
	engine, err := router.Setup(cfg, handler.NewHandler(svc), jwt.NewManager(&cfg.Auth), rdb, ready, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 8. 监督树
	tree := supervisor.New("attendance", supervisor.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout}, logger)
	tree.AddWorker(dispatcher)
	tree.AddWorker(relay)
	tree.AddAPI(supervisor.NewHTTPService(srv, cfg.Server.ShutdownTimeout, logger))

	// 9. 信号：SIGINT/SIGTERM 优雅关闭，SIGHUP 重新加载目录快照
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if reload != nil {
		go watchReload(ctx, reload, logger)
	}

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("服务异常退出", zap.Error(err))
		return err
	}

	logger.Info("服务器已关闭")
	return nil
}

// newDirectory 按配置创建人员目录；file 模式同时返回重新加载函数
// 快照文件不存在时降级为无目录（仅能解析本地已有人员）
func newDirectory(cfg *config.Config, logger *zap.Logger) (directory.Client, func() error, error) {
	switch cfg.Directory.Mode {
	case "http":
		return directory.NewHTTPClient(&cfg.Directory, logger), nil, nil
	default:
		fd, err := directory.NewFileDirectory(cfg.Directory.SnapshotFile, logger)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn("目录快照文件不存在，仅使用本地人员", zap.String("path", cfg.Directory.SnapshotFile))
				return nil, nil, nil
			}
			return nil, nil, err
		}
		return fd, fd.Reload, nil
	}
}

func watchReload(ctx context.Context, reload func() error, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reload(); err != nil {
				logger.Error("重新加载目录快照失败", zap.Error(err))
				continue
			}
			logger.Info("目录快照已重新加载")
		}
	}
}
