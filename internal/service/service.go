package service

import (
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/cache"
	"github.com/LorillaJm/es6-sub000/internal/directory"
	"github.com/LorillaJm/es6-sub000/internal/repository"
	"github.com/LorillaJm/es6-sub000/pkg/keylock"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Identity     IdentityService
	Ledger       LedgerService
	Mirror       MirrorService
	Gamification GamificationService
	Export       ExportService
}

// Dependencies 外部依赖；Directory、PersonCache、Notifier 可为 nil
type Dependencies struct {
	Directory   directory.Client
	PersonCache *cache.PersonCache
	MirrorStore MirrorStore
	Locks       *keylock.KeyLock
	Notifier    Notifier
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	deps Dependencies,
	logger *zap.Logger,
	opts ...LedgerOption,
) *Service {
	if deps.Locks == nil {
		deps.Locks = keylock.New()
	}
	identity := NewIdentityService(repo, deps.Directory, deps.PersonCache, cfg.Ledger.DefaultSchedule, logger)
	return &Service{
		Identity:     identity,
		Ledger:       NewLedgerService(cfg.Ledger, repo, identity, NewAuditSink(logger), deps.Locks, deps.Notifier, logger, opts...),
		Mirror:       NewMirrorService(cfg.Mirror, repo, deps.MirrorStore, logger),
		Gamification: NewGamificationService(cfg.Gamification, repo, logger),
		Export:       NewExportService(repo, identity, cfg.Ledger.MaxHistoryDays, logger),
	}
}
