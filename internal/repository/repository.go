package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	pkgerrors "github.com/LorillaJm/es6-sub000/pkg/errors"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db          *gorm.DB
	lockTimeout time.Duration

	Person PersonRepository
	Shift  ShiftRepository
	Audit  AuditRepository
	Outbox OutboxRepository
	Reward RewardRepository
}

// Option 聚合配置项
type Option func(*Repository)

// WithLockTimeout 事务内等待行锁的最长时间（仅 PostgreSQL 生效）
func WithLockTimeout(d time.Duration) Option {
	return func(r *Repository) { r.lockTimeout = d }
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB, opts ...Option) *Repository {
	r := &Repository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	r.bind(db)
	return r
}

func (r *Repository) bind(db *gorm.DB) {
	r.Person = NewPersonRepo(db)
	r.Shift = NewShiftRepo(db)
	r.Audit = NewAuditRepo(db)
	r.Outbox = NewOutboxRepo(db)
	r.Reward = NewRewardRepo(db)
}

// DB 底层连接
func (r *Repository) DB() *gorm.DB { return r.db }

// WithTx 返回绑定到事务连接的新聚合
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	nr := &Repository{db: tx, lockTimeout: r.lockTimeout}
	nr.bind(tx)
	return nr
}

// Transaction 在一个数据库事务中执行 fn，fn 返回错误时整体回滚
// 未绑定数据库的聚合（单元测试中手工组装）直接在当前聚合上执行
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.lockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(r.WithTx(tx))
	})
}

// IsLockTimeout 是否为等待锁超时（PostgreSQL 55P03 或进程内互斥锁超时）
func IsLockTimeout(err error) bool {
	if errors.Is(err, pkgerrors.ErrLockTimeout) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

// IsDuplicate 是否为唯一约束冲突
func IsDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
