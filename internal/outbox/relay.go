package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/internal/repository"
	"github.com/LorillaJm/es6-sub000/pkg/metrics"
)

// Deliverer 接收中继取出的事件；返回错误时事件在发件箱中重新排期
type Deliverer interface {
	Deliver(ctx context.Context, evt *model.ShiftEvent) error
}

// Relay 发件箱中继
//
// 按提交序号升序投递；同一批次内遇到失败不会跳过，后续事件仍继续投递，
// 由消费者依据 seq 拒绝过期写入保证最终状态正确。
type Relay struct {
	cfg       config.OutboxConfig
	repo      repository.OutboxRepository
	deliverer Deliverer
	logger    *zap.Logger
	kick      chan struct{}
	now       func() time.Time
}

// NewRelay 创建中继
func NewRelay(cfg config.OutboxConfig, repo repository.OutboxRepository, deliverer Deliverer, logger *zap.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &Relay{
		cfg:       cfg,
		repo:      repo,
		deliverer: deliverer,
		logger:    logger,
		kick:      make(chan struct{}, 1),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Notify 提交后唤醒中继；不阻塞
func (r *Relay) Notify() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Serve 实现 suture.Service：定时轮询，收到唤醒立即处理
func (r *Relay) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("发件箱中继启动",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.kick:
		}
		for {
			n, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Error("发件箱批次处理失败", zap.Error(err))
				break
			}
			// 批次满说明可能还有积压，继续取
			if n < r.cfg.BatchSize || ctx.Err() != nil {
				break
			}
		}
	}
}

// RunOnce 处理一批到期事件，返回本批取出的数量
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.repo.FetchPending(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("读取发件箱失败: %w", err)
	}
	metrics.OutboxPending.Set(float64(len(events)))

	for i := range events {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		r.relay(ctx, &events[i])
	}
	return len(events), nil
}

func (r *Relay) relay(ctx context.Context, row *model.OutboxEvent) {
	var evt model.ShiftEvent
	if err := json.Unmarshal([]byte(row.Payload), &evt); err != nil {
		// 载荷损坏无法重试，直接置为 failed
		r.logger.Error("发件箱事件载荷损坏", zap.Uint64("seq", row.ID), zap.Error(err))
		metrics.OutboxRelayed.WithLabelValues(metrics.ResultError).Inc()
		if markErr := r.repo.MarkFailed(ctx, row.ID, err.Error(), r.now(), 1); markErr != nil {
			r.logger.Error("标记发件箱事件失败", zap.Uint64("seq", row.ID), zap.Error(markErr))
		}
		return
	}
	evt.Seq = row.ID
	if evt.EventID == "" {
		evt.EventID = row.EventID
	}

	if err := r.deliverer.Deliver(ctx, &evt); err != nil {
		metrics.OutboxRelayed.WithLabelValues(metrics.ResultError).Inc()
		next := r.now().Add(r.backoff(row.Attempts))
		r.logger.Warn("发件箱事件投递失败，稍后重试",
			zap.Uint64("seq", row.ID),
			zap.String("type", evt.Type),
			zap.Int("attempts", row.Attempts+1),
			zap.Time("next_attempt_at", next),
			zap.Error(err),
		)
		if markErr := r.repo.MarkFailed(ctx, row.ID, err.Error(), next, r.cfg.MaxAttempts); markErr != nil {
			r.logger.Error("标记发件箱事件失败", zap.Uint64("seq", row.ID), zap.Error(markErr))
		}
		return
	}

	metrics.OutboxRelayed.WithLabelValues(metrics.ResultOK).Inc()
	if err := r.repo.MarkDispatched(ctx, row.ID, r.now()); err != nil {
		// 下次会重复投递，消费者幂等
		r.logger.Error("标记发件箱事件已投递失败", zap.Uint64("seq", row.ID), zap.Error(err))
	}
}

// backoff 指数退避，上限 64 倍基础间隔
func (r *Relay) backoff(attempts int) time.Duration {
	if attempts > 6 {
		attempts = 6
	}
	return r.cfg.RetryBackoff << attempts
}

// String 供监督树日志使用
func (r *Relay) String() string { return "outbox-relay" }
