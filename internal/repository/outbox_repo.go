package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/LorillaJm/es6-sub000/internal/model"
)

// OutboxRepository 事务发件箱数据访问接口
type OutboxRepository interface {
	// Enqueue 必须与业务写入处于同一事务
	Enqueue(ctx context.Context, event *model.OutboxEvent) error
	// FetchPending 按提交序号升序取出到期的待投递事件
	FetchPending(ctx context.Context, now time.Time, limit int) ([]model.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id uint64, at time.Time) error
	// MarkFailed 记录失败并安排下次重试；达到上限后置为 failed
	MarkFailed(ctx context.Context, id uint64, lastErr string, nextAttempt time.Time, maxAttempts int) error
	RequeueFailed(ctx context.Context, now time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type outboxRepo struct {
	db *gorm.DB
}

func NewOutboxRepo(db *gorm.DB) OutboxRepository {
	return &outboxRepo{db: db}
}

func (r *outboxRepo) Enqueue(ctx context.Context, event *model.OutboxEvent) error {
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *outboxRepo) FetchPending(ctx context.Context, now time.Time, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", model.OutboxStatusPending, now).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *outboxRepo) MarkDispatched(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Updates(map[string]interface{}{
			"status":        model.OutboxStatusDispatched,
			"dispatched_at": at,
			"last_error":    "",
		}).Error
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id uint64, lastErr string, nextAttempt time.Time, maxAttempts int) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Updates(map[string]interface{}{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      truncate(lastErr, 1000),
			"next_attempt_at": nextAttempt,
			"status": gorm.Expr("CASE WHEN attempts + 1 >= ? THEN ? ELSE ? END",
				maxAttempts, model.OutboxStatusFailed, model.OutboxStatusPending),
		}).Error
}

func (r *outboxRepo) RequeueFailed(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("status = ?", model.OutboxStatusFailed).
		Updates(map[string]interface{}{
			"status":          model.OutboxStatusPending,
			"attempts":        0,
			"next_attempt_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *outboxRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
