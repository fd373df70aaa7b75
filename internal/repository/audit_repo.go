package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/LorillaJm/es6-sub000/internal/model"
)

// AuditRepository 审计日志数据访问接口（仅追加）
type AuditRepository interface {
	Append(ctx context.Context, entry *model.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error)
	ListByPerson(ctx context.Context, personID string, offset, limit int) ([]model.AuditEntry, int64, error)
}

type auditRepo struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, entry *model.AuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *auditRepo) ListByPerson(ctx context.Context, personID string, offset, limit int) ([]model.AuditEntry, int64, error) {
	var entries []model.AuditEntry
	var total int64

	db := r.db.WithContext(ctx).Model(&model.AuditEntry{}).Where("person_id = ?", personID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
