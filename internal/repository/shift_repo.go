package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LorillaJm/es6-sub000/internal/model"
	pkgerrors "github.com/LorillaJm/es6-sub000/pkg/errors"
)

// ShiftRepository 班次记录数据访问接口
type ShiftRepository interface {
	Create(ctx context.Context, record *model.ShiftRecord) error
	GetByID(ctx context.Context, id string) (*model.ShiftRecord, error)
	// LockByID 使用 SELECT ... FOR UPDATE 锁定班次行（更正时使用）
	LockByID(ctx context.Context, id string) (*model.ShiftRecord, error)
	// GetActiveByPerson 返回该人员最近创建的未签退记录（跨日期）
	GetActiveByPerson(ctx context.Context, personID string) (*model.ShiftRecord, error)
	// GetLatestByPerson 返回该人员最新的一条记录（不论状态）
	GetLatestByPerson(ctx context.Context, personID string) (*model.ShiftRecord, error)
	CountByPersonAndDate(ctx context.Context, personID string, date time.Time) (int64, error)
	// Update 乐观锁更新，版本不一致返回 pkgerrors.ErrOptimisticLock
	Update(ctx context.Context, record *model.ShiftRecord) error
	CreateBreak(ctx context.Context, b *model.ShiftBreak) error
	UpdateBreak(ctx context.Context, b *model.ShiftBreak) error
	CreateEdit(ctx context.Context, e *model.ShiftEdit) error
	ListByPersonAndRange(ctx context.Context, personID string, from, to time.Time, offset, limit int) ([]model.ShiftRecord, int64, error)
	ListByOrgAndDate(ctx context.Context, orgID string, date time.Time) ([]model.ShiftRecord, error)
}

// ── Shift Repository 实现 ──

type shiftRepo struct {
	db *gorm.DB
}

func NewShiftRepo(db *gorm.DB) ShiftRepository {
	return &shiftRepo{db: db}
}

func (r *shiftRepo) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Breaks", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Preload("Edits", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") })
}

func (r *shiftRepo) Create(ctx context.Context, record *model.ShiftRecord) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(record).Error
}

func (r *shiftRepo) GetByID(ctx context.Context, id string) (*model.ShiftRecord, error) {
	var record model.ShiftRecord
	err := r.withDetails(r.db.WithContext(ctx)).
		Where("shift_record_id = ?", id).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *shiftRepo) LockByID(ctx context.Context, id string) (*model.ShiftRecord, error) {
	var record model.ShiftRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shift_record_id = ?", id).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	// 关联在锁定后单独加载，FOR UPDATE 不作用于预加载查询
	if err := r.db.WithContext(ctx).Where("shift_record_id = ?", id).Order("seq ASC").Find(&record.Breaks).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("shift_record_id = ?", id).Order("seq ASC").Find(&record.Edits).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *shiftRepo) GetActiveByPerson(ctx context.Context, personID string) (*model.ShiftRecord, error) {
	var record model.ShiftRecord
	err := r.withDetails(r.db.WithContext(ctx)).
		Where("person_id = ? AND current_state IN ?", personID, model.OpenShiftStates).
		Order("created_at DESC").
		Order("shift_date DESC").
		Order("shift_number DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *shiftRepo) GetLatestByPerson(ctx context.Context, personID string) (*model.ShiftRecord, error) {
	var record model.ShiftRecord
	err := r.db.WithContext(ctx).
		Where("person_id = ?", personID).
		Order("shift_date DESC").
		Order("shift_number DESC").
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *shiftRepo) CountByPersonAndDate(ctx context.Context, personID string, date time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ShiftRecord{}).
		Where("person_id = ? AND shift_date = ?", personID, date).
		Count(&count).Error
	return count, err
}

func (r *shiftRepo) Update(ctx context.Context, record *model.ShiftRecord) error {
	oldVersion := record.Version
	// 以表名更新：JSON 列已在此处序列化，不再经过字段序列化器
	result := r.db.WithContext(ctx).
		Table(model.ShiftRecord{}.TableName()).
		Where("shift_record_id = ? AND version = ?", record.ShiftRecordID, oldVersion).
		Updates(map[string]interface{}{
			"current_state":          record.CurrentState,
			"check_out_at":           record.CheckOut.At,
			"check_out_location":     mustJSON(record.CheckOut.Location),
			"check_out_device_id":    record.CheckOut.DeviceID,
			"check_out_method":       record.CheckOut.Method,
			"check_out_verification": nullableJSON(record.CheckOut.Verification),
			"scheduled_end_at":       record.ScheduledEndAt,
			"is_early_out":           record.IsEarlyOut,
			"early_out_minutes":      record.EarlyOutMinutes,
			"break_minutes":          record.BreakMinutes,
			"actual_work_minutes":    record.ActualWorkMinutes,
			"overtime_minutes":       record.OvertimeMinutes,
			"manual_entry":           record.ManualEntry,
			"notes":                  record.Notes,
			"updated_at":             time.Now().UTC(),
			"version":                oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	record.Version = oldVersion + 1
	return nil
}

func (r *shiftRepo) CreateBreak(ctx context.Context, b *model.ShiftBreak) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *shiftRepo) UpdateBreak(ctx context.Context, b *model.ShiftBreak) error {
	return r.db.WithContext(ctx).
		Model(&model.ShiftBreak{}).
		Where("break_id = ?", b.BreakID).
		Updates(map[string]interface{}{
			"end_at":           b.EndAt,
			"duration_minutes": b.DurationMinutes,
		}).Error
}

func (r *shiftRepo) CreateEdit(ctx context.Context, e *model.ShiftEdit) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *shiftRepo) ListByPersonAndRange(ctx context.Context, personID string, from, to time.Time, offset, limit int) ([]model.ShiftRecord, int64, error) {
	var (
		records []model.ShiftRecord
		total   int64
	)
	query := r.db.WithContext(ctx).
		Model(&model.ShiftRecord{}).
		Where("person_id = ? AND shift_date >= ? AND shift_date <= ?", personID, from, to)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := r.withDetails(query).Order("shift_date ASC").Order("shift_number ASC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	err := q.Find(&records).Error
	return records, total, err
}

func (r *shiftRepo) ListByOrgAndDate(ctx context.Context, orgID string, date time.Time) ([]model.ShiftRecord, error) {
	var records []model.ShiftRecord
	err := r.db.WithContext(ctx).
		Preload("Edits", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("org_id = ? AND shift_date = ?", orgID, date).
		Order("person_id ASC").Order("shift_number ASC").
		Find(&records).Error
	return records, err
}
