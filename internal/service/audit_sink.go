package service

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/internal/repository"
)

// Actor 发起台账变更的一方
type Actor struct {
	Handle    string
	Role      string
	RequestID string
}

// AuditSink 审计写入
// tx 必须是台账事务中的聚合，保证审计与班次变更同时提交或同时回滚
type AuditSink interface {
	Record(ctx context.Context, tx *repository.Repository, action string, actor Actor, before, after *model.ShiftRecord) error
}

type auditSink struct {
	logger *zap.Logger
}

// NewAuditSink 创建 AuditSink 实例
func NewAuditSink(logger *zap.Logger) AuditSink {
	return &auditSink{logger: logger}
}

// shiftProjection 审计中记录的班次投影
type shiftProjection struct {
	State             string     `json:"state"`
	ShiftDate         string     `json:"shift_date"`
	ShiftNumber       int        `json:"shift_number"`
	CheckInAt         *time.Time `json:"check_in_at,omitempty"`
	CheckOutAt        *time.Time `json:"check_out_at,omitempty"`
	Breaks            int        `json:"breaks"`
	BreakMinutes      int        `json:"break_minutes"`
	IsLate            bool       `json:"is_late"`
	LateMinutes       int        `json:"late_minutes"`
	IsEarlyOut        bool       `json:"is_early_out"`
	EarlyOutMinutes   int        `json:"early_out_minutes"`
	ActualWorkMinutes int        `json:"actual_work_minutes"`
	OvertimeMinutes   int        `json:"overtime_minutes"`
	ManualEntry       bool       `json:"manual_entry"`
	Edits             int        `json:"edits,omitempty"`
	Version           int        `json:"version"`
}

func projectShift(r *model.ShiftRecord) shiftProjection {
	view := r.Effective()
	return shiftProjection{
		State:             view.CurrentState,
		ShiftDate:         view.ShiftDate.Format(dateLayout),
		ShiftNumber:       view.ShiftNumber,
		CheckInAt:         view.CheckIn.At,
		CheckOutAt:        view.CheckOut.At,
		Breaks:            len(view.Breaks),
		BreakMinutes:      view.BreakMinutes,
		IsLate:            view.IsLate,
		LateMinutes:       view.LateMinutes,
		IsEarlyOut:        view.IsEarlyOut,
		EarlyOutMinutes:   view.EarlyOutMinutes,
		ActualWorkMinutes: view.ActualWorkMinutes,
		OvertimeMinutes:   view.OvertimeMinutes,
		ManualEntry:       view.ManualEntry,
		Edits:             len(r.Edits),
		Version:           view.Version,
	}
}

func (s *auditSink) Record(ctx context.Context, tx *repository.Repository, action string, actor Actor, before, after *model.ShiftRecord) error {
	afterJSON, err := json.Marshal(projectShift(after))
	if err != nil {
		return err
	}

	entry := &model.AuditEntry{
		EntityType: model.AuditEntityShiftRecord,
		EntityID:   after.ShiftRecordID,
		PersonID:   after.PersonID,
		Action:     action,
		ActorID:    actor.Handle,
		RequestID:  actor.RequestID,
		After:      string(afterJSON),
	}
	if before != nil {
		b, err := json.Marshal(projectShift(before))
		if err != nil {
			return err
		}
		bs := string(b)
		entry.Before = &bs
	}

	if err := tx.Audit.Append(ctx, entry); err != nil {
		s.logger.Error("写入审计日志失败",
			zap.String("action", action),
			zap.String("shift_record_id", after.ShiftRecordID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
