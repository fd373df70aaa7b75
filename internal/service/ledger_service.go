package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/dto"
	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/internal/repository"
	"github.com/LorillaJm/es6-sub000/internal/timecalc"
	pkgerrors "github.com/LorillaJm/es6-sub000/pkg/errors"
	"github.com/LorillaJm/es6-sub000/pkg/jwt"
	"github.com/LorillaJm/es6-sub000/pkg/keylock"
	"github.com/LorillaJm/es6-sub000/pkg/metrics"
)

// ── 台账模块业务错误 ──

var (
	ErrDuplicateActiveShift    = errors.New("已有未签退的班次")
	ErrNoActiveShift           = errors.New("没有进行中的班次")
	ErrCorruptRecord           = errors.New("班次记录数据不完整")
	ErrInvalidTransition       = errors.New("当前状态不允许该操作")
	ErrTransaction             = errors.New("台账事务提交失败")
	ErrShiftBusy               = errors.New("该人员的打卡请求正在处理中，请稍后重试")
	ErrCheckOutNotAfterCheckIn = errors.New("签退时间必须晚于签到时间")
	ErrInvalidCaptureTime      = errors.New("打卡时间无效：仅人工补录可指定时间且不能晚于当前时间")
	ErrInvalidCaptureMethod    = errors.New("不支持的打卡方式")
	ErrInvalidLocation         = errors.New("打卡位置无效")
	ErrInvalidDateRange        = errors.New("查询日期范围无效")
	ErrShiftRecordNotFound     = errors.New("班次记录不存在")
	ErrShiftNotClosed          = errors.New("仅已签退的班次可以更正")
	ErrCorrectionForbidden     = errors.New("仅管理员可以更正班次")
)

// ledgerErrors 事务内返回、原样透出给调用方的业务错误
var ledgerErrors = []error{
	ErrDuplicateActiveShift, ErrNoActiveShift, ErrCorruptRecord, ErrInvalidTransition,
	ErrCheckOutNotAfterCheckIn, ErrInvalidCaptureTime, ErrShiftRecordNotFound,
	ErrShiftNotClosed, ErrPersonNotFound, ErrPersonInactive,
}

// 台账操作名（指标标签）
const (
	opCheckIn    = "check_in"
	opCheckOut   = "check_out"
	opBreakStart = "break_start"
	opBreakEnd   = "break_end"
	opCorrect    = "correct"
)

const dateLayout = "2006-01-02"

// Notifier 提交后唤醒发件箱中继；实现必须立即返回
type Notifier interface {
	Notify()
}

// LedgerService 考勤台账
type LedgerService interface {
	CheckIn(ctx context.Context, handle string, req *dto.CaptureRequest, actor Actor) (*dto.ShiftRecordResponse, error)
	CheckOut(ctx context.Context, handle string, req *dto.CaptureRequest, actor Actor) (*dto.ShiftRecordResponse, error)
	StartBreak(ctx context.Context, handle, breakType string, actor Actor) (*dto.ShiftRecordResponse, error)
	EndBreak(ctx context.Context, handle string, actor Actor) (*dto.ShiftRecordResponse, error)
	// GetActiveShift 无进行中的班次时返回 (nil, nil)
	GetActiveShift(ctx context.Context, handle string) (*dto.ShiftRecordResponse, error)
	GetHistory(ctx context.Context, handle string, req *dto.HistoryRequest) (*dto.HistoryResponse, error)
	// CorrectShift 以追加更正的方式修改已签退班次
	CorrectShift(ctx context.Context, recordID string, req *dto.CorrectionRequest, actor Actor) (*dto.ShiftRecordResponse, error)
}

// LedgerOption 台账可选项
type LedgerOption func(*ledgerService)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) LedgerOption {
	return func(s *ledgerService) { s.now = now }
}

type ledgerService struct {
	cfg      config.LedgerConfig
	repo     *repository.Repository
	identity IdentityService
	audit    AuditSink
	locks    *keylock.KeyLock
	notifier Notifier
	now      func() time.Time
	logger   *zap.Logger
}

// NewLedgerService 创建 LedgerService 实例；notifier 可为 nil
func NewLedgerService(
	cfg config.LedgerConfig,
	repo *repository.Repository,
	identity IdentityService,
	audit AuditSink,
	locks *keylock.KeyLock,
	notifier Notifier,
	logger *zap.Logger,
	opts ...LedgerOption,
) LedgerService {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 3 * time.Second
	}
	if cfg.MaxHistoryDays <= 0 {
		cfg.MaxHistoryDays = 366
	}
	s := &ledgerService{
		cfg:      cfg,
		repo:     repo,
		identity: identity,
		audit:    audit,
		locks:    locks,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ═══════════════════════════════════════════════════════════
// CheckIn：签到
// ═══════════════════════════════════════════════════════════
//
// 流程：
//  1. 解析人员（必要时从目录同步），停用人员拒绝
//  2. 获取人员级互斥（进程内），超时返回 ErrShiftBusy
//  3. 事务：锁人员行 → 检查开放班次 → 计算迟到 → 写班次 + 审计 + 发件箱
//  4. 提交后唤醒中继，不等待镜像写入

func (s *ledgerService) CheckIn(ctx context.Context, handle string, req *dto.CaptureRequest, actor Actor) (resp *dto.ShiftRecordResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLedger(opCheckIn, start, err) }()

	if req == nil {
		req = &dto.CaptureRequest{}
	}
	person, err := s.identity.Resolve(ctx, handle)
	if err != nil {
		return nil, err
	}
	if !person.IsActive() {
		return nil, ErrPersonInactive
	}
	capture, err := s.buildCapture(req)
	if err != nil {
		return nil, err
	}

	var record *model.ShiftRecord
	err = s.withPersonLock(ctx, person.PersonID, func() error {
		return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			if _, err := tx.Person.LockByID(ctx, person.PersonID); err != nil {
				return err
			}
			if _, err := tx.Shift.GetActiveByPerson(ctx, person.PersonID); err == nil {
				return ErrDuplicateActiveShift
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			at := *capture.At
			loc := person.Location()
			shiftDate := timecalc.CalendarDate(at, loc)
			count, err := tx.Shift.CountByPersonAndDate(ctx, person.PersonID, shiftDate)
			if err != nil {
				return err
			}

			record = &model.ShiftRecord{
				PersonID:     person.PersonID,
				OrgID:        person.OrgID,
				ShiftDate:    shiftDate,
				ShiftNumber:  int(count) + 1,
				CurrentState: model.ShiftStateCheckedIn,
				CheckIn:      capture,
				ManualEntry:  req.At != nil,
				Notes:        req.Notes,
				Breaks:       []model.ShiftBreak{},
			}
			s.applyLateness(record, person, at)

			if err := tx.Shift.Create(ctx, record); err != nil {
				return err
			}
			if err := s.audit.Record(ctx, tx, model.AuditActionCheckIn, actor, nil, record); err != nil {
				return err
			}
			return s.enqueue(ctx, tx, model.ShiftEventCheckedIn, record)
		})
	})
	if err != nil {
		return nil, s.mapTxError(opCheckIn, person.PersonID, err)
	}

	s.logger.Info("签到成功",
		zap.String("person_id", person.PersonID),
		zap.String("shift_record_id", record.ShiftRecordID),
		zap.Int("shift_number", record.ShiftNumber),
		zap.Bool("is_late", record.IsLate),
	)
	s.notify()

	out := dto.NewShiftRecordResponse(record)
	return &out, nil
}

// applyLateness 非工作日无计划上班时间，不计迟到
func (s *ledgerService) applyLateness(record *model.ShiftRecord, person *model.Person, at time.Time) {
	loc := person.Location()
	local := at.In(loc)
	if !person.WorksOn(local.Weekday()) {
		return
	}
	scheduledStart, err := timecalc.ClockOn(local, person.WorkStart, loc)
	if err != nil {
		s.logger.Warn("人员排班上班时间无效，按无排班处理",
			zap.String("person_id", person.PersonID),
			zap.String("work_start", person.WorkStart),
		)
		return
	}
	startUTC := scheduledStart.UTC()
	record.ScheduledStartAt = &startUTC
	record.IsLate = timecalc.IsLate(at, scheduledStart, s.cfg.GraceMinutes)
	record.LateMinutes = timecalc.LateMinutes(at, scheduledStart, s.cfg.GraceMinutes)
}

// ═══════════════════════════════════════════════════════════
// CheckOut：签退
// ═══════════════════════════════════════════════════════════

func (s *ledgerService) CheckOut(ctx context.Context, handle string, req *dto.CaptureRequest, actor Actor) (resp *dto.ShiftRecordResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLedger(opCheckOut, start, err) }()

	if req == nil {
		req = &dto.CaptureRequest{}
	}
	person, err := s.identity.Lookup(ctx, handle)
	if err != nil {
		return nil, err
	}
	capture, err := s.buildCapture(req)
	if err != nil {
		return nil, err
	}

	var record *model.ShiftRecord
	err = s.mutateActive(ctx, person, func(tx *repository.Repository, rec *model.ShiftRecord) (string, string, error) {
		if rec.CheckIn.At == nil || rec.CheckIn.At.IsZero() {
			return "", "", ErrCorruptRecord
		}
		in, out := *rec.CheckIn.At, *capture.At
		if !out.After(in) {
			return "", "", ErrCheckOutNotAfterCheckIn
		}

		if b := rec.OpenBreak(); b != nil {
			end := out
			b.EndAt = &end
			b.DurationMinutes = timecalc.BreakMinutes(b.StartAt, out)
			if err := tx.Shift.UpdateBreak(ctx, b); err != nil {
				return "", "", err
			}
		}

		rec.CheckOut = capture
		rec.CurrentState = model.ShiftStateCheckedOut
		rec.BreakMinutes = rec.SumBreakMinutes()
		m := s.closingMetrics(person, rec.ShiftDate, in, out, rec.BreakMinutes)
		m.apply(rec)
		if req.At != nil {
			rec.ManualEntry = true
		}
		if req.Notes != "" {
			rec.Notes = req.Notes
		}
		record = rec
		return model.AuditActionCheckOut, model.ShiftEventCheckedOut, nil
	}, actor)
	if err != nil {
		return nil, s.mapTxError(opCheckOut, person.PersonID, err)
	}

	s.logger.Info("签退成功",
		zap.String("person_id", person.PersonID),
		zap.String("shift_record_id", record.ShiftRecordID),
		zap.Int("actual_work_minutes", record.ActualWorkMinutes),
		zap.Int("overtime_minutes", record.OvertimeMinutes),
	)
	s.notify()

	out := dto.NewShiftRecordResponse(record)
	return &out, nil
}

// shiftMetrics 签退时计算的指标
type shiftMetrics struct {
	scheduledEnd *time.Time
	workMinutes  int
	earlyOut     int
	overtime     int
}

func (m shiftMetrics) apply(r *model.ShiftRecord) {
	r.ScheduledEndAt = m.scheduledEnd
	r.ActualWorkMinutes = m.workMinutes
	r.IsEarlyOut = m.earlyOut > 0
	r.EarlyOutMinutes = m.earlyOut
	r.OvertimeMinutes = m.overtime
}

// closingMetrics 非工作日全部工时计为加班，不计早退
func (s *ledgerService) closingMetrics(person *model.Person, shiftDate, in, out time.Time, breakMinutes int) shiftMetrics {
	m := shiftMetrics{workMinutes: timecalc.WorkMinutes(in, out, breakMinutes)}
	if !person.WorksOn(shiftDate.Weekday()) {
		m.overtime = m.workMinutes
		return m
	}

	loc := person.Location()
	end, err := timecalc.ScheduledEnd(shiftDate, in, out, person.WorkEnd, loc)
	if err != nil {
		s.logger.Warn("人员排班下班时间无效，按无排班处理",
			zap.String("person_id", person.PersonID),
			zap.String("work_end", person.WorkEnd),
		)
		return m
	}
	endUTC := end.UTC()
	m.scheduledEnd = &endUTC
	m.earlyOut, m.overtime = timecalc.EarlyOutOrOvertime(out, end)
	return m
}

// ═══════════════════════════════════════════════════════════
// StartBreak / EndBreak：休息
// ═══════════════════════════════════════════════════════════

func (s *ledgerService) StartBreak(ctx context.Context, handle, breakType string, actor Actor) (resp *dto.ShiftRecordResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLedger(opBreakStart, start, err) }()

	person, err := s.identity.Lookup(ctx, handle)
	if err != nil {
		return nil, err
	}
	breakType = strings.ToLower(strings.TrimSpace(breakType))
	if breakType == "" {
		breakType = "rest"
	}

	var record *model.ShiftRecord
	err = s.mutateActive(ctx, person, func(tx *repository.Repository, rec *model.ShiftRecord) (string, string, error) {
		if rec.CurrentState != model.ShiftStateCheckedIn {
			return "", "", ErrInvalidTransition
		}
		now := s.now().UTC()
		if rec.CheckIn.At != nil && now.Before(*rec.CheckIn.At) {
			now = *rec.CheckIn.At
		}
		b := model.ShiftBreak{
			ShiftRecordID: rec.ShiftRecordID,
			Seq:           len(rec.Breaks) + 1,
			BreakType:     breakType,
			StartAt:       now,
		}
		if err := tx.Shift.CreateBreak(ctx, &b); err != nil {
			return "", "", err
		}
		rec.Breaks = append(rec.Breaks, b)
		rec.CurrentState = model.ShiftStateOnBreak
		record = rec
		return model.AuditActionBreakStart, model.ShiftEventBreakStarted, nil
	}, actor)
	if err != nil {
		return nil, s.mapTxError(opBreakStart, person.PersonID, err)
	}

	s.notify()
	out := dto.NewShiftRecordResponse(record)
	return &out, nil
}

func (s *ledgerService) EndBreak(ctx context.Context, handle string, actor Actor) (resp *dto.ShiftRecordResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLedger(opBreakEnd, start, err) }()

	person, err := s.identity.Lookup(ctx, handle)
	if err != nil {
		return nil, err
	}

	var record *model.ShiftRecord
	err = s.mutateActive(ctx, person, func(tx *repository.Repository, rec *model.ShiftRecord) (string, string, error) {
		if rec.CurrentState != model.ShiftStateOnBreak {
			return "", "", ErrInvalidTransition
		}
		b := rec.OpenBreak()
		if b == nil {
			return "", "", ErrCorruptRecord
		}
		end := s.now().UTC()
		if end.Before(b.StartAt) {
			end = b.StartAt
		}
		b.EndAt = &end
		b.DurationMinutes = timecalc.BreakMinutes(b.StartAt, end)
		if err := tx.Shift.UpdateBreak(ctx, b); err != nil {
			return "", "", err
		}
		rec.BreakMinutes = rec.SumBreakMinutes()
		rec.CurrentState = model.ShiftStateCheckedIn
		record = rec
		return model.AuditActionBreakEnd, model.ShiftEventBreakEnded, nil
	}, actor)
	if err != nil {
		return nil, s.mapTxError(opBreakEnd, person.PersonID, err)
	}

	s.notify()
	out := dto.NewShiftRecordResponse(record)
	return &out, nil
}

// mutateActive 在人员锁与事务内修改进行中的班次
// fn 修改记录并返回审计动作与事件类型；之后统一做乐观锁更新、审计与入队
func (s *ledgerService) mutateActive(
	ctx context.Context,
	person *model.Person,
	fn func(tx *repository.Repository, rec *model.ShiftRecord) (action, eventType string, err error),
	actor Actor,
) error {
	return s.withPersonLock(ctx, person.PersonID, func() error {
		return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			if _, err := tx.Person.LockByID(ctx, person.PersonID); err != nil {
				return err
			}
			rec, err := tx.Shift.GetActiveByPerson(ctx, person.PersonID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNoActiveShift
				}
				return err
			}
			before := cloneShift(rec)

			action, eventType, err := fn(tx, rec)
			if err != nil {
				return err
			}
			if err := tx.Shift.Update(ctx, rec); err != nil {
				return err
			}
			if err := s.audit.Record(ctx, tx, action, actor, before, rec); err != nil {
				return err
			}
			return s.enqueue(ctx, tx, eventType, rec)
		})
	})
}

// ═══════════════════════════════════════════════════════════
// 查询
// ═══════════════════════════════════════════════════════════

func (s *ledgerService) GetActiveShift(ctx context.Context, handle string) (*dto.ShiftRecordResponse, error) {
	person, err := s.identity.Lookup(ctx, handle)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Shift.GetActiveByPerson(ctx, person.PersonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.logger.Error("查询进行中班次失败", zap.String("person_id", person.PersonID), zap.Error(err))
		return nil, err
	}
	out := dto.NewShiftRecordResponse(rec)
	return &out, nil
}

func (s *ledgerService) GetHistory(ctx context.Context, handle string, req *dto.HistoryRequest) (*dto.HistoryResponse, error) {
	from, to, err := parseDateRange(req.From, req.To, s.cfg.MaxHistoryDays)
	if err != nil {
		return nil, err
	}
	person, err := s.identity.Lookup(ctx, handle)
	if err != nil {
		return nil, err
	}

	records, total, err := s.repo.Shift.ListByPersonAndRange(ctx, person.PersonID, from, to, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询班次历史失败", zap.String("person_id", person.PersonID), zap.Error(err))
		return nil, err
	}

	resp := &dto.HistoryResponse{
		PersonID: person.PersonID,
		From:     req.From,
		To:       req.To,
		Records:  make([]dto.ShiftRecordResponse, 0, len(records)),
		Total:    total,
	}
	for i := range records {
		resp.Records = append(resp.Records, dto.NewShiftRecordResponse(&records[i]))
	}
	return resp, nil
}

// parseDateRange 闭区间 [from, to]，跨度不超过 maxDays 天
func parseDateRange(fromStr, toStr string, maxDays int) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(dateLayout, fromStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from 格式应为 YYYY-MM-DD", ErrInvalidDateRange)
	}
	to, err := time.ParseInLocation(dateLayout, toStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to 格式应为 YYYY-MM-DD", ErrInvalidDateRange)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to 不能早于 from", ErrInvalidDateRange)
	}
	if int(to.Sub(from).Hours()/24)+1 > maxDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: 跨度不能超过 %d 天", ErrInvalidDateRange, maxDays)
	}
	return from, to, nil
}

// ═══════════════════════════════════════════════════════════
// CorrectShift：更正已签退班次
// ═══════════════════════════════════════════════════════════
//
// 原记录保持不变，追加一条 ShiftEdit；读取时以最新更正为准

func (s *ledgerService) CorrectShift(ctx context.Context, recordID string, req *dto.CorrectionRequest, actor Actor) (resp *dto.ShiftRecordResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLedger(opCorrect, start, err) }()

	if actor.Role != jwt.RoleAdmin {
		return nil, ErrCorrectionForbidden
	}
	in, out := req.CheckInAt.UTC(), req.CheckOutAt.UTC()
	if !out.After(in) {
		return nil, ErrCheckOutNotAfterCheckIn
	}
	if out.After(s.now().UTC()) {
		return nil, ErrInvalidCaptureTime
	}

	existing, err := s.repo.Shift.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftRecordNotFound
		}
		s.logger.Error("查询班次失败", zap.String("shift_record_id", recordID), zap.Error(err))
		return nil, err
	}

	var record *model.ShiftRecord
	err = s.withPersonLock(ctx, existing.PersonID, func() error {
		return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			rec, err := tx.Shift.LockByID(ctx, recordID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrShiftRecordNotFound
				}
				return err
			}
			if rec.CurrentState != model.ShiftStateCheckedOut {
				return ErrShiftNotClosed
			}
			person, err := tx.Person.GetByID(ctx, rec.PersonID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrPersonNotFound
				}
				return err
			}
			before := cloneShift(rec)

			breakMinutes := rec.Effective().BreakMinutes
			if req.BreakMinutes != nil {
				breakMinutes = *req.BreakMinutes
			}

			// 更正后的签到可能落在另一天，工作日与下班时间按新日期计算
			lateness := &model.ShiftRecord{}
			s.applyLateness(lateness, person, in)
			correctedDate := timecalc.CalendarDate(in, person.Location())
			m := s.closingMetrics(person, correctedDate, in, out, breakMinutes)

			edit := model.ShiftEdit{
				ShiftRecordID:     rec.ShiftRecordID,
				Seq:               len(rec.Edits) + 1,
				EditorID:          actor.Handle,
				Reason:            req.Reason,
				CheckInAt:         in,
				CheckOutAt:        out,
				BreakMinutes:      breakMinutes,
				IsLate:            lateness.IsLate,
				LateMinutes:       lateness.LateMinutes,
				IsEarlyOut:        m.earlyOut > 0,
				EarlyOutMinutes:   m.earlyOut,
				ActualWorkMinutes: m.workMinutes,
				OvertimeMinutes:   m.overtime,
				Notes:             req.Notes,
			}
			if err := tx.Shift.CreateEdit(ctx, &edit); err != nil {
				return err
			}
			rec.Edits = append(rec.Edits, edit)

			if err := s.audit.Record(ctx, tx, model.AuditActionCorrect, actor, before, rec); err != nil {
				return err
			}
			record = rec
			return s.enqueue(ctx, tx, model.ShiftEventCorrected, rec)
		})
	})
	if err != nil {
		return nil, s.mapTxError(opCorrect, existing.PersonID, err)
	}

	s.logger.Info("班次已更正",
		zap.String("shift_record_id", record.ShiftRecordID),
		zap.String("editor", actor.Handle),
		zap.Int("edit_seq", len(record.Edits)),
	)
	s.notify()

	out2 := dto.NewShiftRecordResponse(record)
	return &out2, nil
}

// ── 辅助函数 ──

// buildCapture 规范化打卡采集信息
// 指定时间仅允许人工补录，且不能晚于当前时间
func (s *ledgerService) buildCapture(req *dto.CaptureRequest) (model.Capture, error) {
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = model.CaptureMethodScan
	}
	if !model.ValidCaptureMethod(method) {
		return model.Capture{}, ErrInvalidCaptureMethod
	}
	if !req.Location.Valid() {
		return model.Capture{}, ErrInvalidLocation
	}

	now := s.now().UTC()
	at := now
	if req.At != nil {
		if method != model.CaptureMethodManual || req.At.IsZero() || req.At.After(now) {
			return model.Capture{}, ErrInvalidCaptureTime
		}
		at = req.At.UTC()
	}

	return model.Capture{
		At:           &at,
		Location:     req.Location,
		DeviceID:     strings.TrimSpace(req.DeviceID),
		Method:       method,
		Verification: req.Verification,
	}, nil
}

// withPersonLock 同一人员的写操作在进程内串行；等待超时返回 ErrShiftBusy
func (s *ledgerService) withPersonLock(ctx context.Context, personID string, fn func() error) error {
	release, err := s.locks.Acquire(ctx, personID, s.cfg.LockTimeout)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrLockTimeout) {
			return ErrShiftBusy
		}
		return err
	}
	defer release()
	return fn()
}

// enqueue 写入发件箱事件，与台账变更同一事务
func (s *ledgerService) enqueue(ctx context.Context, tx *repository.Repository, eventType string, rec *model.ShiftRecord) error {
	view := rec.Effective()
	evt := model.ShiftEvent{
		Type:          eventType,
		EventID:       uuid.NewString(),
		PersonID:      rec.PersonID,
		OrgID:         rec.OrgID,
		ShiftRecordID: rec.ShiftRecordID,
		ShiftDate:     rec.ShiftDate.Format(dateLayout),
		ShiftNumber:   rec.ShiftNumber,
		State:         rec.CurrentState,
		CheckInAt:     view.CheckIn.At,
		CheckOutAt:    view.CheckOut.At,
		IsLate:        view.IsLate,
		LateMinutes:   view.LateMinutes,
		OccurredAt:    s.now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return tx.Outbox.Enqueue(ctx, &model.OutboxEvent{
		EventID:     evt.EventID,
		Topic:       model.TopicShiftEvents,
		AggregateID: rec.PersonID,
		Payload:     string(payload),
	})
}

// mapTxError 业务错误原样返回；锁超时为可重试；其余包装为 ErrTransaction
func (s *ledgerService) mapTxError(op, personID string, err error) error {
	for _, target := range ledgerErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	switch {
	case errors.Is(err, ErrShiftBusy), repository.IsLockTimeout(err), errors.Is(err, pkgerrors.ErrOptimisticLock):
		s.logger.Warn("台账写入冲突", zap.String("op", op), zap.String("person_id", personID), zap.Error(err))
		return ErrShiftBusy
	case op == opCheckIn && repository.IsDuplicate(err):
		// 唯一索引兜底：其他实例已为该人员创建开放班次
		return ErrDuplicateActiveShift
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	s.logger.Error("台账事务失败", zap.String("op", op), zap.String("person_id", personID), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrTransaction, err)
}

func (s *ledgerService) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

// cloneShift 复制记录及其休息段，作为审计中的变更前快照
func cloneShift(r *model.ShiftRecord) *model.ShiftRecord {
	c := *r
	c.Breaks = append([]model.ShiftBreak(nil), r.Breaks...)
	c.Edits = append([]model.ShiftEdit(nil), r.Edits...)
	return &c
}
