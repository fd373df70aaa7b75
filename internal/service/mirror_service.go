package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/internal/repository"
	"github.com/LorillaJm/es6-sub000/pkg/breaker"
	"github.com/LorillaJm/es6-sub000/pkg/metrics"
	pkgredis "github.com/LorillaJm/es6-sub000/pkg/redis"
)

// ── 镜像模块业务错误 ──

var (
	// ErrPropagation 已提交的事件未能写入下游；只记录日志，不返回给台账调用方
	ErrPropagation      = errors.New("镜像同步失败")
	ErrLiveStatusAbsent = errors.New("实时镜像中没有该人员的状态")
)

// MirrorStore 实时镜像存储；*pkgredis.Client 即为生产实现
type MirrorStore interface {
	SetVersionedHash(ctx context.Context, key string, seq uint64, fields map[string]string, ttl time.Duration) (bool, error)
	GetHash(ctx context.Context, key string) (map[string]string, error)
}

// MirrorService 一致性镜像：只消费已提交事件，主库永远是权威数据
type MirrorService interface {
	// Project 把一条已提交的班次事件投影到镜像
	Project(ctx context.Context, evt *model.ShiftEvent) error
	GetStatus(ctx context.Context, personID string) (*model.StatusProjection, error)
	// GetAggregate 镜像缺失时直接从主库计算（不回写）
	GetAggregate(ctx context.Context, orgID, date string) (*model.AggregateCounters, error)
}

type mirrorService struct {
	cfg     config.MirrorConfig
	repo    *repository.Repository
	store   MirrorStore
	breaker *breaker.Breaker
	logger  *zap.Logger
}

// NewMirrorService 创建 MirrorService 实例
func NewMirrorService(cfg config.MirrorConfig, repo *repository.Repository, store MirrorStore, logger *zap.Logger) MirrorService {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "attendance"
	}
	if store == nil {
		store = offlineStore{}
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &mirrorService{
		cfg:   cfg,
		repo:  repo,
		store: store,
		breaker: breaker.New(breaker.Config{
			Name:             "mirror",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          timeout,
			FailureThreshold: cfg.BreakerFailureThreshold,
		}, logger),
		logger: logger,
	}
}

// ── 键 ──

func (s *mirrorService) statusKey(personID string) string {
	return fmt.Sprintf("%s:status:%s", s.cfg.KeyPrefix, personID)
}

func (s *mirrorService) aggregateKey(orgID, date string) string {
	return fmt.Sprintf("%s:agg:%s:%s", s.cfg.KeyPrefix, orgID, date)
}

// ═══════════════════════════════════════════════════════════
// Project 投影已提交事件
// ═══════════════════════════════════════════════════════════
//
// 两个写入都以事件序号为版本：重放结果一致，旧事件不会覆盖新状态。
// 聚合计数每次从主库重新计算，不做增量累加。

func (s *mirrorService) Project(ctx context.Context, evt *model.ShiftEvent) error {
	if err := s.writeStatus(ctx, evt); err != nil {
		return err
	}
	return s.writeAggregate(ctx, evt)
}

func (s *mirrorService) writeStatus(ctx context.Context, evt *model.ShiftEvent) error {
	if evt.Type == model.ShiftEventCorrected {
		current, err := s.isLatestShift(ctx, evt)
		if err != nil {
			metrics.MirrorWrites.WithLabelValues("status", metrics.ResultError).Inc()
			return fmt.Errorf("%w: status: %v", ErrPropagation, err)
		}
		if !current {
			// 更正的是历史班次，实时状态仍以最新班次为准
			metrics.MirrorWrites.WithLabelValues("status", metrics.ResultStale).Inc()
			s.logger.Debug("更正的不是最新班次，跳过实时状态",
				zap.String("person_id", evt.PersonID),
				zap.String("shift_record_id", evt.ShiftRecordID),
				zap.Uint64("seq", evt.Seq),
			)
			return nil
		}
	}

	fields := map[string]string{
		"person_id":       evt.PersonID,
		"org_id":          evt.OrgID,
		"state":           evt.State,
		"shift_record_id": evt.ShiftRecordID,
		"shift_date":      evt.ShiftDate,
		"shift_number":    strconv.Itoa(evt.ShiftNumber),
		"is_late":         strconv.FormatBool(evt.IsLate),
	}
	if evt.CheckInAt != nil {
		fields["check_in_at"] = evt.CheckInAt.UTC().Format(time.RFC3339Nano)
	}
	if evt.CheckOutAt != nil {
		fields["check_out_at"] = evt.CheckOutAt.UTC().Format(time.RFC3339Nano)
	}
	return s.write(ctx, "status", s.statusKey(evt.PersonID), evt, fields, s.cfg.StatusTTL)
}

// isLatestShift 事件对应的班次是否仍是该人员在主库中的最新班次
func (s *mirrorService) isLatestShift(ctx context.Context, evt *model.ShiftEvent) (bool, error) {
	latest, err := s.repo.Shift.GetLatestByPerson(ctx, evt.PersonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		s.logger.Error("查询最新班次失败", zap.String("person_id", evt.PersonID), zap.Error(err))
		return false, err
	}
	return latest.ShiftRecordID == evt.ShiftRecordID, nil
}

func (s *mirrorService) writeAggregate(ctx context.Context, evt *model.ShiftEvent) error {
	counters, err := s.computeAggregate(ctx, evt.OrgID, evt.ShiftDate)
	if err != nil {
		s.logger.Error("计算组织考勤计数失败",
			zap.String("org_id", evt.OrgID),
			zap.String("date", evt.ShiftDate),
			zap.Error(err),
		)
		metrics.MirrorWrites.WithLabelValues("aggregate", metrics.ResultError).Inc()
		return fmt.Errorf("%w: %v", ErrPropagation, err)
	}

	fields := map[string]string{
		"org_id":      counters.OrgID,
		"date":        counters.Date,
		"headcount":   strconv.Itoa(counters.Headcount),
		"present":     strconv.Itoa(counters.Present),
		"absent":      strconv.Itoa(counters.Absent),
		"late":        strconv.Itoa(counters.Late),
		"checked_in":  strconv.Itoa(counters.CheckedIn),
		"on_break":    strconv.Itoa(counters.OnBreak),
		"checked_out": strconv.Itoa(counters.CheckedOut),
	}
	// 计数随日期失效，保留两倍状态 TTL
	return s.write(ctx, "aggregate", s.aggregateKey(evt.OrgID, evt.ShiftDate), evt, fields, 2*s.cfg.StatusTTL)
}

func (s *mirrorService) write(ctx context.Context, target, key string, evt *model.ShiftEvent, fields map[string]string, ttl time.Duration) error {
	var applied bool
	err := s.breaker.Do(func() error {
		var err error
		applied, err = s.store.SetVersionedHash(ctx, key, evt.Seq, fields, ttl)
		return err
	})
	if err != nil {
		metrics.MirrorWrites.WithLabelValues(target, metrics.ResultError).Inc()
		s.logger.Warn("镜像写入失败",
			zap.String("target", target),
			zap.String("key", key),
			zap.String("event_id", evt.EventID),
			zap.Uint64("seq", evt.Seq),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %v", ErrPropagation, target, err)
	}
	if !applied {
		metrics.MirrorWrites.WithLabelValues(target, metrics.ResultStale).Inc()
		s.logger.Debug("镜像已有更新的状态，忽略旧事件",
			zap.String("key", key),
			zap.Uint64("seq", evt.Seq),
		)
		return nil
	}
	metrics.MirrorWrites.WithLabelValues(target, metrics.ResultOK).Inc()
	return nil
}

// computeAggregate 以每人当天最后一个班次的状态计数；迟到以当天第一个班次为准
func (s *mirrorService) computeAggregate(ctx context.Context, orgID, date string) (*model.AggregateCounters, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("无效的班次日期 %q: %w", date, err)
	}
	headcount, err := s.repo.Person.CountActiveByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.Shift.ListByOrgAndDate(ctx, orgID, day)
	if err != nil {
		return nil, err
	}

	first := make(map[string]model.ShiftRecord)
	last := make(map[string]model.ShiftRecord)
	for _, r := range records {
		if f, ok := first[r.PersonID]; !ok || r.ShiftNumber < f.ShiftNumber {
			first[r.PersonID] = r
		}
		if l, ok := last[r.PersonID]; !ok || r.ShiftNumber > l.ShiftNumber {
			last[r.PersonID] = r
		}
	}

	c := &model.AggregateCounters{
		OrgID:     orgID,
		Date:      date,
		Headcount: int(headcount),
		Present:   len(last),
	}
	for pid, r := range last {
		switch r.CurrentState {
		case model.ShiftStateCheckedIn:
			c.CheckedIn++
		case model.ShiftStateOnBreak:
			c.OnBreak++
		case model.ShiftStateCheckedOut:
			c.CheckedOut++
		}
		f := first[pid]
		if f.Effective().IsLate {
			c.Late++
		}
	}
	if c.Absent = c.Headcount - c.Present; c.Absent < 0 {
		c.Absent = 0
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════
// 读取
// ═══════════════════════════════════════════════════════════

func (s *mirrorService) GetStatus(ctx context.Context, personID string) (*model.StatusProjection, error) {
	h, err := s.store.GetHash(ctx, s.statusKey(personID))
	if err != nil {
		if errors.Is(err, pkgredis.ErrNotFound) {
			return nil, ErrLiveStatusAbsent
		}
		s.logger.Warn("读取实时状态失败", zap.String("person_id", personID), zap.Error(err))
		return nil, err
	}

	p := &model.StatusProjection{
		PersonID:      h["person_id"],
		OrgID:         h["org_id"],
		State:         h["state"],
		ShiftRecordID: h["shift_record_id"],
		ShiftDate:     h["shift_date"],
	}
	p.ShiftNumber, _ = strconv.Atoi(h["shift_number"])
	p.IsLate, _ = strconv.ParseBool(h["is_late"])
	p.Seq, _ = strconv.ParseUint(h[pkgredis.SeqField], 10, 64)
	p.CheckInAt = parseTimeField(h["check_in_at"])
	p.CheckOutAt = parseTimeField(h["check_out_at"])
	return p, nil
}

func (s *mirrorService) GetAggregate(ctx context.Context, orgID, date string) (*model.AggregateCounters, error) {
	if _, err := time.ParseInLocation(dateLayout, date, time.UTC); err != nil {
		return nil, ErrInvalidDateRange
	}

	h, err := s.store.GetHash(ctx, s.aggregateKey(orgID, date))
	if err != nil {
		if !errors.Is(err, pkgredis.ErrNotFound) {
			s.logger.Warn("读取组织考勤计数失败，回退到主库", zap.String("org_id", orgID), zap.Error(err))
		}
		return s.computeAggregate(ctx, orgID, date)
	}

	c := &model.AggregateCounters{OrgID: orgID, Date: date}
	c.Headcount, _ = strconv.Atoi(h["headcount"])
	c.Present, _ = strconv.Atoi(h["present"])
	c.Absent, _ = strconv.Atoi(h["absent"])
	c.Late, _ = strconv.Atoi(h["late"])
	c.CheckedIn, _ = strconv.Atoi(h["checked_in"])
	c.OnBreak, _ = strconv.Atoi(h["on_break"])
	c.CheckedOut, _ = strconv.Atoi(h["checked_out"])
	c.Seq, _ = strconv.ParseUint(h[pkgredis.SeqField], 10, 64)
	return c, nil
}

// offlineStore Redis 不可用时的占位：写入失败（事件留在发件箱重试），读取视为缺失
type offlineStore struct{}

var errMirrorOffline = errors.New("实时镜像存储未连接")

func (offlineStore) SetVersionedHash(context.Context, string, uint64, map[string]string, time.Duration) (bool, error) {
	return false, errMirrorOffline
}

func (offlineStore) GetHash(context.Context, string) (map[string]string, error) {
	return nil, pkgredis.ErrNotFound
}

func parseTimeField(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}
