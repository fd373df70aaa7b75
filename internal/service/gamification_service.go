package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/internal/repository"
)

// 积分原因
const (
	PointsReasonOnTime = "check_in_on_time"
	PointsReasonLate   = "check_in_late"
)

// GamificationService 连续打卡与积分
// 只处理已提交的签到事件；失败由分发器记录，不影响台账
type GamificationService interface {
	Apply(ctx context.Context, evt *model.ShiftEvent) error
	GetReward(ctx context.Context, personID string) (*model.PersonReward, error)
}

type gamificationService struct {
	cfg    config.GamificationConfig
	repo   *repository.Repository
	logger *zap.Logger
}

// NewGamificationService 创建 GamificationService 实例
func NewGamificationService(cfg config.GamificationConfig, repo *repository.Repository, logger *zap.Logger) GamificationService {
	return &gamificationService{cfg: cfg, repo: repo, logger: logger}
}

func (s *gamificationService) Apply(ctx context.Context, evt *model.ShiftEvent) error {
	if evt.Type != model.ShiftEventCheckedIn {
		return nil
	}
	day, err := time.ParseInLocation(dateLayout, evt.ShiftDate, time.UTC)
	if err != nil {
		return fmt.Errorf("%w: 无效的班次日期 %q", ErrPropagation, evt.ShiftDate)
	}

	if err := s.updateStreak(ctx, evt.PersonID, day); err != nil {
		s.logger.Error("更新连续打卡失败", zap.String("person_id", evt.PersonID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPropagation, err)
	}

	// 同一天的后续班次不再计分
	if evt.ShiftNumber != 1 {
		return nil
	}
	delta, reason := s.cfg.BasePoints, PointsReasonOnTime
	if evt.IsLate {
		delta, reason = s.cfg.LatePoints, PointsReasonLate
	}
	if delta == 0 {
		return nil
	}
	applied, err := s.repo.Reward.ApplyPoints(ctx, evt.PersonID, evt.EventID, delta, reason)
	if err != nil {
		s.logger.Error("积分入账失败",
			zap.String("person_id", evt.PersonID),
			zap.String("event_id", evt.EventID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrPropagation, err)
	}
	if !applied {
		s.logger.Debug("积分已入账，跳过重复事件", zap.String("event_id", evt.EventID))
	}
	return nil
}

func (s *gamificationService) updateStreak(ctx context.Context, personID string, day time.Time) error {
	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		reward, err := tx.Reward.LockOrCreate(ctx, personID)
		if err != nil {
			return err
		}
		if !advanceStreak(reward, day) {
			return nil
		}
		return tx.Reward.SaveStreak(ctx, reward)
	})
}

// advanceStreak 同一天不变；相邻一天 +1；中断则重置为 1；更早的日期忽略
// 返回是否有变化
func advanceStreak(r *model.PersonReward, day time.Time) bool {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if r.LastCheckInDate == nil {
		r.CurrentStreak = 1
	} else {
		last := r.LastCheckInDate.UTC()
		last = time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
		switch diff := int(day.Sub(last).Hours() / 24); {
		case diff <= 0:
			return false
		case diff == 1:
			r.CurrentStreak++
		default:
			r.CurrentStreak = 1
		}
	}
	if r.CurrentStreak > r.LongestStreak {
		r.LongestStreak = r.CurrentStreak
	}
	r.LastCheckInDate = &day
	return true
}

func (s *gamificationService) GetReward(ctx context.Context, personID string) (*model.PersonReward, error) {
	reward, err := s.repo.Reward.Get(ctx, personID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.PersonReward{PersonID: personID}, nil
		}
		return nil, err
	}
	return reward, nil
}
