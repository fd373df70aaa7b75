package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LorillaJm/es6-sub000/internal/model"
)

// RewardRepository 积分与连续打卡数据访问接口
type RewardRepository interface {
	Get(ctx context.Context, personID string) (*model.PersonReward, error)
	// LockOrCreate 锁定（不存在则先创建）人员积分行
	LockOrCreate(ctx context.Context, personID string) (*model.PersonReward, error)
	SaveStreak(ctx context.Context, reward *model.PersonReward) error
	// ApplyPoints 按事件幂等入账；同一 eventID 第二次调用返回 false
	ApplyPoints(ctx context.Context, personID, eventID string, delta int, reason string) (bool, error)
}

// errPointsApplied 并发重复入账时回滚事务（PostgreSQL 冲突后事务已不可提交）
var errPointsApplied = errors.New("积分已按该事件入账")

type rewardRepo struct {
	db *gorm.DB
}

func NewRewardRepo(db *gorm.DB) RewardRepository {
	return &rewardRepo{db: db}
}

func (r *rewardRepo) Get(ctx context.Context, personID string) (*model.PersonReward, error) {
	var reward model.PersonReward
	err := r.db.WithContext(ctx).Where("person_id = ?", personID).First(&reward).Error
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (r *rewardRepo) LockOrCreate(ctx context.Context, personID string) (*model.PersonReward, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.PersonReward{PersonID: personID}).Error; err != nil {
		return nil, err
	}

	var reward model.PersonReward
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("person_id = ?", personID).
		First(&reward).Error
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (r *rewardRepo) SaveStreak(ctx context.Context, reward *model.PersonReward) error {
	return r.db.WithContext(ctx).
		Model(&model.PersonReward{}).
		Where("person_id = ?", reward.PersonID).
		Updates(map[string]interface{}{
			"current_streak":     reward.CurrentStreak,
			"longest_streak":     reward.LongestStreak,
			"last_check_in_date": reward.LastCheckInDate,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *rewardRepo) ApplyPoints(ctx context.Context, personID, eventID string, delta int, reason string) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&model.PointsEntry{}).Where("event_id = ?", eventID).Count(&exists).Error; err != nil {
			return err
		}
		if exists > 0 {
			return nil
		}

		entry := model.PointsEntry{PersonID: personID, EventID: eventID, Delta: delta, Reason: reason}
		if err := tx.Create(&entry).Error; err != nil {
			if IsDuplicate(err) {
				return errPointsApplied
			}
			return err
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.PersonReward{PersonID: personID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.PersonReward{}).
			Where("person_id = ?", personID).
			Updates(map[string]interface{}{
				"total_points": gorm.Expr("total_points + ?", delta),
				"updated_at":   time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if errors.Is(err, errPointsApplied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return applied, nil
}
