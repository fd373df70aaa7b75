package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PersonReward 积分与连续打卡表，对应 person_rewards
type PersonReward struct {
	PersonID        string     `gorm:"type:uuid;primaryKey"               json:"person_id"`
	CurrentStreak   int        `gorm:"not null;default:0"                 json:"current_streak"`
	LongestStreak   int        `gorm:"not null;default:0"                 json:"longest_streak"`
	LastCheckInDate *time.Time `gorm:"type:date"                          json:"last_check_in_date,omitempty"`
	TotalPoints     int        `gorm:"not null;default:0"                 json:"total_points"`
	UpdatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PersonReward) TableName() string { return "person_rewards" }

// PointsEntry 积分流水表，对应 points_entries
// event_id 唯一，保证同一事件重复投递只记一次
type PointsEntry struct {
	EntryID   string    `gorm:"type:uuid;primaryKey"               json:"entry_id"`
	PersonID  string    `gorm:"type:uuid;not null;index"           json:"person_id"`
	EventID   string    `gorm:"type:uuid;not null;uniqueIndex"     json:"event_id"`
	Delta     int       `gorm:"not null"                           json:"delta"`
	Reason    string    `gorm:"type:varchar(50);not null"          json:"reason"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PointsEntry) TableName() string { return "points_entries" }

func (p *PointsEntry) BeforeCreate(*gorm.DB) error {
	if p.EntryID == "" {
		p.EntryID = uuid.NewString()
	}
	return nil
}
