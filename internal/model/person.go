package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 人员状态
const (
	PersonStatusActive   = "active"
	PersonStatusInactive = "inactive"
)

// 人员来源
const (
	PersonSourceDirectory = "directory"
	PersonSourceManual    = "manual"
)

// Person 人员表，对应 persons
// 由 IdentityResolver 维护，台账只读
type Person struct {
	PersonID     string   `gorm:"type:uuid;primaryKey"                       json:"person_id"`
	Handle       string   `gorm:"type:varchar(128);not null;uniqueIndex"     json:"handle"`
	Email        string   `gorm:"type:varchar(255);index"                    json:"email,omitempty"`
	Name         string   `gorm:"type:varchar(100);not null"                 json:"name"`
	Status       string   `gorm:"type:varchar(20);not null;default:'active'" json:"status"` // active | inactive
	OrgID        string   `gorm:"type:varchar(64);not null;index"            json:"org_id"`
	DepartmentID string   `gorm:"type:varchar(64)"                           json:"department_id,omitempty"`
	WorkDays     IntArray `gorm:"not null"                                   json:"work_days"` // ISO 星期 1=周一 … 7=周日
	WorkStart    string   `gorm:"type:varchar(5);not null"                   json:"work_start"`
	WorkEnd      string   `gorm:"type:varchar(5);not null"                   json:"work_end"`
	Timezone     string   `gorm:"type:varchar(64);not null"                  json:"timezone"`
	Source       string   `gorm:"type:varchar(20);not null"                  json:"source"`
	BaseModel
}

// TableName 指定表名
func (Person) TableName() string { return "persons" }

// BeforeCreate 生成主键
func (p *Person) BeforeCreate(*gorm.DB) error {
	if p.PersonID == "" {
		p.PersonID = uuid.NewString()
	}
	return nil
}

// IsActive 是否可以打卡
func (p *Person) IsActive() bool {
	return p.Status == PersonStatusActive
}

// Location 解析人员时区；无效时回退到 UTC
func (p *Person) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WorksOn 给定日期是否为该人员的工作日
func (p *Person) WorksOn(day time.Weekday) bool {
	iso := int(day)
	if iso == 0 {
		iso = 7
	}
	return p.WorkDays.Contains(iso)
}

// PersonAlias 人员别名表，对应 person_aliases
// 目录中出现新标识但邮箱与已有人员相同时，新标识作为别名挂到已有人员
type PersonAlias struct {
	AliasID   string    `gorm:"type:uuid;primaryKey"                   json:"alias_id"`
	Handle    string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"handle"`
	PersonID  string    `gorm:"type:uuid;not null;index"               json:"person_id"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"     json:"created_at"`
}

func (PersonAlias) TableName() string { return "person_aliases" }

func (a *PersonAlias) BeforeCreate(*gorm.DB) error {
	if a.AliasID == "" {
		a.AliasID = uuid.NewString()
	}
	return nil
}
