package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 审计动作
const (
	AuditActionCheckIn    = "check_in"
	AuditActionCheckOut   = "check_out"
	AuditActionBreakStart = "break_start"
	AuditActionBreakEnd   = "break_end"
	AuditActionCorrect    = "correct"
)

// AuditEntityShiftRecord 审计实体类型
const AuditEntityShiftRecord = "shift_record"

// AuditEntry 审计日志表，对应 audit_entries（纯追加，不可修改）
// 与对应的 ShiftRecord 变更在同一事务中写入
type AuditEntry struct {
	AuditID    string    `gorm:"type:uuid;primaryKey"                    json:"audit_id"`
	EntityType string    `gorm:"type:varchar(50);not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   string    `gorm:"type:uuid;not null;index:idx_audit_entity"        json:"entity_id"`
	PersonID   string    `gorm:"type:uuid;not null;index"                json:"person_id"`
	Action     string    `gorm:"type:varchar(30);not null"               json:"action"`
	ActorID    string    `gorm:"type:varchar(128);not null"              json:"actor_id"`
	RequestID  string    `gorm:"type:varchar(64)"                        json:"request_id,omitempty"`
	Before     *string   `gorm:"type:jsonb"                              json:"before,omitempty"` // 创建类动作为空
	After      string    `gorm:"type:jsonb;not null"                     json:"after"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"      json:"created_at"`
}

func (AuditEntry) TableName() string { return "audit_entries" }

func (a *AuditEntry) BeforeCreate(*gorm.DB) error {
	if a.AuditID == "" {
		a.AuditID = uuid.NewString()
	}
	return nil
}

// BeforeUpdate 审计记录不可修改
func (a *AuditEntry) BeforeUpdate(*gorm.DB) error {
	return gorm.ErrInvalidData
}
