package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 发件箱状态
const (
	OutboxStatusPending    = "pending"
	OutboxStatusDispatched = "dispatched"
	OutboxStatusFailed     = "failed"
)

// TopicShiftEvents 班次事件主题
const TopicShiftEvents = "attendance.shift"

// 班次事件类型
const (
	ShiftEventCheckedIn    = "shift.checked_in"
	ShiftEventBreakStarted = "shift.break_started"
	ShiftEventBreakEnded   = "shift.break_ended"
	ShiftEventCheckedOut   = "shift.checked_out"
	ShiftEventCorrected    = "shift.corrected"
)

// OutboxEvent 事务发件箱表，对应 outbox_events
// ID 为提交序号，单调递增；镜像写入以其作为版本
type OutboxEvent struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement"                    json:"id"`
	EventID       string     `gorm:"type:uuid;not null;uniqueIndex"              json:"event_id"`
	Topic         string     `gorm:"type:varchar(100);not null"                  json:"topic"`
	AggregateID   string     `gorm:"type:uuid;not null;index"                    json:"aggregate_id"`
	Payload       string     `gorm:"type:jsonb;not null"                         json:"payload"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_outbox_status_next" json:"status"`
	Attempts      int        `gorm:"not null;default:0"                          json:"attempts"`
	NextAttemptAt time.Time  `gorm:"not null;index:idx_outbox_status_next"       json:"next_attempt_at"`
	LastError     string     `gorm:"type:text"                                   json:"last_error,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"          json:"created_at"`
	DispatchedAt  *time.Time `json:"dispatched_at,omitempty"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	return nil
}

// ShiftEvent 班次事件载荷（写入 OutboxEvent.Payload）
// 只携带投影所需的字段，消费者需要更多数据时回读主库
type ShiftEvent struct {
	Type          string     `json:"type"`
	EventID       string     `json:"event_id"`
	Seq           uint64     `json:"seq"` // 由中继在投递时填入 OutboxEvent.ID
	PersonID      string     `json:"person_id"`
	OrgID         string     `json:"org_id"`
	ShiftRecordID string     `json:"shift_record_id"`
	ShiftDate     string     `json:"shift_date"` // YYYY-MM-DD
	ShiftNumber   int        `json:"shift_number"`
	State         string     `json:"state"`
	CheckInAt     *time.Time `json:"check_in_at,omitempty"`
	CheckOutAt    *time.Time `json:"check_out_at,omitempty"`
	IsLate        bool       `json:"is_late"`
	LateMinutes   int        `json:"late_minutes"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
