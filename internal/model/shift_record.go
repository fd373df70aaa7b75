package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 班次状态；NONE 以"无开放记录"表示，不落库
const (
	ShiftStateCheckedIn  = "CHECKED_IN"
	ShiftStateOnBreak    = "ON_BREAK"
	ShiftStateCheckedOut = "CHECKED_OUT"
)

// OpenShiftStates 仍占用人员的状态
var OpenShiftStates = []string{ShiftStateCheckedIn, ShiftStateOnBreak}

// ShiftRecord 班次记录表，对应 shift_records
// 签到时创建，签退后不可变；更正以 ShiftEdit 追加
type ShiftRecord struct {
	ShiftRecordID string    `gorm:"type:uuid;primaryKey"                          json:"shift_record_id"`
	PersonID      string    `gorm:"type:uuid;not null;index:idx_shift_person_date" json:"person_id"`
	OrgID         string    `gorm:"type:varchar(64);not null;index:idx_shift_org_date" json:"org_id"`
	ShiftDate     time.Time `gorm:"type:date;not null;index:idx_shift_person_date;index:idx_shift_org_date" json:"shift_date"`
	ShiftNumber   int       `gorm:"not null"                                      json:"shift_number"`
	CurrentState  string    `gorm:"type:varchar(20);not null"                     json:"current_state"` // CHECKED_IN | ON_BREAK | CHECKED_OUT

	CheckIn  Capture `gorm:"embedded;embeddedPrefix:check_in_"  json:"check_in"`
	CheckOut Capture `gorm:"embedded;embeddedPrefix:check_out_" json:"check_out"`

	ScheduledStartAt  *time.Time `json:"scheduled_start_at,omitempty"`
	ScheduledEndAt    *time.Time `json:"scheduled_end_at,omitempty"`
	IsLate            bool       `gorm:"not null;default:false" json:"is_late"`
	LateMinutes       int        `gorm:"not null;default:0"     json:"late_minutes"`
	IsEarlyOut        bool       `gorm:"not null;default:false" json:"is_early_out"`
	EarlyOutMinutes   int        `gorm:"not null;default:0"     json:"early_out_minutes"`
	BreakMinutes      int        `gorm:"not null;default:0"     json:"break_minutes"`
	ActualWorkMinutes int        `gorm:"not null;default:0"     json:"actual_work_minutes"`
	OvertimeMinutes   int        `gorm:"not null;default:0"     json:"overtime_minutes"`
	ManualEntry       bool       `gorm:"not null;default:false" json:"manual_entry"`
	Notes             string     `gorm:"type:varchar(500)"      json:"notes,omitempty"`
	VersionedModel

	// 关联
	Breaks []ShiftBreak `gorm:"foreignKey:ShiftRecordID" json:"breaks"`
	Edits  []ShiftEdit  `gorm:"foreignKey:ShiftRecordID" json:"edits,omitempty"`
}

func (ShiftRecord) TableName() string { return "shift_records" }

func (r *ShiftRecord) BeforeCreate(*gorm.DB) error {
	if r.ShiftRecordID == "" {
		r.ShiftRecordID = uuid.NewString()
	}
	return nil
}

// IsOpen 记录是否仍处于签到或休息中
func (r *ShiftRecord) IsOpen() bool {
	return r.CurrentState == ShiftStateCheckedIn || r.CurrentState == ShiftStateOnBreak
}

// OpenBreak 返回尚未结束的休息段
func (r *ShiftRecord) OpenBreak() *ShiftBreak {
	for i := len(r.Breaks) - 1; i >= 0; i-- {
		if r.Breaks[i].EndAt == nil {
			return &r.Breaks[i]
		}
	}
	return nil
}

// SumBreakMinutes 已结束休息段的分钟数之和
func (r *ShiftRecord) SumBreakMinutes() int {
	total := 0
	for _, b := range r.Breaks {
		if b.EndAt != nil {
			total += b.DurationMinutes
		}
	}
	return total
}

// Effective 叠加最新一次更正后的视图；原记录不被修改
func (r *ShiftRecord) Effective() ShiftRecord {
	view := *r
	if len(r.Edits) == 0 {
		return view
	}
	latest := r.Edits[0]
	for _, e := range r.Edits[1:] {
		if e.Seq > latest.Seq {
			latest = e
		}
	}

	inAt, outAt := latest.CheckInAt, latest.CheckOutAt
	view.CheckIn.At = &inAt
	view.CheckOut.At = &outAt
	view.BreakMinutes = latest.BreakMinutes
	view.IsLate = latest.IsLate
	view.LateMinutes = latest.LateMinutes
	view.IsEarlyOut = latest.IsEarlyOut
	view.EarlyOutMinutes = latest.EarlyOutMinutes
	view.ActualWorkMinutes = latest.ActualWorkMinutes
	view.OvertimeMinutes = latest.OvertimeMinutes
	if latest.Notes != "" {
		view.Notes = latest.Notes
	}
	return view
}

// ShiftBreak 休息段表，对应 shift_breaks
type ShiftBreak struct {
	BreakID         string     `gorm:"type:uuid;primaryKey"                             json:"break_id"`
	ShiftRecordID   string     `gorm:"type:uuid;not null;uniqueIndex:ux_break_seq"     json:"shift_record_id"`
	Seq             int        `gorm:"not null;uniqueIndex:ux_break_seq"               json:"seq"`
	BreakType       string     `gorm:"type:varchar(20);not null;default:'rest'"        json:"break_type"` // rest | meal | other
	StartAt         time.Time  `gorm:"not null"                                         json:"start_at"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	DurationMinutes int        `gorm:"not null;default:0"                               json:"duration_minutes"`
}

func (ShiftBreak) TableName() string { return "shift_breaks" }

func (b *ShiftBreak) BeforeCreate(*gorm.DB) error {
	if b.BreakID == "" {
		b.BreakID = uuid.NewString()
	}
	return nil
}

// ShiftEdit 班次更正表，对应 shift_edits（仅追加）
type ShiftEdit struct {
	EditID            string    `gorm:"type:uuid;primaryKey"                          json:"edit_id"`
	ShiftRecordID     string    `gorm:"type:uuid;not null;uniqueIndex:ux_edit_seq"   json:"shift_record_id"`
	Seq               int       `gorm:"not null;uniqueIndex:ux_edit_seq"             json:"seq"`
	EditorID          string    `gorm:"type:varchar(128);not null"                    json:"editor_id"`
	Reason            string    `gorm:"type:varchar(500);not null"                    json:"reason"`
	CheckInAt         time.Time `gorm:"not null"                                      json:"check_in_at"`
	CheckOutAt        time.Time `gorm:"not null"                                      json:"check_out_at"`
	BreakMinutes      int       `gorm:"not null"                                      json:"break_minutes"`
	IsLate            bool      `gorm:"not null"                                      json:"is_late"`
	LateMinutes       int       `gorm:"not null"                                      json:"late_minutes"`
	IsEarlyOut        bool      `gorm:"not null"                                      json:"is_early_out"`
	EarlyOutMinutes   int       `gorm:"not null"                                      json:"early_out_minutes"`
	ActualWorkMinutes int       `gorm:"not null"                                      json:"actual_work_minutes"`
	OvertimeMinutes   int       `gorm:"not null"                                      json:"overtime_minutes"`
	Notes             string    `gorm:"type:varchar(500)"                             json:"notes,omitempty"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"            json:"created_at"`
}

func (ShiftEdit) TableName() string { return "shift_edits" }

func (e *ShiftEdit) BeforeCreate(*gorm.DB) error {
	if e.EditID == "" {
		e.EditID = uuid.NewString()
	}
	return nil
}
