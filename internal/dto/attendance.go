package dto

import (
	"time"

	"github.com/LorillaJm/es6-sub000/internal/model"
)

// ── 打卡请求 ──

// CaptureRequest 一次打卡采集的上下文
// At 仅用于人工补录（method=manual），缺省为服务器当前时间
type CaptureRequest struct {
	At           *time.Time          `json:"at"`
	Location     model.Location      `json:"location"`
	DeviceID     string              `json:"device_id"    binding:"omitempty,max=128"`
	Method       string              `json:"method"       binding:"omitempty,capture_method"`
	Verification *model.Verification `json:"verification"`
	Notes        string              `json:"notes"        binding:"omitempty,max=500"`
}

// CheckInRequest 签到 / 签退请求
// PersonHandle 为空时使用令牌中的身份；代他人打卡需要主管或管理员角色
type CheckInRequest struct {
	PersonHandle string `json:"person_handle" binding:"omitempty,max=128"`
	CaptureRequest
}

// BreakRequest 开始 / 结束休息请求
type BreakRequest struct {
	PersonHandle string `json:"person_handle" binding:"omitempty,max=128"`
	BreakType    string `json:"break_type"    binding:"omitempty,oneof=rest meal other"`
}

// HistoryRequest 历史记录查询参数
type HistoryRequest struct {
	PersonHandle string `form:"person_handle" binding:"omitempty,max=128"`
	From         string `form:"from"          binding:"required,datetime=2006-01-02"`
	To           string `form:"to"            binding:"required,datetime=2006-01-02"`
	PaginationRequest
}

// CorrectionRequest 管理员更正已签退班次
type CorrectionRequest struct {
	CheckInAt    time.Time `json:"check_in_at"   binding:"required"`
	CheckOutAt   time.Time `json:"check_out_at"  binding:"required"`
	BreakMinutes *int      `json:"break_minutes" binding:"omitempty,min=0"`
	Reason       string    `json:"reason"        binding:"required,min=2,max=500"`
	Notes        string    `json:"notes"         binding:"omitempty,max=500"`
}

// ── 打卡响应 ──

// ShiftRecordResponse 班次记录（已叠加最新更正）
type ShiftRecordResponse struct {
	ID                string          `json:"id"`
	PersonID          string          `json:"person_id"`
	OrgID             string          `json:"org_id"`
	ShiftDate         string          `json:"shift_date"`
	ShiftNumber       int             `json:"shift_number"`
	State             string          `json:"state"`
	CheckIn           model.Capture   `json:"check_in"`
	CheckOut          *model.Capture  `json:"check_out,omitempty"`
	ScheduledStartAt  *time.Time      `json:"scheduled_start_at,omitempty"`
	ScheduledEndAt    *time.Time      `json:"scheduled_end_at,omitempty"`
	IsLate            bool            `json:"is_late"`
	LateMinutes       int             `json:"late_minutes"`
	IsEarlyOut        bool            `json:"is_early_out"`
	EarlyOutMinutes   int             `json:"early_out_minutes"`
	BreakMinutes      int             `json:"break_minutes"`
	ActualWorkMinutes int             `json:"actual_work_minutes"`
	OvertimeMinutes   int             `json:"overtime_minutes"`
	ManualEntry       bool            `json:"manual_entry"`
	Corrected         bool            `json:"corrected"`
	Notes             string          `json:"notes,omitempty"`
	Breaks            []BreakResponse `json:"breaks"`
	Edits             []EditResponse  `json:"edits,omitempty"`
	Version           int             `json:"version"`
}

// BreakResponse 休息段
type BreakResponse struct {
	Seq             int        `json:"seq"`
	BreakType       string     `json:"break_type"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
}

// EditResponse 更正记录
type EditResponse struct {
	Seq        int       `json:"seq"`
	EditorID   string    `json:"editor_id"`
	Reason     string    `json:"reason"`
	CheckInAt  time.Time `json:"check_in_at"`
	CheckOutAt time.Time `json:"check_out_at"`
	CreatedAt  string    `json:"created_at"`
}

// HistoryResponse 历史记录列表
type HistoryResponse struct {
	PersonID string                `json:"person_id"`
	From     string                `json:"from"`
	To       string                `json:"to"`
	Records  []ShiftRecordResponse `json:"records"`
	Total    int64                 `json:"total"`
}

// NewShiftRecordResponse 由模型构造响应
func NewShiftRecordResponse(r *model.ShiftRecord) ShiftRecordResponse {
	view := r.Effective()
	resp := ShiftRecordResponse{
		ID:                view.ShiftRecordID,
		PersonID:          view.PersonID,
		OrgID:             view.OrgID,
		ShiftDate:         view.ShiftDate.Format("2006-01-02"),
		ShiftNumber:       view.ShiftNumber,
		State:             view.CurrentState,
		CheckIn:           view.CheckIn,
		ScheduledStartAt:  view.ScheduledStartAt,
		ScheduledEndAt:    view.ScheduledEndAt,
		IsLate:            view.IsLate,
		LateMinutes:       view.LateMinutes,
		IsEarlyOut:        view.IsEarlyOut,
		EarlyOutMinutes:   view.EarlyOutMinutes,
		BreakMinutes:      view.BreakMinutes,
		ActualWorkMinutes: view.ActualWorkMinutes,
		OvertimeMinutes:   view.OvertimeMinutes,
		ManualEntry:       view.ManualEntry,
		Corrected:         len(r.Edits) > 0,
		Notes:             view.Notes,
		Breaks:            make([]BreakResponse, 0, len(r.Breaks)),
		Version:           view.Version,
	}
	if view.CheckOut.At != nil {
		out := view.CheckOut
		resp.CheckOut = &out
	}
	for _, b := range r.Breaks {
		resp.Breaks = append(resp.Breaks, BreakResponse{
			Seq:             b.Seq,
			BreakType:       b.BreakType,
			StartAt:         b.StartAt,
			EndAt:           b.EndAt,
			DurationMinutes: b.DurationMinutes,
		})
	}
	for _, e := range r.Edits {
		resp.Edits = append(resp.Edits, EditResponse{
			Seq:        e.Seq,
			EditorID:   e.EditorID,
			Reason:     e.Reason,
			CheckInAt:  e.CheckInAt,
			CheckOutAt: e.CheckOutAt,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp
}
