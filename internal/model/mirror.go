package model

import "time"

// StatusProjection 实时镜像中的人员当前状态
type StatusProjection struct {
	PersonID      string     `json:"person_id"`
	OrgID         string     `json:"org_id"`
	State         string     `json:"state"`
	ShiftRecordID string     `json:"shift_record_id"`
	ShiftDate     string     `json:"shift_date"`
	ShiftNumber   int        `json:"shift_number"`
	CheckInAt     *time.Time `json:"check_in_at,omitempty"`
	CheckOutAt    *time.Time `json:"check_out_at,omitempty"`
	IsLate        bool       `json:"is_late"`
	Seq           uint64     `json:"seq"`
}

// AggregateCounters 组织当日考勤计数，始终由主库重新计算
type AggregateCounters struct {
	OrgID      string `json:"org_id"`
	Date       string `json:"date"`
	Headcount  int    `json:"headcount"`
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
	Late       int    `json:"late"`
	CheckedIn  int    `json:"checked_in"`
	OnBreak    int    `json:"on_break"`
	CheckedOut int    `json:"checked_out"`
	Seq        uint64 `json:"seq"`
}
