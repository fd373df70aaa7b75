package handler

import "github.com/LorillaJm/es6-sub000/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Attendance *AttendanceHandler
	Live       *LiveHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Attendance: NewAttendanceHandler(svc.Ledger, svc.Export),
		Live:       NewLiveHandler(svc.Mirror, svc.Gamification),
	}
}
