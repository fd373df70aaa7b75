package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LorillaJm/es6-sub000/internal/dto"
	"github.com/LorillaJm/es6-sub000/internal/service"
	"github.com/LorillaJm/es6-sub000/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// busyRetryAfter 人员锁或事务冲突时建议客户端的重试间隔
const busyRetryAfter = time.Second

// AttendanceHandler 考勤台账 HTTP 处理器
type AttendanceHandler struct {
	ledgerSvc service.LedgerService
	exportSvc service.ExportService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(ledgerSvc service.LedgerService, exportSvc service.ExportService) *AttendanceHandler {
	return &AttendanceHandler{ledgerSvc: ledgerSvc, exportSvc: exportSvc}
}

// CheckIn 签到
// POST /api/v1/attendance/check-in
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	target, ok := ResolveTarget(c, actor, req.PersonHandle)
	if !ok {
		return
	}

	record, err := h.ledgerSvc.CheckIn(c.Request.Context(), target, &req.CaptureRequest, actor)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.Created(c, record)
}

// CheckOut 签退
// POST /api/v1/attendance/check-out
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	target, ok := ResolveTarget(c, actor, req.PersonHandle)
	if !ok {
		return
	}

	record, err := h.ledgerSvc.CheckOut(c.Request.Context(), target, &req.CaptureRequest, actor)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, record)
}

// StartBreak 开始休息
// POST /api/v1/attendance/breaks/start
func (h *AttendanceHandler) StartBreak(c *gin.Context) {
	var req dto.BreakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	target, ok := ResolveTarget(c, actor, req.PersonHandle)
	if !ok {
		return
	}

	record, err := h.ledgerSvc.StartBreak(c.Request.Context(), target, req.BreakType, actor)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, record)
}

// EndBreak 结束休息
// POST /api/v1/attendance/breaks/end
func (h *AttendanceHandler) EndBreak(c *gin.Context) {
	var req dto.BreakRequest
	// 请求体可省略
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	target, ok := ResolveTarget(c, actor, req.PersonHandle)
	if !ok {
		return
	}

	record, err := h.ledgerSvc.EndBreak(c.Request.Context(), target, actor)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, record)
}

// GetActive 当前进行中的班次；没有时 data 为 null
// GET /api/v1/attendance/active?person_handle=xxx
func (h *AttendanceHandler) GetActive(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	target, ok := ResolveTarget(c, actor, c.Query("person_handle"))
	if !ok {
		return
	}

	record, err := h.ledgerSvc.GetActiveShift(c.Request.Context(), target)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}
	if record == nil {
		response.OK(c, nil)
		return
	}

	response.OK(c, record)
}

// GetHistory 班次历史
// GET /api/v1/attendance/history?from=2026-10-01&to=2026-10-31
func (h *AttendanceHandler) GetHistory(c *gin.Context) {
	var req dto.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	target, ok := ResolveTarget(c, actor, req.PersonHandle)
	if !ok {
		return
	}

	history, err := h.ledgerSvc.GetHistory(c.Request.Context(), target, &req)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, history)
}

// ExportHistory 导出班次历史为 Excel
// GET /api/v1/attendance/history/export?from=2026-10-01&to=2026-10-31
func (h *AttendanceHandler) ExportHistory(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		response.BadRequest(c, 10001, "from 与 to 不能为空")
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	target, ok := ResolveTarget(c, actor, c.Query("person_handle"))
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportHistory(c.Request.Context(), target, from, to)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// CorrectShift 更正已签退班次（管理员）
// POST /api/v1/attendance/records/:id/corrections
func (h *AttendanceHandler) CorrectShift(c *gin.Context) {
	recordID := c.Param("id")
	if recordID == "" {
		response.BadRequest(c, 10001, "班次 ID 不能为空")
		return
	}

	var req dto.CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	record, err := h.ledgerSvc.CorrectShift(c.Request.Context(), recordID, &req, actor)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, record)
}

// handleAttendanceError 把台账、身份、镜像、导出的业务错误映射为 HTTP 响应
func handleAttendanceError(c *gin.Context, err error) {
	switch {
	// ── 可重试 ──
	case errors.Is(err, service.ErrShiftBusy):
		response.Retryable(c, 14001, "该人员的打卡请求正在处理中，请稍后重试", busyRetryAfter)
	case errors.Is(err, service.ErrTransaction):
		response.Retryable(c, 14002, "台账暂时不可用，请稍后重试", busyRetryAfter)

	// ── 状态冲突 ──
	case errors.Is(err, service.ErrDuplicateActiveShift):
		response.Conflict(c, 14101, "已有未签退的班次")
	case errors.Is(err, service.ErrNoActiveShift):
		response.Conflict(c, 14102, "没有进行中的班次")
	case errors.Is(err, service.ErrInvalidTransition):
		response.Conflict(c, 14103, "当前状态不允许该操作")
	case errors.Is(err, service.ErrShiftNotClosed):
		response.Conflict(c, 14104, "仅已签退的班次可以更正")

	// ── 参数 ──
	case errors.Is(err, service.ErrCheckOutNotAfterCheckIn):
		response.BadRequest(c, 14201, "签退时间必须晚于签到时间")
	case errors.Is(err, service.ErrInvalidCaptureTime):
		response.BadRequest(c, 14202, "打卡时间无效")
	case errors.Is(err, service.ErrInvalidCaptureMethod):
		response.BadRequest(c, 14203, "不支持的打卡方式")
	case errors.Is(err, service.ErrInvalidLocation):
		response.BadRequest(c, 14204, "打卡位置无效")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 14205, "查询日期范围无效")

	// ── 权限 ──
	case errors.Is(err, service.ErrCorrectionForbidden):
		response.Forbidden(c, 14301, "仅管理员可以更正班次")
	case errors.Is(err, service.ErrPersonInactive):
		response.Forbidden(c, 14302, "人员已停用，无法打卡")

	// ── 不存在 ──
	case errors.Is(err, service.ErrPersonNotFound):
		response.NotFound(c, 14401, "人员不存在")
	case errors.Is(err, service.ErrShiftRecordNotFound):
		response.NotFound(c, 14402, "班次记录不存在")
	case errors.Is(err, service.ErrLiveStatusAbsent):
		response.NotFound(c, 14403, "暂无该人员的实时状态")
	case errors.Is(err, service.ErrExportNoRecords):
		response.NotFound(c, 14404, "该时间段内没有班次记录")

	default:
		// ErrCorruptRecord / ErrExportGenerateFail / 未知错误
		_ = c.Error(err)
		response.InternalError(c)
	}
}
