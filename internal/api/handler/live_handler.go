package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LorillaJm/es6-sub000/internal/api/middleware"
	"github.com/LorillaJm/es6-sub000/internal/service"
	"github.com/LorillaJm/es6-sub000/pkg/jwt"
	"github.com/LorillaJm/es6-sub000/pkg/response"
)

// LiveHandler 实时镜像与积分查询（主管 / 管理员）
type LiveHandler struct {
	mirrorSvc       service.MirrorService
	gamificationSvc service.GamificationService
	now             func() time.Time
}

// NewLiveHandler 创建 LiveHandler
func NewLiveHandler(mirrorSvc service.MirrorService, gamificationSvc service.GamificationService) *LiveHandler {
	return &LiveHandler{mirrorSvc: mirrorSvc, gamificationSvc: gamificationSvc, now: time.Now}
}

// GetLiveStatus 人员实时状态（来自镜像，可能短暂滞后于台账）
// GET /api/v1/attendance/live/:person_id
func (h *LiveHandler) GetLiveStatus(c *gin.Context) {
	personID := c.Param("person_id")
	if personID == "" {
		response.BadRequest(c, 10001, "person_id 不能为空")
		return
	}

	status, err := h.mirrorSvc.GetStatus(c.Request.Context(), personID)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, status)
}

// GetOrgSummary 组织当日出勤计数
// GET /api/v1/attendance/orgs/:org_id/summary?date=2026-10-19
// 主管只能查看本组织；date 缺省为当天（UTC）
func (h *LiveHandler) GetOrgSummary(c *gin.Context) {
	orgID := c.Param("org_id")
	if orgID == "" {
		response.BadRequest(c, 10001, "org_id 不能为空")
		return
	}

	role, ok := MustGetRole(c)
	if !ok {
		return
	}
	if role != jwt.RoleAdmin && c.GetString(middleware.CtxOrgID) != orgID {
		response.Forbidden(c, 10003, "无权查看其他组织")
		return
	}

	date := c.DefaultQuery("date", h.now().UTC().Format("2006-01-02"))
	summary, err := h.mirrorSvc.GetAggregate(c.Request.Context(), orgID, date)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, summary)
}

// GetReward 连续打卡与积分
// GET /api/v1/attendance/rewards/:person_id
func (h *LiveHandler) GetReward(c *gin.Context) {
	personID := c.Param("person_id")
	if personID == "" {
		response.BadRequest(c, 10001, "person_id 不能为空")
		return
	}

	reward, err := h.gamificationSvc.GetReward(c.Request.Context(), personID)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, reward)
}
