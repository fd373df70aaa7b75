package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LorillaJm/es6-sub000/internal/api/middleware"
	"github.com/LorillaJm/es6-sub000/internal/service"
	"github.com/LorillaJm/es6-sub000/pkg/jwt"
	"github.com/LorillaJm/es6-sub000/pkg/response"
)

// MustGetPersonHandle 从 Gin 上下文中安全提取 person_handle。
// 如果 JWT 中间件未正确注入，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetPersonHandle(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.CtxPersonHandle)
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.CtxRole)
}

func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetActor 组装台账操作的发起方（含请求 ID，写入审计）
func MustGetActor(c *gin.Context) (service.Actor, bool) {
	handle, ok := MustGetPersonHandle(c)
	if !ok {
		return service.Actor{}, false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{
		Handle:    handle,
		Role:      role,
		RequestID: c.GetString(middleware.RequestIDKey),
	}, true
}

// ResolveTarget 确定本次操作的目标人员
// requested 为空或与本人相同时返回本人；代他人操作需要主管或管理员角色，否则写入 403
func ResolveTarget(c *gin.Context, actor service.Actor, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, actor.Handle) {
		return actor.Handle, true
	}
	if actor.Role != jwt.RoleSupervisor && actor.Role != jwt.RoleAdmin {
		response.Forbidden(c, 10003, "无权代他人操作")
		return "", false
	}
	return requested, true
}
