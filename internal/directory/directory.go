// Package directory 外部人员目录：按标识查询人员快照。
package directory

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable 目录服务不可用（网络错误、熔断、限流等待超时）
var ErrUnavailable = errors.New("人员目录不可用")

// Client 人员目录查询接口
// 未找到时返回 (nil, nil)
type Client interface {
	LookupPerson(ctx context.Context, handle string) (*Snapshot, error)
}

// Snapshot 目录中的人员快照
type Snapshot struct {
	Handle       string    `json:"handle"                  yaml:"handle"`
	Email        string    `json:"email"                   yaml:"email"`
	Name         string    `json:"name"                    yaml:"name"`
	OrgID        string    `json:"org_id"                  yaml:"org_id"`
	DepartmentID string    `json:"department_id,omitempty" yaml:"department_id"`
	Active       *bool     `json:"active,omitempty"        yaml:"active"`
	Schedule     *Schedule `json:"schedule,omitempty"      yaml:"schedule"`
}

// Schedule 目录提供的排班；缺省字段由调用方以默认排班补齐
type Schedule struct {
	WorkDays []int  `json:"work_days,omitempty" yaml:"work_days"`
	Start    string `json:"start,omitempty"     yaml:"start"`
	End      string `json:"end,omitempty"       yaml:"end"`
	Timezone string `json:"timezone,omitempty"  yaml:"timezone"`
}

// IsActive 未声明状态时视为在职
func (s *Snapshot) IsActive() bool {
	return s.Active == nil || *s.Active
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
