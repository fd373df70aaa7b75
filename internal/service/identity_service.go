package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/cache"
	"github.com/LorillaJm/es6-sub000/internal/directory"
	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/internal/repository"
)

// ── 身份模块业务错误 ──

var (
	ErrPersonNotFound = errors.New("人员不存在")
	ErrPersonInactive = errors.New("人员已停用，无法打卡")
)

// IdentityService 人员身份解析
type IdentityService interface {
	// Resolve 解析标识；本地不存在时从目录同步（按邮箱去重，必要时新建人员）
	Resolve(ctx context.Context, handle string) (*model.Person, error)
	// Lookup 只读解析，不访问目录
	Lookup(ctx context.Context, handle string) (*model.Person, error)
}

type identityService struct {
	repo     *repository.Repository
	dir      directory.Client
	cache    *cache.PersonCache
	defaults config.ScheduleConfig
	logger   *zap.Logger
	group    singleflight.Group
}

// NewIdentityService 创建 IdentityService 实例；dir 与 personCache 均可为 nil
func NewIdentityService(
	repo *repository.Repository,
	dir directory.Client,
	personCache *cache.PersonCache,
	defaults config.ScheduleConfig,
	logger *zap.Logger,
) IdentityService {
	return &identityService{
		repo:     repo,
		dir:      dir,
		cache:    personCache,
		defaults: defaults,
		logger:   logger,
	}
}

// ────────────────────── Lookup ──────────────────────

func (s *identityService) Lookup(ctx context.Context, handle string) (*model.Person, error) {
	handle = normalizeHandle(handle)
	if handle == "" {
		return nil, ErrPersonNotFound
	}
	if p, ok := s.fromCache(handle); ok {
		return p, nil
	}

	person, err := s.repo.Person.GetByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		s.logger.Error("查询人员失败", zap.String("handle", handle), zap.Error(err))
		return nil, err
	}
	s.remember(handle, person)
	return person, nil
}

// ────────────────────── Resolve ──────────────────────

func (s *identityService) Resolve(ctx context.Context, handle string) (*model.Person, error) {
	handle = normalizeHandle(handle)
	if handle == "" {
		return nil, ErrPersonNotFound
	}
	if p, ok := s.fromCache(handle); ok {
		return p, nil
	}

	// 同一标识的并发首次打卡只同步一次目录
	v, err, _ := s.group.Do(handle, func() (interface{}, error) {
		return s.resolve(ctx, handle)
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*model.Person)
	return &p, nil
}

func (s *identityService) resolve(ctx context.Context, handle string) (*model.Person, error) {
	person, err := s.repo.Person.GetByHandle(ctx, handle)
	if err == nil {
		s.remember(handle, person)
		return person, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询人员失败", zap.String("handle", handle), zap.Error(err))
		return nil, err
	}

	if s.dir == nil {
		return nil, ErrPersonNotFound
	}
	snap, err := s.dir.LookupPerson(ctx, handle)
	if err != nil {
		s.logger.Warn("目录查询失败", zap.String("handle", handle), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersonNotFound, err)
	}
	if snap == nil {
		return nil, ErrPersonNotFound
	}

	// 邮箱相同视为同一人，新标识挂为别名
	if email := strings.TrimSpace(snap.Email); email != "" {
		existing, err := s.repo.Person.GetByEmail(ctx, email)
		switch {
		case err == nil:
			return s.relink(ctx, handle, existing)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			s.logger.Error("按邮箱查询人员失败", zap.String("email", email), zap.Error(err))
			return nil, err
		}
	}

	person = s.personFromSnapshot(handle, snap)
	if err := s.repo.Person.Create(ctx, person); err != nil {
		if repository.IsDuplicate(err) {
			// 其他实例已写入
			return s.reload(ctx, handle)
		}
		s.logger.Error("创建人员失败", zap.String("handle", handle), zap.Error(err))
		return nil, err
	}

	s.logger.Info("已从目录同步人员",
		zap.String("handle", handle),
		zap.String("person_id", person.PersonID),
		zap.String("org_id", person.OrgID),
	)
	s.remember(handle, person)
	return person, nil
}

func (s *identityService) relink(ctx context.Context, handle string, existing *model.Person) (*model.Person, error) {
	alias := &model.PersonAlias{Handle: handle, PersonID: existing.PersonID}
	if err := s.repo.Person.CreateAlias(ctx, alias); err != nil && !repository.IsDuplicate(err) {
		s.logger.Error("创建人员别名失败", zap.String("handle", handle), zap.Error(err))
		return nil, err
	}
	s.logger.Info("标识已关联到已有人员",
		zap.String("handle", handle),
		zap.String("person_id", existing.PersonID),
	)
	s.remember(handle, existing)
	return existing, nil
}

func (s *identityService) reload(ctx context.Context, handle string) (*model.Person, error) {
	person, err := s.repo.Person.GetByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, err
	}
	s.remember(handle, person)
	return person, nil
}

// personFromSnapshot 目录未提供的排班字段使用默认排班
func (s *identityService) personFromSnapshot(handle string, snap *directory.Snapshot) *model.Person {
	p := &model.Person{
		Handle:       handle,
		Email:        strings.TrimSpace(snap.Email),
		Name:         strings.TrimSpace(snap.Name),
		Status:       model.PersonStatusActive,
		OrgID:        snap.OrgID,
		DepartmentID: snap.DepartmentID,
		WorkDays:     model.IntArray(append([]int(nil), s.defaults.WorkDays...)),
		WorkStart:    s.defaults.Start,
		WorkEnd:      s.defaults.End,
		Timezone:     s.defaults.Timezone,
		Source:       model.PersonSourceDirectory,
	}
	if p.Name == "" {
		p.Name = handle
	}
	if !snap.IsActive() {
		p.Status = model.PersonStatusInactive
	}
	if sc := snap.Schedule; sc != nil {
		if len(sc.WorkDays) > 0 {
			p.WorkDays = model.IntArray(append([]int(nil), sc.WorkDays...))
		}
		if sc.Start != "" {
			p.WorkStart = sc.Start
		}
		if sc.End != "" {
			p.WorkEnd = sc.End
		}
		if sc.Timezone != "" {
			p.Timezone = sc.Timezone
		}
	}
	return p
}

// ── 缓存 ──

func (s *identityService) fromCache(handle string) (*model.Person, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(handle)
}

func (s *identityService) remember(handle string, p *model.Person) {
	if s.cache != nil {
		s.cache.Set(handle, p)
	}
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
