package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LorillaJm/es6-sub000/internal/model"
)

// PersonRepository 人员数据访问接口
type PersonRepository interface {
	Create(ctx context.Context, person *model.Person) error
	GetByID(ctx context.Context, id string) (*model.Person, error)
	// GetByHandle 依次按主键、标识、别名查找
	GetByHandle(ctx context.Context, handle string) (*model.Person, error)
	GetByEmail(ctx context.Context, email string) (*model.Person, error)
	// LockByID 使用 SELECT ... FOR UPDATE 锁定人员行，串行化同一人员的台账写入
	LockByID(ctx context.Context, id string) (*model.Person, error)
	Update(ctx context.Context, person *model.Person) error
	CreateAlias(ctx context.Context, alias *model.PersonAlias) error
	ListActiveByOrg(ctx context.Context, orgID string) ([]model.Person, error)
	CountActiveByOrg(ctx context.Context, orgID string) (int64, error)
}

// personRepo PersonRepository 的 GORM 实现
type personRepo struct {
	db *gorm.DB
}

// NewPersonRepo 创建 PersonRepository 实例
func NewPersonRepo(db *gorm.DB) PersonRepository {
	return &personRepo{db: db}
}

func (r *personRepo) Create(ctx context.Context, person *model.Person) error {
	return r.db.WithContext(ctx).Create(person).Error
}

func (r *personRepo) GetByID(ctx context.Context, id string) (*model.Person, error) {
	var person model.Person
	err := r.db.WithContext(ctx).
		Where("person_id = ?", id).
		First(&person).Error
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *personRepo) GetByHandle(ctx context.Context, handle string) (*model.Person, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, gorm.ErrRecordNotFound
	}

	// person_id 为 uuid 列，非 uuid 文本直接比较会被 PostgreSQL 拒绝
	if uuid.Validate(handle) == nil {
		p, err := r.GetByID(ctx, handle)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var person model.Person
	err := r.db.WithContext(ctx).
		Where("handle = ?", handle).
		First(&person).Error
	if err == nil {
		return &person, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Joins("JOIN person_aliases ON person_aliases.person_id = persons.person_id").
		Where("person_aliases.handle = ?", handle).
		First(&person).Error
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *personRepo) GetByEmail(ctx context.Context, email string) (*model.Person, error) {
	var person model.Person
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Order("created_at ASC").
		First(&person).Error
	if err != nil {
		return nil, err
	}
	return &person, nil
}

// LockByID 必须在已有事务的 *gorm.DB 上调用（通过 Repository.Transaction 注入事务连接）
func (r *personRepo) LockByID(ctx context.Context, id string) (*model.Person, error) {
	var person model.Person
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("person_id = ?", id).
		First(&person).Error
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *personRepo) Update(ctx context.Context, person *model.Person) error {
	return r.db.WithContext(ctx).
		Model(&model.Person{}).
		Where("person_id = ?", person.PersonID).
		Updates(map[string]interface{}{
			"email":         person.Email,
			"name":          person.Name,
			"status":        person.Status,
			"org_id":        person.OrgID,
			"department_id": person.DepartmentID,
			"work_days":     person.WorkDays,
			"work_start":    person.WorkStart,
			"work_end":      person.WorkEnd,
			"timezone":      person.Timezone,
		}).Error
}

func (r *personRepo) CreateAlias(ctx context.Context, alias *model.PersonAlias) error {
	return r.db.WithContext(ctx).Create(alias).Error
}

func (r *personRepo) ListActiveByOrg(ctx context.Context, orgID string) ([]model.Person, error) {
	var persons []model.Person
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, model.PersonStatusActive).
		Order("name ASC").
		Find(&persons).Error
	return persons, err
}

func (r *personRepo) CountActiveByOrg(ctx context.Context, orgID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Person{}).
		Where("org_id = ? AND status = ?", orgID, model.PersonStatusActive).
		Count(&count).Error
	return count, err
}
