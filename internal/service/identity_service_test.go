package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/internal/cache"
	"github.com/LorillaJm/es6-sub000/internal/directory"
	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/internal/testutil"
)

func boolPtr(b bool) *bool { return &b }

func TestIdentity_ResolveExistingIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	seeded := testutil.SeedPerson(t, f.db, "alice")

	p, err := f.svc.Identity.Resolve(context.Background(), "  ALICE ")
	if err != nil {
		t.Fatalf("Resolve 应成功: %v", err)
	}
	if p.PersonID != seeded.PersonID {
		t.Errorf("期望 %s，实际: %s", seeded.PersonID, p.PersonID)
	}
	if f.dir.Calls() != 0 {
		t.Errorf("本地已存在时不应访问目录，实际调用 %d 次", f.dir.Calls())
	}

	// 也可以直接使用 person_id
	byID, err := f.svc.Identity.Lookup(context.Background(), seeded.PersonID)
	if err != nil || byID.Handle != "alice" {
		t.Errorf("按 person_id 查找失败: %v", err)
	}
}

func TestIdentity_ResolveCreatesFromDirectory(t *testing.T) {
	f := newFixture(t)
	f.dir.people["carol"] = &directory.Snapshot{
		Handle: "carol",
		Email:  "carol@example.com",
		Name:   "Carol",
		OrgID:  "org-2",
		Schedule: &directory.Schedule{
			WorkDays: []int{1, 2, 3, 4, 5, 6},
			Start:    "08:00",
		},
	}

	p, err := f.svc.Identity.Resolve(context.Background(), "carol")
	if err != nil {
		t.Fatalf("Resolve 应成功: %v", err)
	}
	if p.OrgID != "org-2" || p.Source != model.PersonSourceDirectory || !p.IsActive() {
		t.Errorf("同步的人员字段错误: %+v", p)
	}
	if p.WorkStart != "08:00" {
		t.Errorf("目录提供的上班时间应生效，实际: %s", p.WorkStart)
	}
	if p.WorkEnd != "18:00" || p.Timezone != "UTC" {
		t.Errorf("缺省字段应使用默认排班，实际: %s / %s", p.WorkEnd, p.Timezone)
	}
	if len(p.WorkDays) != 6 {
		t.Errorf("工作日应为目录提供的 6 天，实际: %v", p.WorkDays)
	}

	// 之后 Lookup 不再访问目录
	if _, err := f.svc.Identity.Lookup(context.Background(), "carol"); err != nil {
		t.Errorf("同步后 Lookup 应成功: %v", err)
	}
	if f.dir.Calls() != 1 {
		t.Errorf("目录只应被调用一次，实际: %d", f.dir.Calls())
	}
}

func TestIdentity_ResolveRelinksByEmail(t *testing.T) {
	f := newFixture(t)
	existing := testutil.SeedPerson(t, f.db, "alice")
	f.dir.people["alice.w"] = &directory.Snapshot{Handle: "alice.w", Email: "ALICE@example.com", OrgID: "org-1"}

	p, err := f.svc.Identity.Resolve(context.Background(), "alice.w")
	if err != nil {
		t.Fatalf("Resolve 应成功: %v", err)
	}
	if p.PersonID != existing.PersonID {
		t.Errorf("邮箱相同应关联到已有人员 %s，实际: %s", existing.PersonID, p.PersonID)
	}

	var persons int64
	f.db.Model(&model.Person{}).Count(&persons)
	if persons != 1 {
		t.Errorf("不应新建人员，实际人员数: %d", persons)
	}

	// 别名可直接查找
	alias, err := f.svc.Identity.Lookup(context.Background(), "alice.w")
	if err != nil || alias.PersonID != existing.PersonID {
		t.Errorf("别名查找失败: %v", err)
	}
}

func TestIdentity_ResolveDirectoryErrors(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Identity.Resolve(context.Background(), "nobody"); !errors.Is(err, ErrPersonNotFound) {
		t.Errorf("目录中不存在应返回 ErrPersonNotFound，实际: %v", err)
	}

	f.dir.err = directory.ErrUnavailable
	_, err := f.svc.Identity.Resolve(context.Background(), "dave")
	if !errors.Is(err, ErrPersonNotFound) {
		t.Errorf("目录不可用应返回 ErrPersonNotFound，实际: %v", err)
	}

	if _, err := f.svc.Identity.Resolve(context.Background(), "   "); !errors.Is(err, ErrPersonNotFound) {
		t.Errorf("空标识应返回 ErrPersonNotFound，实际: %v", err)
	}
}

func TestIdentity_ResolveInactiveSnapshot(t *testing.T) {
	f := newFixture(t)
	f.dir.people["erin"] = &directory.Snapshot{Handle: "erin", Email: "erin@example.com", Active: boolPtr(false)}

	p, err := f.svc.Identity.Resolve(context.Background(), "erin")
	if err != nil {
		t.Fatalf("Resolve 应成功: %v", err)
	}
	if p.IsActive() {
		t.Error("目录标记停用的人员应为 inactive")
	}

	_, err = f.svc.Ledger.CheckIn(context.Background(), "erin", gateA(), memberActor("erin"))
	if !errors.Is(err, ErrPersonInactive) {
		t.Errorf("停用人员签到应返回 ErrPersonInactive，实际: %v", err)
	}
}

func TestIdentity_LookupNeverCallsDirectory(t *testing.T) {
	f := newFixture(t)
	f.dir.people["frank"] = &directory.Snapshot{Handle: "frank", Email: "frank@example.com"}

	if _, err := f.svc.Identity.Lookup(context.Background(), "frank"); !errors.Is(err, ErrPersonNotFound) {
		t.Errorf("期望 ErrPersonNotFound，实际: %v", err)
	}
	if f.dir.Calls() != 0 {
		t.Errorf("Lookup 不应访问目录，实际调用 %d 次", f.dir.Calls())
	}
}

func TestIdentity_ConcurrentFirstResolveCreatesOnePerson(t *testing.T) {
	f := newFixture(t)
	f.dir.delay = 20 * time.Millisecond
	f.dir.people["gina"] = &directory.Snapshot{Handle: "gina", Email: "gina@example.com"}

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.svc.Identity.Resolve(context.Background(), "gina")
			errs[i] = err
			if p != nil {
				ids[i] = p.PersonID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("第 %d 个 Resolve 失败: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("并发解析应得到同一人员: %s != %s", ids[i], ids[0])
		}
	}
	var persons int64
	f.db.Model(&model.Person{}).Where("handle = ?", "gina").Count(&persons)
	if persons != 1 {
		t.Errorf("应只创建一名人员，实际: %d", persons)
	}
}

func TestIdentity_UsesPersonCache(t *testing.T) {
	f := newFixture(t)
	seeded := testutil.SeedPerson(t, f.db, "hank")

	pc, err := cache.NewPersonCache(100, time.Minute)
	if err != nil {
		t.Fatalf("创建缓存失败: %v", err)
	}
	defer pc.Close()
	identity := NewIdentityService(f.repo, f.dir, pc, testConfig().Ledger.DefaultSchedule, zap.NewNop())

	if _, err := identity.Lookup(context.Background(), "hank"); err != nil {
		t.Fatalf("Lookup 应成功: %v", err)
	}
	pc.Wait()

	// 删除数据库记录后仍可从缓存命中
	f.db.Where("person_id = ?", seeded.PersonID).Delete(&model.Person{})
	p, err := identity.Lookup(context.Background(), "hank")
	if err != nil {
		t.Fatalf("缓存命中时 Lookup 应成功: %v", err)
	}
	if p.PersonID != seeded.PersonID {
		t.Errorf("缓存返回的人员错误: %s", p.PersonID)
	}
}
