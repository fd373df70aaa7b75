package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/directory"
	"github.com/LorillaJm/es6-sub000/internal/dto"
	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/internal/repository"
	"github.com/LorillaJm/es6-sub000/internal/testutil"
	"github.com/LorillaJm/es6-sub000/pkg/jwt"
	"github.com/LorillaJm/es6-sub000/pkg/keylock"
	pkgredis "github.com/LorillaJm/es6-sub000/pkg/redis"
)

// ── 测试辅助 ──

// monday 2026-10-19 是周一
var monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hh, mm int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hh, mm, 0, 0, time.UTC)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) Notify() { c.n.Add(1) }

// stubDirectory 以 map 模拟外部目录
type stubDirectory struct {
	mu     sync.Mutex
	people map[string]*directory.Snapshot
	err    error
	delay  time.Duration
	calls  int
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{people: make(map[string]*directory.Snapshot)}
}

func (d *stubDirectory) LookupPerson(_ context.Context, handle string) (*directory.Snapshot, error) {
	d.mu.Lock()
	d.calls++
	snap, err, delay := d.people[handle], d.err, d.delay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (d *stubDirectory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{
			GraceMinutes:   15,
			LockTimeout:    2 * time.Second,
			MaxHistoryDays: 31,
			DefaultSchedule: config.ScheduleConfig{
				WorkDays: []int{1, 2, 3, 4, 5},
				Start:    "09:00",
				End:      "18:00",
				Timezone: "UTC",
			},
		},
		Mirror: config.MirrorConfig{
			KeyPrefix:               "test",
			StatusTTL:               time.Hour,
			BreakerFailureThreshold: 3,
			BreakerTimeout:          time.Minute,
		},
		Gamification: config.GamificationConfig{
			BasePoints: 10,
			LatePoints: 2,
		},
	}
}

type fixture struct {
	db       *gorm.DB
	repo     *repository.Repository
	svc      *Service
	clock    *fakeClock
	notifier *countingNotifier
	dir      *stubDirectory
	mr       *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	repo := repository.NewRepository(db)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		db:       db,
		repo:     repo,
		clock:    &fakeClock{now: at(monday, 9, 0)},
		notifier: &countingNotifier{},
		dir:      newStubDirectory(),
		mr:       mr,
	}
	f.svc = NewService(testConfig(), repo, Dependencies{
		Directory:   f.dir,
		MirrorStore: pkgredis.NewFromUniversal(rdb, zap.NewNop()),
		Locks:       keylock.New(),
		Notifier:    f.notifier,
	}, zap.NewNop(), WithClock(f.clock.Now))
	return f
}

func memberActor(handle string) Actor {
	return Actor{Handle: handle, Role: jwt.RoleMember, RequestID: "req-test"}
}

func adminActor() Actor {
	return Actor{Handle: "admin", Role: jwt.RoleAdmin, RequestID: "req-admin"}
}

func gateA() *dto.CaptureRequest {
	return &dto.CaptureRequest{Location: model.Location{Label: "Gate A"}, DeviceID: "kiosk-1"}
}

func (f *fixture) checkIn(t *testing.T, handle string, when time.Time) *dto.ShiftRecordResponse {
	t.Helper()
	f.clock.Set(when)
	resp, err := f.svc.Ledger.CheckIn(context.Background(), handle, gateA(), memberActor(handle))
	if err != nil {
		t.Fatalf("CheckIn 应成功: %v", err)
	}
	return resp
}

func (f *fixture) checkOut(t *testing.T, handle string, when time.Time) *dto.ShiftRecordResponse {
	t.Helper()
	f.clock.Set(when)
	resp, err := f.svc.Ledger.CheckOut(context.Background(), handle, gateA(), memberActor(handle))
	if err != nil {
		t.Fatalf("CheckOut 应成功: %v", err)
	}
	return resp
}

// pendingEvents 按提交序号读取发件箱中的事件
func (f *fixture) pendingEvents(t *testing.T) []model.ShiftEvent {
	t.Helper()
	rows, err := f.repo.Outbox.FetchPending(context.Background(), time.Now().UTC().Add(time.Hour), 1000)
	if err != nil {
		t.Fatalf("读取发件箱失败: %v", err)
	}
	events := make([]model.ShiftEvent, 0, len(rows))
	for _, row := range rows {
		var evt model.ShiftEvent
		if err := json.Unmarshal([]byte(row.Payload), &evt); err != nil {
			t.Fatalf("解析发件箱载荷失败: %v", err)
		}
		evt.Seq = row.ID
		events = append(events, evt)
	}
	return events
}

func correction(in, out time.Time) *dto.CorrectionRequest {
	return &dto.CorrectionRequest{CheckInAt: in, CheckOutAt: out, Reason: "考勤更正"}
}
