// Package testutil 测试辅助：基于 SQLite 内存库的 GORM 连接
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LorillaJm/es6-sub000/internal/model"
)

// Models 需要建表的全部模型
var Models = []interface{}{
	&model.Person{},
	&model.PersonAlias{},
	&model.ShiftRecord{},
	&model.ShiftBreak{},
	&model.ShiftEdit{},
	&model.AuditEntry{},
	&model.OutboxEvent{},
	&model.PersonReward{},
	&model.PointsEntry{},
}

// NewTestDB 创建独立的 SQLite 内存库并完成建表
// 单连接：SQLite 不支持行锁，串行化即可模拟事务隔离
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(Models...); err != nil {
		t.Fatalf("测试库建表失败: %v", err)
	}
	return db
}

// SeedPerson 写入一名在职人员，默认周一至周五 09:00-18:00、UTC
func SeedPerson(t testing.TB, db *gorm.DB, handle string, mutate ...func(p *model.Person)) *model.Person {
	t.Helper()
	p := &model.Person{
		Handle:    handle,
		Email:     handle + "@example.com",
		Name:      handle,
		Status:    model.PersonStatusActive,
		OrgID:     "org-1",
		WorkDays:  model.IntArray{1, 2, 3, 4, 5},
		WorkStart: "09:00",
		WorkEnd:   "18:00",
		Timezone:  "UTC",
		Source:    model.PersonSourceManual,
	}
	for _, fn := range mutate {
		fn(p)
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("写入测试人员失败: %v", err)
	}
	return p
}
