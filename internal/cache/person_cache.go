// Package cache 进程内缓存
package cache

import (
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/LorillaJm/es6-sub000/internal/model"
)

// PersonCache 人员标识 → 人员记录的 TTL 缓存
// 缓存值为副本，调用方修改返回值不会影响缓存
type PersonCache struct {
	c   *ristretto.Cache[string, model.Person]
	ttl time.Duration
}

// NewPersonCache 创建人员缓存；maxEntries 为最多缓存的条目数（每人占标识与 ID 两条）
func NewPersonCache(maxEntries int64, ttl time.Duration) (*PersonCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	// 每条成本固定为 1，MaxCost 即条目数
	c, err := ristretto.NewCache(&ristretto.Config[string, model.Person]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &PersonCache{c: c, ttl: ttl}, nil
}

// Get 按标识读取
func (p *PersonCache) Get(handle string) (*model.Person, bool) {
	person, ok := p.c.Get(key(handle))
	if !ok {
		return nil, false
	}
	return &person, true
}

// Set 以标识和人员 ID 两个键写入
func (p *PersonCache) Set(handle string, person *model.Person) {
	if person == nil {
		return
	}
	p.c.SetWithTTL(key(handle), *person, 1, p.ttl)
	if person.PersonID != "" && key(handle) != key(person.PersonID) {
		p.c.SetWithTTL(key(person.PersonID), *person, 1, p.ttl)
	}
}

// Delete 移除
func (p *PersonCache) Delete(handle string) {
	p.c.Del(key(handle))
}

// Wait 等待缓冲中的写入生效（ristretto 异步写入）
func (p *PersonCache) Wait() {
	p.c.Wait()
}

// Close 释放后台协程
func (p *PersonCache) Close() {
	p.c.Close()
}

func key(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}
