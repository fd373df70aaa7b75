package keylock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	pkgerrors "github.com/LorillaJm/es6-sub000/pkg/errors"
)

// KeyLock 按键互斥锁：同一键串行，不同键互不阻塞
// 空闲键在最后一个持有者释放后回收，不会无限增长
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// New 创建按键互斥锁
func New() *KeyLock {
	return &KeyLock{entries: make(map[string]*entry)}
}

// Acquire 获取 key 的互斥权，最多等待 timeout
// 超时返回 pkgerrors.ErrLockTimeout；调用方上下文取消时返回 ctx.Err()
func (k *KeyLock) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	e := k.ref(key)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		k.unref(key, e)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pkgerrors.ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			k.unref(key, e)
		})
	}, nil
}

// Len 当前被引用的键数量
func (k *KeyLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *KeyLock) ref(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *KeyLock) unref(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
