package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrLockTimeout 等待行锁或人员互斥锁超时，调用方可稍后重试
var ErrLockTimeout = errors.New("等待锁超时，请稍后重试")
