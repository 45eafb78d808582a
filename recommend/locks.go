package recommend

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// userLocks 为每个用户提供一把可被 context 取消的互斥锁。
// 同一用户的生成、偏好更新串行执行，后到的请求等待前一个完成，而不是覆盖它的写入。
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

// acquire 获取 userID 的锁；ctx 取消时返回 ctx.Err()。
// 成功时返回的 release 必须调用且只能调用一次。
func (l *userLocks) acquire(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{sem: semaphore.NewWeighted(1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	if err := ul.sem.Acquire(ctx, 1); err != nil {
		l.unref(userID, ul)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ul.sem.Release(1)
			l.unref(userID, ul)
		})
	}, nil
}

// unref 在没有任何持有者或等待者时回收条目，避免 map 随用户数无限增长。
func (l *userLocks) unref(userID int64, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
