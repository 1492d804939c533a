package turn

import (
	"context"
	"sync"
	"time"

	apperrors "rpg-narrative-api/pkg/errors"
)

// Locker 战役级互斥，持有期间覆盖整个回合生命周期
type Locker interface {
	Acquire(ctx context.Context, campaignID string) (release func(), err error)
}

// LocalLocker 进程内按战役加锁，适用于单实例部署
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker wait 为最长等待时间，0 表示锁被占用时立即失败
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot), wait: wait}
}

// Acquire 获取战役锁；超过等待时间返回 ErrTurnInProgress
func (l *LocalLocker) Acquire(ctx context.Context, campaignID string) (func(), error) {
	s := l.ref(campaignID)

	select {
	case s.ch <- struct{}{}:
		return l.releaser(campaignID, s), nil
	default:
	}

	if l.wait <= 0 {
		l.unref(campaignID, s)
		return nil, apperrors.ErrTurnInProgress.WithDetail(campaignID)
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case s.ch <- struct{}{}:
		return l.releaser(campaignID, s), nil
	case <-timer.C:
		l.unref(campaignID, s)
		return nil, apperrors.ErrTurnInProgress.WithDetail(campaignID)
	case <-ctx.Done():
		l.unref(campaignID, s)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) ref(campaignID string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[campaignID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[campaignID] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(campaignID string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, campaignID)
	}
}

func (l *LocalLocker) releaser(campaignID string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(campaignID, s)
		})
	}
}
