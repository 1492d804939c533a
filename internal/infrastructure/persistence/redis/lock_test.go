package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveExtendsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(ctx, 5*time.Millisecond, func(context.Context) (bool, error) {
			if atomic.AddInt32(&calls, 1) == 3 {
				cancel()
			}
			return true, nil
		}, func() { t.Error("lock reported lost while still held") })
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keepAlive did not stop after cancellation")
	}
	if got := atomic.LoadInt32(&calls); got < 3 {
		t.Fatalf("extend calls = %d, want at least 3", got)
	}
}

func TestKeepAliveStopsWhenLockLost(t *testing.T) {
	tests := []struct {
		name  string
		steps []error // nil 表示续期成功，errLost 表示锁已被他人持有
	}{
		{name: "lost immediately", steps: []error{errLost}},
		{name: "transient error then lost", steps: []error{errors.New("i/o timeout"), nil, errLost}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				i    int
				lost int32
			)
			done := make(chan struct{})
			go func() {
				defer close(done)
				keepAlive(context.Background(), time.Millisecond, func(context.Context) (bool, error) {
					step := tt.steps[i]
					i++
					switch {
					case errors.Is(step, errLost):
						return false, nil
					case step != nil:
						return false, step
					}
					return true, nil
				}, func() { atomic.AddInt32(&lost, 1) })
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("keepAlive kept running after the lock was lost")
			}
			if i != len(tt.steps) {
				t.Fatalf("extend calls = %d, want %d", i, len(tt.steps))
			}
			if atomic.LoadInt32(&lost) != 1 {
				t.Fatalf("onLost calls = %d, want 1", lost)
			}
		})
	}
}

var errLost = errors.New("lost")
