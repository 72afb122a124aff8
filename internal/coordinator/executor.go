package coordinator

import (
	"context"
	"errors"
	"sync"
)

// Executor runs funcs one at a time on the coordinating goroutine.
type Executor interface {
	// Post queues fn. It must not block for long and may be called from any goroutine.
	Post(fn func())
}

// ErrLoopStopped is returned by Do once the loop has exited.
var ErrLoopStopped = errors.New("coordinator loop stopped")

// Loop is a channel-backed Executor for headless use.
type Loop struct {
	inbox   chan func()
	stopped chan struct{}
	once    sync.Once
}

func NewLoop() *Loop {
	return &Loop{
		inbox:   make(chan func(), 256),
		stopped: make(chan struct{}),
	}
}

// Post queues fn. After Run has returned, fn is dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.inbox <- fn:
	case <-l.stopped:
	}
}

// Run executes posted funcs until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.stopped) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.inbox:
			fn()
		}
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
