package apiclient

import (
	"context"
	"sync"
)

// Task is the cancellable handle of an asynchronous request.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cancelled bool
}

// Cancel aborts the request. If Cancel returns before the request completes,
// the completion callback is never invoked. Safe to call more than once.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.cancel()
}

// Done is closed once the request has finished or was abandoned.
func (t *Task) Done() <-chan struct{} { return t.done }

func start[T any](ctx context.Context, run func(context.Context) (T, error), completion func(T, error)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		v, err := run(ctx)
		t.mu.Lock()
		skip := t.cancelled
		t.mu.Unlock()
		if skip || completion == nil {
			return
		}
		completion(v, err)
	}()
	return t
}

// StartDocumentList runs FetchDocumentList in the background.
func (c *Client) StartDocumentList(ctx context.Context, completion func([]Document, error)) *Task {
	return start(ctx, c.FetchDocumentList, completion)
}

// StartAuthToken runs FetchAuthToken in the background.
func (c *Client) StartAuthToken(ctx context.Context, layer Layer, completion func(string, error)) *Task {
	return start(ctx, func(ctx context.Context) (string, error) {
		return c.FetchAuthToken(ctx, layer)
	}, completion)
}
