package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoopRunsPostedFuncsInOrder(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		loop.Post(func() { got = append(got, i) })
	}
	var snapshot []int
	if err := loop.Do(ctx, func() { snapshot = append(snapshot, got...) }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	for i, v := range snapshot {
		if v != i {
			t.Fatalf("out of order: %v", snapshot)
		}
	}
	if len(snapshot) != 5 {
		t.Fatalf("expected 5 funcs to run, got %v", snapshot)
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestLoopAfterStop(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = loop.Run(ctx)

	// fill the inbox beyond its buffer; Post must not block once stopped
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			loop.Post(func() {})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Post blocked on a stopped loop")
	}
	if err := loop.Do(context.Background(), func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("Do after stop: %v", err)
	}
}
