package workers

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := NewPool(4, 16)
	defer p.Stop()

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		if !p.Submit(func() { ran.Add(1) }) {
			t.Fatal("submit rejected with free queue capacity")
		}
	}
	p.Wait()

	if got := ran.Load(); got != 10 {
		t.Fatalf("ran %d jobs, want 10", got)
	}
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Stop()

	block := make(chan struct{})
	// First job occupies the worker, second fills the queue.
	p.Submit(func() { <-block })
	p.Submit(func() {})

	dropped := false
	for i := 0; i < 5; i++ {
		if !p.Submit(func() {}) {
			dropped = true
			break
		}
	}
	close(block)

	if !dropped {
		t.Fatal("expected at least one submission to be dropped")
	}
}

func TestPoolStopWaitsForAcceptedJobs(t *testing.T) {
	p := NewPool(2, 8)

	var ran atomic.Int64
	for i := 0; i < 6; i++ {
		p.Submit(func() {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
		})
	}
	p.Stop()

	if got := ran.Load(); got != 6 {
		t.Fatalf("ran %d jobs before Stop returned, want 6", got)
	}
}

func TestPoolStopIsIdempotent(t *testing.T) {
	p := NewPool(1, 1)
	p.Stop()
	p.Stop()
}
