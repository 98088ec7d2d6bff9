package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingPublisher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPublisher) Publish(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *countingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestExportWorkerPublishesOnStartAndTick(t *testing.T) {
	p := &countingPublisher{}
	w := NewExportWorker(p, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("publish calls = %d, want >= 2", p.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestExportWorkerKeepsRunningOnError(t *testing.T) {
	p := &countingPublisher{err: errors.New("sheets unavailable")}
	w := NewExportWorker(p, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("publish calls = %d, want >= 3 despite errors", p.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
