package modem

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// blockWorker 占住工作协程,返回放行函数
func blockWorker(t *testing.T, w *Worker) func() {
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = w.Do(context.Background(), "block", func(context.Context, *Modem) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	return func() { close(release) }
}

func TestWorkerRunsTaskAndReturnsError(t *testing.T) {
	m, _ := newTestModem(nil)
	w := NewWorker(m, 2)
	defer w.Close()

	boom := errors.New("boom")
	var got *Modem
	err := w.Do(context.Background(), "t", func(_ context.Context, modem *Modem) error {
		got = modem
		return boom
	})
	be.Err(t, err, boom)
	be.True(t, got == m)
}

func TestWorkerSkipsCancelledTask(t *testing.T) {
	m, _ := newTestModem(nil)
	w := NewWorker(m, 2)
	defer w.Close()

	release := blockWorker(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- w.Do(ctx, "adn", func(context.Context, *Modem) error {
			ran.Store(true)
			return nil
		})
	}()
	waitFor(t, func() bool { return w.Status().QueueLen == 1 })

	cancel()
	be.Err(t, <-done, context.Canceled)
	release()

	waitFor(t, func() bool { return w.Status().Skipped == 1 })
	be.True(t, !ran.Load())
}

func TestWorkerQueueFull(t *testing.T) {
	m, _ := newTestModem(nil)
	w := NewWorker(m, 1)
	defer w.Close()

	release := blockWorker(t, w)
	defer release()

	go func() {
		_ = w.Do(context.Background(), "queued", func(context.Context, *Modem) error { return nil })
	}()
	waitFor(t, func() bool { return w.Status().QueueLen == 1 })

	err := w.Do(context.Background(), "overflow", func(context.Context, *Modem) error { return nil })
	be.Err(t, err, ErrTaskQueueFull)
	be.Equal(t, w.Status().Busy, "block")
}

func TestWorkerClosed(t *testing.T) {
	m, _ := newTestModem(nil)
	w := NewWorker(m, 1)
	be.Err(t, w.Close(), nil)
	be.Err(t, w.Close(), nil)

	err := w.Do(context.Background(), "late", func(context.Context, *Modem) error { return nil })
	be.Err(t, err, ErrWorkerClosed)
	be.True(t, w.Status().Closed)
}
