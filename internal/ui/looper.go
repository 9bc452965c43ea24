// Package ui 提供拨号盘的单线程事件循环
// 所有分发器与动作执行代码都在同一个协程上串行运行,后台结果通过 Post 回投
package ui

import (
	"context"
	"errors"
	"log"
	"sync"
)

const logPrefix = "[Looper]"

var (
	// ErrLooperStopped 循环已退出,任务未被执行
	ErrLooperStopped = errors.New("looper stopped")
)

type loopKey struct{}

// Task 在循环协程上执行的任务,ctx 携带循环标记
type Task func(ctx context.Context)

// Looper 单协程任务循环(对应移动端的主线程)
type Looper struct {
	tasks chan Task

	mu      sync.RWMutex
	stopped bool

	quit chan struct{}
	done chan struct{}
}

// NewLooper 创建并启动循环
func NewLooper(backlog int) *Looper {
	if backlog <= 0 {
		backlog = 1
	}

	looper := &Looper{
		tasks: make(chan Task, backlog),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go looper.run()
	return looper
}

// Post 投递任务,循环已退出时返回 false
func (looper *Looper) Post(task Task) bool {
	looper.mu.RLock()
	defer looper.mu.RUnlock()

	if looper.stopped {
		return false
	}

	select {
	case looper.tasks <- task:
		return true
	case <-looper.quit:
		return false
	}
}

// PostWait 投递任务并等待其执行完成
func (looper *Looper) PostWait(ctx context.Context, task Task) error {
	finished := make(chan struct{})
	posted := looper.Post(func(loopCtx context.Context) {
		defer close(finished)
		task(loopCtx)
	})
	if !posted {
		return ErrLooperStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-looper.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLooperStopped
		}
	}
}

// OnLoop 判断调用方是否正运行在本循环上
func (looper *Looper) OnLoop(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, ok := ctx.Value(loopKey{}).(*Looper)
	return ok && owner == looper
}

// Pending 已排队尚未执行的任务数
func (looper *Looper) Pending() int {
	return len(looper.tasks)
}

// Quit 停止接收新任务,执行完已排队任务后退出
func (looper *Looper) Quit() {
	looper.mu.Lock()
	if looper.stopped {
		looper.mu.Unlock()
		<-looper.done
		return
	}
	looper.stopped = true
	looper.mu.Unlock()

	close(looper.quit)
	<-looper.done
}

func (looper *Looper) run() {
	defer close(looper.done)

	loopCtx := context.WithValue(context.Background(), loopKey{}, looper)
	for {
		select {
		case task := <-looper.tasks:
			looper.execute(loopCtx, task)
		case <-looper.quit:
			looper.drain(loopCtx)
			return
		}
	}
}

func (looper *Looper) drain(loopCtx context.Context) {
	for {
		select {
		case task := <-looper.tasks:
			looper.execute(loopCtx, task)
		default:
			return
		}
	}
}

// execute 单个任务 panic 不应拖垮整个循环
func (looper *Looper) execute(loopCtx context.Context, task Task) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("%s 任务执行 panic: %v", logPrefix, recovered)
		}
	}()
	task(loopCtx)
}
