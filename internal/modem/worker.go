package modem

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

/*
串口任务工作者:
- 单工作协程串行执行全部 AT 任务,同一串口上不会有两条命令交错。
- 入队非阻塞,队列满立即返回 ErrTaskQueueFull。
- 任务出队时若其 ctx 已取消(例如用户取消了 SIM 通讯录查询)则直接跳过,不再占用串口。
- Close 不关闭通道,只标记 isClosed 并取消内部 ctx,避免并发入队时 send on closed channel。
*/

var (
	ErrTaskQueueFull = errors.New("modem task queue is full")
	ErrWorkerClosed  = errors.New("modem worker is closed")
)

const defaultTaskBacklog = 16

// TaskFunc 在工作协程上执行,独占串口
type TaskFunc func(ctx context.Context, m *Modem) error

// Task 串口任务
type Task struct {
	Name   string
	Run    TaskFunc
	Result chan error
	Ctx    context.Context
}

// Worker 串行执行串口任务
type Worker struct {
	modem *Modem
	tasks chan *Task

	busyTask string
	isClosed bool
	skipped  int

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WorkerStatus 队列状态快照
type WorkerStatus struct {
	QueueLen int    `json:"queue_len"`
	Busy     string `json:"busy,omitempty"`
	Skipped  int    `json:"skipped"`
	Closed   bool   `json:"closed"`
}

// NewWorker 创建并启动工作者
func NewWorker(modem *Modem, backlog int) *Worker {
	if backlog <= 0 {
		backlog = defaultTaskBacklog
	}
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		modem:  modem,
		tasks:  make(chan *Task, backlog),
		ctx:    ctx,
		cancel: cancel,
	}

	w.wg.Add(1)
	go w.processTasks()

	return w
}

// Close 关闭工作者（等待工作协程退出）
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return nil
	}
	w.isClosed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	return nil
}

// Do 入队任务并同步等待结果
func (w *Worker) Do(ctx context.Context, name string, run TaskFunc) error {
	task := &Task{
		Name:   name,
		Run:    run,
		Result: make(chan error, 1),
		Ctx:    ctx,
	}
	send := func() bool {
		select {
		case w.tasks <- task:
			return true
		default:
			return false
		}
	}
	return w.enqueueAndWait(ctx, task.Result, send)
}

// Status 获取队列状态
func (w *Worker) Status() WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerStatus{
		QueueLen: len(w.tasks),
		Busy:     w.busyTask,
		Skipped:  w.skipped,
		Closed:   w.isClosed,
	}
}

// --------------------------- 内部：统一入队与等待 ---------------------------

func (w *Worker) enqueueAndWait(ctx context.Context, result <-chan error, trySend func() bool) error {
	if w.isWorkerClosed() {
		return ErrWorkerClosed
	}

	switch {
	case trySend():
		// 已入队
	case w.isWorkerClosed():
		return ErrWorkerClosed
	default:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.ctx.Done():
			return ErrWorkerClosed
		default:
			return ErrTaskQueueFull
		}
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrWorkerClosed
	}
}

func (w *Worker) isWorkerClosed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isClosed
}

// --------------------------- 内部：工作协程与任务执行 ---------------------------

func (w *Worker) processTasks() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.tasks:
			w.executeTask(task)
		}
	}
}

func (w *Worker) executeTask(task *Task) {
	if err := task.Ctx.Err(); err != nil {
		w.mu.Lock()
		w.skipped++
		w.mu.Unlock()
		log.Printf("%s 跳过已取消的任务 %s", logPrefix, task.Name)
		w.deliverResult(task.Result, err, task.Ctx)
		return
	}

	w.setBusy(task.Name)
	err := task.Run(task.Ctx, w.modem)
	w.setBusy("")
	w.deliverResult(task.Result, err, task.Ctx)
}

func (w *Worker) setBusy(name string) {
	w.mu.Lock()
	w.busyTask = name
	w.mu.Unlock()
}

// deliverResult 将结果安全地回传到任务 Result 中
func (w *Worker) deliverResult(result chan<- error, err error, taskCtx context.Context) {
	select {
	case result <- err:
		// delivered
	case <-taskCtx.Done():
		// 任务上下文已取消，放弃投递
	case <-w.ctx.Done():
		// 工作者关闭，放弃投递
	default:
		timer := time.NewTimer(100 * time.Millisecond)
		select {
		case result <- err:
		case <-taskCtx.Done():
		case <-w.ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
}
