package intent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const logPrefix = "[IntentBus]"

// Publisher 底层消息发布者(NSQ 生产者或内存记录器)
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Resolver 判断显式/隐式意图在本机是否有处理者
type Resolver struct {
	components map[string]bool
	actions    map[string]bool
}

// NewResolver 由已安装组件(<package>/<class>)与已注册 action 构建解析器
func NewResolver(components, actions []string) *Resolver {
	resolver := &Resolver{
		components: make(map[string]bool, len(components)),
		actions:    make(map[string]bool, len(actions)),
	}
	for _, component := range components {
		resolver.components[component] = true
	}
	for _, action := range actions {
		resolver.actions[action] = true
	}
	return resolver
}

// Resolve 找不到处理者时返回 ErrActivityNotFound
func (resolver *Resolver) Resolve(in Intent) error {
	if component := in.Component(); component != "" {
		if resolver.components[component] {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrActivityNotFound, component)
	}

	if in.Action != "" && resolver.actions[in.Action] {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrActivityNotFound, in.Action)
}

var (
	ErrBusFull   = errors.New("intent bus backlog is full")
	ErrBusClosed = errors.New("intent bus is closed")
)

const (
	defaultDeliveryBacklog = 64
	deliveryTimeout        = 10 * time.Second
)

// delivery 待投递的意图,flushed 非空时只是一个屏障
type delivery struct {
	topic   string
	intent  Intent
	payload []byte
	flushed chan struct{}
}

// Bus 拨号盘的意图出口
// 解析在调用方同步完成,投递由后台协程串行执行,调用方(UI 循环)从不等待 nsqd
type Bus struct {
	publisher      Publisher
	resolver       *Resolver
	broadcastTopic string
	activityTopic  string

	deliveries chan delivery
	failed     atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewBus 创建意图总线并启动投递协程
func NewBus(publisher Publisher, resolver *Resolver, broadcastTopic, activityTopic string) *Bus {
	return NewBusWithBacklog(publisher, resolver, broadcastTopic, activityTopic, defaultDeliveryBacklog)
}

// NewBusWithBacklog backlog 为投递队列长度
func NewBusWithBacklog(publisher Publisher, resolver *Resolver, broadcastTopic, activityTopic string, backlog int) *Bus {
	if backlog <= 0 {
		backlog = defaultDeliveryBacklog
	}
	bus := &Bus{
		publisher:      publisher,
		resolver:       resolver,
		broadcastTopic: broadcastTopic,
		activityTopic:  activityTopic,
		deliveries:     make(chan delivery, backlog),
		done:           make(chan struct{}),
	}
	go bus.run()
	return bus
}

// SendBroadcast 广播是发后即忘的,没有接收者不算错误
func (bus *Bus) SendBroadcast(_ context.Context, in Intent) error {
	return bus.enqueue(bus.broadcastTopic, in)
}

// StartActivity 先同步解析处理者,再排队投递到启动主题
func (bus *Bus) StartActivity(_ context.Context, in Intent) error {
	if err := bus.resolver.Resolve(in); err != nil {
		return err
	}
	return bus.enqueue(bus.activityTopic, in)
}

// Failed 投递失败的累计次数
func (bus *Bus) Failed() int64 {
	return bus.failed.Load()
}

// Flush 等待此前排队的意图全部投递完毕
func (bus *Bus) Flush(ctx context.Context) error {
	flushed := make(chan struct{})

	bus.mu.RLock()
	if bus.closed {
		bus.mu.RUnlock()
		return ErrBusClosed
	}
	select {
	case bus.deliveries <- delivery{flushed: flushed}:
		bus.mu.RUnlock()
	case <-ctx.Done():
		bus.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收新意图,投递完已排队的意图后返回
func (bus *Bus) Close() {
	bus.mu.Lock()
	if !bus.closed {
		bus.closed = true
		close(bus.deliveries)
	}
	bus.mu.Unlock()
	<-bus.done
}

// enqueue 不阻塞,队列满时直接报错
func (bus *Bus) enqueue(topic string, in Intent) error {
	payload, err := in.Marshal()
	if err != nil {
		return err
	}

	bus.mu.RLock()
	defer bus.mu.RUnlock()
	if bus.closed {
		return ErrBusClosed
	}

	select {
	case bus.deliveries <- delivery{topic: topic, intent: in, payload: payload}:
		return nil
	default:
		return fmt.Errorf("%s -> %s: %w", in, topic, ErrBusFull)
	}
}

func (bus *Bus) run() {
	defer close(bus.done)

	for item := range bus.deliveries {
		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		bus.deliver(item)
	}
}

func (bus *Bus) deliver(item delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := bus.publisher.Publish(ctx, item.topic, item.payload); err != nil {
		bus.failed.Add(1)
		log.Printf("%s ❌ %s -> %s 投递失败: %v", logPrefix, item.intent, item.topic, err)
		return
	}
	log.Printf("%s %s -> %s", logPrefix, item.intent, item.topic)
}

// Recorder 记录型发布者,用于关闭 NSQ 的部署与测试
type Recorder struct {
	mu       sync.Mutex
	limit    int
	messages []Recorded
}

// Recorded 一条被记录的消息
type Recorded struct {
	Topic  string
	Intent Intent
}

// NewRecorder 最多保留 limit 条最近的消息
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{limit: limit}
}

// Publish 实现 Publisher
func (recorder *Recorder) Publish(ctx context.Context, topic string, payload []byte) error {
	in, err := Unmarshal(payload)
	if err != nil {
		return err
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	recorder.messages = append(recorder.messages, Recorded{Topic: topic, Intent: in})
	if overflow := len(recorder.messages) - recorder.limit; overflow > 0 {
		recorder.messages = recorder.messages[overflow:]
	}
	return nil
}

// Messages 返回已记录消息的副本
func (recorder *Recorder) Messages() []Recorded {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	out := make([]Recorded, len(recorder.messages))
	copy(out, recorder.messages)
	return out
}
