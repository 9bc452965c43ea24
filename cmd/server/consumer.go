package main

import (
	"context"
	"log"
	"sync"
	"time"

	"dialcode-gateway/internal/intent"
	"dialcode-gateway/internal/queue"
)

//
// 常量定义
//

const (
	messageProcessingTimeout = 30 * time.Second
	loopbackMaxAttempts      = 3
)

//
// 消费者接口定义
//

// QueueConsumer 队列消费者接口
type QueueConsumer interface {
	queue.Consumer
	AttachDLQProducer(address string) error
}

//
// 暗码广播消费者
//

// SecretCodeConsumerManager 暗码接收器的消费者管理器
// 启用 NSQ 时订阅广播主题,否则挂到本地回环发布者上
type SecretCodeConsumerManager struct {
	app            *AppContext
	consumerConfig ConsumerConfig

	mu       sync.Mutex
	consumer QueueConsumer
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	topic                string
	channel              string
	maxInFlight          int
	concurrency          int
	nsqdAddresses        []string
	lookupdAddresses     []string
	dlqTopic             string
	dlqProducerAddress   string
	maxAttemptsBeforeDLQ uint16
}

// NewSecretCodeConsumerManager 创建暗码消费者管理器实例
func NewSecretCodeConsumerManager(appContext *AppContext) *SecretCodeConsumerManager {
	intents := appContext.Config.Intents

	return &SecretCodeConsumerManager{
		app: appContext,
		consumerConfig: ConsumerConfig{
			topic:                intents.BroadcastTopic,
			channel:              appContext.Config.Receiver.Channel,
			maxInFlight:          intents.MaxInFlight,
			concurrency:          intents.Concurrency,
			nsqdAddresses:        intents.NsqdTCPAddrs,
			lookupdAddresses:     intents.LookupdHTTPAddrs,
			dlqTopic:             intents.DLQTopic,
			dlqProducerAddress:   intents.ProducerAddr,
			maxAttemptsBeforeDLQ: uint16(intents.MaxConsumeAttemptsBeforeDLQ),
		},
	}
}

// Start 启动暗码接收
func (manager *SecretCodeConsumerManager) Start() {
	if !manager.isReceiverEnabled() {
		log.Println("[SecretCodeConsumer] 接收器未启用,跳过启动")
		return
	}

	if !manager.isNSQEnabled() {
		manager.app.Loopback.Attach(manager.app.Receiver.Consume)
		log.Println("[SecretCodeConsumer] NSQ 未启用,暗码广播走本地回环")
		return
	}

	consumer := manager.createConsumer()
	manager.attachDeadLetterQueue(consumer)
	manager.runConsumerInBackground(consumer)

	log.Println("[SecretCodeConsumer] 暗码广播消费者启动成功")
}

// Stop 停止消费者
func (manager *SecretCodeConsumerManager) Stop() {
	manager.mu.Lock()
	consumer := manager.consumer
	manager.consumer = nil
	manager.mu.Unlock()

	if consumer != nil {
		consumer.Stop()
	}
}

// isReceiverEnabled 检查接收器是否启用
func (manager *SecretCodeConsumerManager) isReceiverEnabled() bool {
	return manager.app.Config.Receiver.Enabled
}

// isNSQEnabled 配置了 NSQ 且有可订阅的地址
func (manager *SecretCodeConsumerManager) isNSQEnabled() bool {
	return manager.app.Producer != nil &&
		(len(manager.consumerConfig.nsqdAddresses) > 0 || len(manager.consumerConfig.lookupdAddresses) > 0)
}

// createConsumer 创建消费者实例
func (manager *SecretCodeConsumerManager) createConsumer() QueueConsumer {
	consumer, err := queue.NewNSQConsumer(queue.ConsumerConfig{
		Topic:                manager.consumerConfig.topic,
		Channel:              manager.consumerConfig.channel,
		MaxInFlight:          manager.consumerConfig.maxInFlight,
		Concurrency:          manager.consumerConfig.concurrency,
		NsqdAddresses:        manager.consumerConfig.nsqdAddresses,
		LookupdAddresses:     manager.consumerConfig.lookupdAddresses,
		DLQTopic:             manager.consumerConfig.dlqTopic,
		MaxAttemptsBeforeDLQ: manager.consumerConfig.maxAttemptsBeforeDLQ,
		MessageHandleTimeout: messageProcessingTimeout,
		Handler:              manager.app.Receiver.Consume,
	})
	if err != nil {
		log.Fatalf("[SecretCodeConsumer] 创建消费者失败: %v", err)
	}

	return consumer
}

// attachDeadLetterQueue 附加死信队列
func (manager *SecretCodeConsumerManager) attachDeadLetterQueue(consumer QueueConsumer) {
	if !manager.shouldAttachDLQ() {
		return
	}

	if err := consumer.AttachDLQProducer(manager.consumerConfig.dlqProducerAddress); err != nil {
		log.Fatalf("[SecretCodeConsumer] 附加死信队列失败: %v", err)
	}

	log.Printf("[SecretCodeConsumer] 死信队列附加成功: %s", manager.consumerConfig.dlqTopic)
}

// shouldAttachDLQ 检查是否需要附加死信队列
func (manager *SecretCodeConsumerManager) shouldAttachDLQ() bool {
	return manager.consumerConfig.dlqTopic != "" &&
		manager.consumerConfig.dlqProducerAddress != ""
}

// runConsumerInBackground 在后台运行消费者
func (manager *SecretCodeConsumerManager) runConsumerInBackground(consumer QueueConsumer) {
	manager.mu.Lock()
	manager.consumer = consumer
	manager.mu.Unlock()

	go func() {
		if err := consumer.Run(); err != nil {
			log.Printf("[SecretCodeConsumer] 消费者运行失败: %v", err)
		}
	}()
}

//
// 本地回环发布者
//

// LoopbackPublisher 包装意图发布者
// 广播主题上的消息在发布成功后再交给本地接收器,模拟 NSQ 订阅
type LoopbackPublisher struct {
	next           intent.Publisher
	broadcastTopic string

	mu      sync.RWMutex
	deliver queue.HandlerFunc
}

// NewLoopbackPublisher 创建回环发布者,Attach 之前只做转发
func NewLoopbackPublisher(next intent.Publisher, broadcastTopic string) *LoopbackPublisher {
	return &LoopbackPublisher{next: next, broadcastTopic: broadcastTopic}
}

// Attach 设置本地接收函数
func (publisher *LoopbackPublisher) Attach(deliver queue.HandlerFunc) {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.deliver = deliver
}

// Publish 满足 intent.Publisher
func (publisher *LoopbackPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := publisher.next.Publish(ctx, topic, payload); err != nil {
		return err
	}

	publisher.mu.RLock()
	deliver := publisher.deliver
	publisher.mu.RUnlock()

	if deliver == nil || topic != publisher.broadcastTopic {
		return nil
	}

	body := append([]byte(nil), payload...)
	go deliverWithRetry(deliver, body)
	return nil
}

// deliverWithRetry 发后即忘,失败按尝试次数重试
func deliverWithRetry(deliver queue.HandlerFunc, payload []byte) {
	for attempt := uint16(1); attempt <= loopbackMaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), messageProcessingTimeout)
		err := deliver(ctx, payload, attempt)
		cancel()

		if err == nil {
			return
		}
		log.Printf("[Loopback] 本地投递失败(尝试:%d): %v", attempt, err)
	}
	log.Printf("[Loopback] 本地投递放弃: %s", payload)
}

//
// 外部调用接口
//

// startSecretCodeConsumer 启动暗码消费者
func startSecretCodeConsumer(app *AppContext) *SecretCodeConsumerManager {
	manager := NewSecretCodeConsumerManager(app)
	manager.Start()
	return manager
}
