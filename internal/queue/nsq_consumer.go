package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nsqio/go-nsq"
)

// ==================== 常量定义 ====================

const (
	// 默认超时时间
	defaultMessageHandleTimeout = 30 * time.Second

	// 用户代理标识
	defaultUserAgent = "dialcode-gateway"

	// 日志前缀
	logPrefix = "[nsq] "

	errorMessageTopicRequired        = "topic is required"
	errorMessageChannelRequired      = "channel is required"
	errorMessageHandlerRequired      = "handler is required"
	errorMessageNoAddressConfigured  = "no nsqd address or lookupd configured"
	errorMessageDLQPublishFailed     = "failed to publish message to DLQ"
	errorMessageConsumerCreationFail = "failed to create NSQ consumer"
)

// ==================== 类型定义 ====================

// HandlerFunc 消息处理函数类型
type HandlerFunc func(ctx context.Context, payload []byte, attempts uint16) error

// dlqPublisher 死信投递,*nsq.Producer 满足该接口
type dlqPublisher interface {
	Publish(topic string, body []byte) error
	Stop()
}

// DeadLetter 投递到死信主题的信封,保留来源与最后一次错误
type DeadLetter struct {
	Topic     string          `json:"topic"`
	Channel   string          `json:"channel"`
	Attempts  uint16          `json:"attempts"`
	Error     string          `json:"error"`
	Body      json.RawMessage `json:"body"`
	FailedAt  time.Time       `json:"failed_at"`
	MessageID string          `json:"message_id"`
}

// NSQConsumer NSQ 消费者
type NSQConsumer struct {
	topic   string
	channel string

	// 连接地址
	nsqdAddresses    []string // nsqd TCP 地址
	lookupdAddresses []string // lookupd HTTP 地址

	consumer *nsq.Consumer
	handler  HandlerFunc

	concurrency int

	// DLQ (死信队列) 配置
	dlqTopic             string
	maxAttemptsBeforeDLQ uint16
	dlqProducer          dlqPublisher

	messageHandleTimeout time.Duration
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Topic                string
	Channel              string
	MaxInFlight          int
	Concurrency          int
	NsqdAddresses        []string
	LookupdAddresses     []string
	DLQTopic             string
	MaxAttemptsBeforeDLQ uint16
	MessageHandleTimeout time.Duration
	Handler              HandlerFunc
}

// ==================== 构造函数 ====================

// NewNSQConsumer 从配置创建 NSQ 消费者
func NewNSQConsumer(config ConsumerConfig) (*NSQConsumer, error) {
	if err := validateConsumerConfig(config); err != nil {
		return nil, err
	}

	consumer, err := nsq.NewConsumer(config.Topic, config.Channel, createNSQConfig(config.MaxInFlight))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageConsumerCreationFail, err)
	}
	consumer.SetLogger(log.New(os.Stdout, logPrefix, log.LstdFlags), nsq.LogLevelInfo)

	return newConsumer(config, consumer), nil
}

func newConsumer(config ConsumerConfig, consumer *nsq.Consumer) *NSQConsumer {
	timeout := config.MessageHandleTimeout
	if timeout == 0 {
		timeout = defaultMessageHandleTimeout
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &NSQConsumer{
		topic:                config.Topic,
		channel:              config.Channel,
		nsqdAddresses:        config.NsqdAddresses,
		lookupdAddresses:     config.LookupdAddresses,
		consumer:             consumer,
		handler:              config.Handler,
		concurrency:          concurrency,
		dlqTopic:             config.DLQTopic,
		maxAttemptsBeforeDLQ: config.MaxAttemptsBeforeDLQ,
		messageHandleTimeout: timeout,
	}
}

// ==================== 配置验证 ====================

func validateConsumerConfig(config ConsumerConfig) error {
	if config.Topic == "" {
		return errors.New(errorMessageTopicRequired)
	}

	if config.Channel == "" {
		return errors.New(errorMessageChannelRequired)
	}

	if config.Handler == nil {
		return errors.New(errorMessageHandlerRequired)
	}

	if len(config.NsqdAddresses) == 0 && len(config.LookupdAddresses) == 0 {
		return errors.New(errorMessageNoAddressConfigured)
	}

	return nil
}

func createNSQConfig(maxInFlight int) *nsq.Config {
	config := nsq.NewConfig()

	if maxInFlight > 0 {
		config.MaxInFlight = maxInFlight
	}

	config.UserAgent = defaultUserAgent

	return config
}

// ==================== DLQ 配置 ====================

// AttachDLQProducer 附加 DLQ 生产者
func (consumer *NSQConsumer) AttachDLQProducer(nsqdAddress string) error {
	if !consumer.isDLQConfigured() || nsqdAddress == "" {
		return nil
	}

	producer, err := nsq.NewProducer(nsqdAddress, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("failed to create DLQ producer: %w", err)
	}
	producer.SetLogger(log.New(os.Stdout, logPrefix, log.LstdFlags), nsq.LogLevelWarning)

	consumer.dlqProducer = producer
	return nil
}

func (consumer *NSQConsumer) isDLQConfigured() bool {
	return consumer.dlqTopic != ""
}

// ==================== 消息处理 ====================

// Run 连接并阻塞直到 Stop
func (consumer *NSQConsumer) Run() error {
	consumer.consumer.AddConcurrentHandlers(nsq.HandlerFunc(consumer.handleMessage), consumer.concurrency)

	if err := consumer.connectToNSQ(); err != nil {
		return err
	}

	<-consumer.consumer.StopChan
	return nil
}

// handleMessage 处理单条消息,返回 error 时由 NSQ 重新投递
func (consumer *NSQConsumer) handleMessage(message *nsq.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), consumer.messageHandleTimeout)
	defer cancel()

	err := consumer.handler(ctx, message.Body, message.Attempts)
	if err == nil {
		return nil
	}

	return consumer.handleFailedMessage(message, err)
}

func (consumer *NSQConsumer) handleFailedMessage(message *nsq.Message, originalError error) error {
	if !consumer.shouldSendToDLQ(message) {
		return originalError
	}

	if err := consumer.sendMessageToDLQ(message, originalError); err != nil {
		log.Printf("%s: %v, original error: %v", errorMessageDLQPublishFailed, err, originalError)
		return originalError
	}

	// 成功发送到 DLQ，返回 nil 告诉 NSQ 不再重试
	log.Printf("Message sent to DLQ %s after %d attempts", consumer.dlqTopic, message.Attempts)
	return nil
}

func (consumer *NSQConsumer) shouldSendToDLQ(message *nsq.Message) bool {
	if !consumer.isDLQConfigured() || consumer.dlqProducer == nil {
		return false
	}
	return message.Attempts >= consumer.maxAttemptsBeforeDLQ
}

func (consumer *NSQConsumer) sendMessageToDLQ(message *nsq.Message, cause error) error {
	letter := DeadLetter{
		Topic:     consumer.topic,
		Channel:   consumer.channel,
		Attempts:  message.Attempts,
		Error:     cause.Error(),
		Body:      rawBody(message.Body),
		FailedAt:  time.Now(),
		MessageID: string(message.ID[:]),
	}
	payload, err := json.Marshal(letter)
	if err != nil {
		return err
	}
	return consumer.dlqProducer.Publish(consumer.dlqTopic, payload)
}

// rawBody 非 JSON 消息体按字符串嵌入
func rawBody(body []byte) json.RawMessage {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// ==================== 连接管理 ====================

func (consumer *NSQConsumer) connectToNSQ() error {
	for _, address := range consumer.nsqdAddresses {
		if err := consumer.consumer.ConnectToNSQD(address); err != nil {
			return fmt.Errorf("failed to connect to nsqd %s: %w", address, err)
		}
		log.Printf("Connected to nsqd: %s", address)
	}

	for _, address := range consumer.lookupdAddresses {
		if err := consumer.consumer.ConnectToNSQLookupd(address); err != nil {
			return fmt.Errorf("failed to connect to lookupd %s: %w", address, err)
		}
		log.Printf("Connected to lookupd: %s", address)
	}

	return nil
}

// ==================== 生命周期管理 ====================

// Stop 停止消费者
func (consumer *NSQConsumer) Stop() {
	if consumer.consumer != nil {
		log.Printf("Stopping NSQ consumer for topic: %s", consumer.topic)
		consumer.consumer.Stop()
	}
	if consumer.dlqProducer != nil {
		log.Printf("Stopping DLQ producer for topic: %s", consumer.dlqTopic)
		consumer.dlqProducer.Stop()
	}
}

// ==================== 状态查询 ====================

// IsConnected 检查是否已连接
func (consumer *NSQConsumer) IsConnected() bool {
	return consumer.consumer.Stats().Connections > 0
}

// IsDLQEnabled 检查是否启用了 DLQ
func (consumer *NSQConsumer) IsDLQEnabled() bool {
	return consumer.isDLQConfigured() && consumer.dlqProducer != nil
}
