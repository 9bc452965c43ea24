package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/nsqio/go-nsq"
)

var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrTopicRequired = errors.New("topic is required")
)

// NSQProducer 单个 nsqd 上的多主题生产者
type NSQProducer struct {
	p    *nsq.Producer
	addr string
}

// NewNSQProducer 创建一个新的 NSQ 生产者
func NewNSQProducer(addr string) (*NSQProducer, error) {
	if addr == "" {
		return nil, errors.New("nsqd address is required")
	}
	cfg := nsq.NewConfig()
	cfg.UserAgent = defaultUserAgent
	p, err := nsq.NewProducer(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	p.SetLogger(log.New(os.Stdout, logPrefix, log.LstdFlags), nsq.LogLevelWarning)
	return &NSQProducer{p: p, addr: addr}, nil
}

// Ping 启动时确认 nsqd 可达
func (n *NSQProducer) Ping() error {
	if err := n.p.Ping(); err != nil {
		return fmt.Errorf("nsqd %s unreachable: %w", n.addr, err)
	}
	return nil
}

// Publish 走 PublishAsync,等待响应时 ctx 到期即返回,nsqd 的迟到响应由缓冲通道吸收
// 首次建连仍受 go-nsq 自身的拨号与读超时约束
func (n *NSQProducer) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrTopicRequired
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doneChan := make(chan *nsq.ProducerTransaction, 1)
	if err := n.p.PublishAsync(topic, payload, doneChan); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	select {
	case transaction := <-doneChan:
		if transaction.Error != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, transaction.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to topic %s: %w", topic, ctx.Err())
	}
}

func (n *NSQProducer) Stop() {
	if n.p != nil {
		n.p.Stop()
	}
}
