package queue

import "context"

// Producer 按主题投递消息,满足 intent.Publisher
type Producer interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Stop()
}

// Consumer 阻塞运行直到 Stop
type Consumer interface {
	Run() error
	Stop()
}
