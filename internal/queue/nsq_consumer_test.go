package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nalgeon/be"
	"github.com/nsqio/go-nsq"
)

type fakeDLQ struct {
	topic    string
	payloads [][]byte
	err      error
}

func (f *fakeDLQ) Publish(topic string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topic = topic
	f.payloads = append(f.payloads, body)
	return nil
}

func (f *fakeDLQ) Stop() {}

func testMessage(body string, attempts uint16) *nsq.Message {
	var id nsq.MessageID
	copy(id[:], "0123456789abcdef")
	message := nsq.NewMessage(id, []byte(body))
	message.Attempts = attempts
	return message
}

func newTestConsumer(handler HandlerFunc, dlq *fakeDLQ) *NSQConsumer {
	consumer := newConsumer(ConsumerConfig{
		Topic:                "intents.broadcast",
		Channel:              "secret-code-receiver",
		DLQTopic:             "intents.broadcast.DLQ",
		MaxAttemptsBeforeDLQ: 3,
		Handler:              handler,
	}, nil)
	if dlq != nil {
		consumer.dlqProducer = dlq
	}
	return consumer
}

func TestHandleMessageSuccess(t *testing.T) {
	var got []byte
	consumer := newTestConsumer(func(_ context.Context, payload []byte, _ uint16) error {
		got = payload
		return nil
	}, &fakeDLQ{})

	be.Err(t, consumer.handleMessage(testMessage(`{"action":"x"}`, 1)), nil)
	be.Equal(t, string(got), `{"action":"x"}`)
}

func TestHandleMessageRequeuesBeforeLimit(t *testing.T) {
	boom := errors.New("boom")
	dlq := &fakeDLQ{}
	consumer := newTestConsumer(func(context.Context, []byte, uint16) error { return boom }, dlq)

	be.Err(t, consumer.handleMessage(testMessage(`{}`, 2)), boom)
	be.Equal(t, len(dlq.payloads), 0)
}

func TestHandleMessageDeadLetters(t *testing.T) {
	dlq := &fakeDLQ{}
	consumer := newTestConsumer(func(context.Context, []byte, uint16) error {
		return errors.New("bad intent")
	}, dlq)

	be.Err(t, consumer.handleMessage(testMessage("not json", 3)), nil)
	be.Equal(t, dlq.topic, "intents.broadcast.DLQ")
	be.Equal(t, len(dlq.payloads), 1)

	var letter DeadLetter
	be.Err(t, json.Unmarshal(dlq.payloads[0], &letter), nil)
	be.Equal(t, letter.Topic, "intents.broadcast")
	be.Equal(t, letter.Channel, "secret-code-receiver")
	be.Equal(t, letter.Attempts, uint16(3))
	be.Equal(t, letter.Error, "bad intent")
	be.Equal(t, string(letter.Body), `"not json"`)
	be.Equal(t, letter.MessageID, "0123456789abcdef")
}

func TestHandleMessageDLQFailureRequeues(t *testing.T) {
	boom := errors.New("boom")
	consumer := newTestConsumer(func(context.Context, []byte, uint16) error { return boom },
		&fakeDLQ{err: errors.New("nsqd down")})

	be.Err(t, consumer.handleMessage(testMessage(`{}`, 5)), boom)
}

func TestHandleMessageWithoutDLQ(t *testing.T) {
	boom := errors.New("boom")
	consumer := newTestConsumer(func(context.Context, []byte, uint16) error { return boom }, nil)

	be.True(t, !consumer.IsDLQEnabled())
	be.Err(t, consumer.handleMessage(testMessage(`{}`, 9)), boom)
}

func TestValidateConsumerConfig(t *testing.T) {
	handler := func(context.Context, []byte, uint16) error { return nil }

	be.True(t, validateConsumerConfig(ConsumerConfig{Channel: "c", Handler: handler, NsqdAddresses: []string{"a"}}) != nil)
	be.True(t, validateConsumerConfig(ConsumerConfig{Topic: "t", Handler: handler, NsqdAddresses: []string{"a"}}) != nil)
	be.True(t, validateConsumerConfig(ConsumerConfig{Topic: "t", Channel: "c", NsqdAddresses: []string{"a"}}) != nil)
	be.True(t, validateConsumerConfig(ConsumerConfig{Topic: "t", Channel: "c", Handler: handler}) != nil)
	be.Err(t, validateConsumerConfig(ConsumerConfig{Topic: "t", Channel: "c", Handler: handler, LookupdAddresses: []string{"l"}}), nil)
}

func TestProducerValidatesBeforePublish(t *testing.T) {
	producer, err := NewNSQProducer("127.0.0.1:4150")
	be.Err(t, err, nil)
	defer producer.Stop()

	be.Err(t, producer.Publish(context.Background(), "", []byte("x")), ErrTopicRequired)
	be.Err(t, producer.Publish(context.Background(), "t", nil), ErrEmptyPayload)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	be.Err(t, producer.Publish(ctx, "t", []byte("x")), context.Canceled)
}
