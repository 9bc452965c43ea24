package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultFeedTTL = 10 * time.Minute

	redisKeyEventsFormat = "%s:feed:%s"
	redisKeySeqFormat    = "%s:feed:%s:seq"
)

// RedisFeed 每个会话一个 Redis 列表,只做短期投递缓冲(过期即丢)
type RedisFeed struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	maxEvents int64
}

// NewRedisFeed 创建 Redis 事件缓冲
func NewRedisFeed(client *redis.Client, namespace string, ttl time.Duration, maxEvents int64) *RedisFeed {
	if ttl <= 0 {
		ttl = defaultFeedTTL
	}
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &RedisFeed{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		maxEvents: maxEvents,
	}
}

// Append INCR 取序号后 RPUSH,并刷新过期时间、裁剪长度
func (feed *RedisFeed) Append(ctx context.Context, sessionID string, event Event) (Event, error) {
	seqKey := feed.buildSeqKey(sessionID)
	seq, err := feed.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return Event{}, fmt.Errorf("failed to allocate event seq: %w", err)
	}

	event.Seq = seq
	if event.At == 0 {
		event.At = time.Now().UnixMilli()
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	eventsKey := feed.buildEventsKey(sessionID)
	_, err = feed.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, eventsKey, eventJSON)
		pipe.LTrim(ctx, eventsKey, -feed.maxEvents, -1)
		pipe.Expire(ctx, eventsKey, feed.ttl)
		pipe.Expire(ctx, seqKey, feed.ttl)
		return nil
	})
	if err != nil {
		return Event{}, fmt.Errorf("failed to push event to redis: %w", err)
	}
	return event, nil
}

func (feed *RedisFeed) Since(ctx context.Context, sessionID string, after int64) ([]Event, error) {
	dataList, err := feed.client.LRange(ctx, feed.buildEventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events from redis: %w", err)
	}
	return eventsAfter(feed.parseEventList(dataList), after), nil
}

func (feed *RedisFeed) Drop(ctx context.Context, sessionID string) error {
	if err := feed.client.Del(ctx, feed.buildEventsKey(sessionID), feed.buildSeqKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to drop session feed: %w", err)
	}
	return nil
}

// Ping 启动时检查连接
func (feed *RedisFeed) Ping(ctx context.Context) error {
	return feed.client.Ping(ctx).Err()
}

func (feed *RedisFeed) buildEventsKey(sessionID string) string {
	return fmt.Sprintf(redisKeyEventsFormat, feed.namespace, sessionID)
}

func (feed *RedisFeed) buildSeqKey(sessionID string) string {
	return fmt.Sprintf(redisKeySeqFormat, feed.namespace, sessionID)
}

func (feed *RedisFeed) parseEventList(dataList []string) []Event {
	events := make([]Event, 0, len(dataList))
	for _, data := range dataList {
		var event Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			log.Printf("[RedisFeed] 丢弃无法解析的事件: %v", err)
			continue
		}
		events = append(events, event)
	}
	return events
}
