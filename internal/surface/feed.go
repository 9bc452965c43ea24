// Package surface 拨号盘会话:输入框、对话框、提示与进度框以事件形式投递给前端
package surface

import (
	"context"
	"errors"
	"sync"
	"time"

	"dialcode-gateway/internal/dialcode"
)

// 事件类型
const (
	EventDialog          = "dialog"
	EventDialogUpdate    = "dialog_update"
	EventDialogDismiss   = "dialog_dismiss"
	EventToast           = "toast"
	EventProgress        = "progress"
	EventProgressDismiss = "progress_dismiss"
	EventText            = "text"
)

const defaultMaxEvents = 200

// ErrSessionNotFound 会话不存在或已过期
var ErrSessionNotFound = errors.New("dialpad session not found")

// Event 前端按 Seq 顺序消费的界面事件
type Event struct {
	Seq        int64                 `json:"seq"`
	Type       string                `json:"type"`
	Handle     string                `json:"handle,omitempty"` // 对话框/进度框 id
	Title      string                `json:"title,omitempty"`
	Message    string                `json:"message,omitempty"`
	Lines      []dialcode.DialogLine `json:"lines,omitempty"`
	Index      int                   `json:"index,omitempty"`
	Value      string                `json:"value,omitempty"`
	Text       string                `json:"text,omitempty"`
	Cancelable bool                  `json:"cancelable,omitempty"`
	At         int64                 `json:"at"`
}

// Feed 会话事件的临时缓冲,只保留最近的事件
type Feed interface {
	// Append 分配 Seq 并追加
	Append(ctx context.Context, sessionID string, event Event) (Event, error)
	// Since 返回 Seq 大于 after 的事件
	Since(ctx context.Context, sessionID string, after int64) ([]Event, error)
	Drop(ctx context.Context, sessionID string) error
}

// MemoryFeed 未配置 Redis 时使用
type MemoryFeed struct {
	mu        sync.Mutex
	maxEvents int
	sessions  map[string]*memoryStream
}

type memoryStream struct {
	seq    int64
	events []Event
}

// NewMemoryFeed 每个会话最多保留 maxEvents 条
func NewMemoryFeed(maxEvents int) *MemoryFeed {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &MemoryFeed{
		maxEvents: maxEvents,
		sessions:  make(map[string]*memoryStream),
	}
}

func (feed *MemoryFeed) Append(_ context.Context, sessionID string, event Event) (Event, error) {
	feed.mu.Lock()
	defer feed.mu.Unlock()

	stream, ok := feed.sessions[sessionID]
	if !ok {
		stream = &memoryStream{}
		feed.sessions[sessionID] = stream
	}

	stream.seq++
	event.Seq = stream.seq
	if event.At == 0 {
		event.At = time.Now().UnixMilli()
	}
	stream.events = append(stream.events, event)
	if overflow := len(stream.events) - feed.maxEvents; overflow > 0 {
		stream.events = stream.events[overflow:]
	}
	return event, nil
}

func (feed *MemoryFeed) Since(_ context.Context, sessionID string, after int64) ([]Event, error) {
	feed.mu.Lock()
	defer feed.mu.Unlock()

	stream, ok := feed.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return eventsAfter(stream.events, after), nil
}

func (feed *MemoryFeed) Drop(_ context.Context, sessionID string) error {
	feed.mu.Lock()
	defer feed.mu.Unlock()
	delete(feed.sessions, sessionID)
	return nil
}

func eventsAfter(events []Event, after int64) []Event {
	var out []Event
	for _, event := range events {
		if event.Seq > after {
			out = append(out, event)
		}
	}
	return out
}
