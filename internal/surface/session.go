package surface

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dialcode-gateway/internal/dialcode"
)

const (
	logPrefix   = "[Surface]"
	emitTimeout = 2 * time.Second
)

var (
	ErrHandleNotFound = errors.New("dialog or progress not found")
	ErrNotCancelable  = errors.New("progress is not cancelable")
)

// Session 一个前端连接对应的拨号盘:输入框 + 界面
type Session struct {
	ID        string
	Locale    string
	CreatedAt time.Time

	feed Feed

	mu             sync.Mutex
	text           string
	locked         bool
	filledByIntent bool
	lastSeen       time.Time
	dialogs        map[string]*dialogHandle
	progress       map[string]*progressHandle
}

var (
	_ dialcode.TextField = (*Session)(nil)
	_ dialcode.Surface   = (*Session)(nil)
)

// NewSession locale 为前端的 Accept-Language
func NewSession(feed Feed, locale string, locked bool) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Locale:    locale,
		CreatedAt: now,
		feed:      feed,
		locked:    locked,
		lastSeen:  now,
		dialogs:   make(map[string]*dialogHandle),
		progress:  make(map[string]*progressHandle),
	}
}

// ---------------- 输入框 ----------------

func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Replace 程序写入(如 SIM 联系人号码),同步给前端
func (s *Session) Replace(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
	s.emit(Event{Type: EventText, Text: text})
}

// Clear 清空输入并解除意图填充标记
func (s *Session) Clear() {
	s.mu.Lock()
	s.text = ""
	s.filledByIntent = false
	s.mu.Unlock()
	s.emit(Event{Type: EventText})
}

// SetInput 用户输入;由 tel: 意图填充的号码在清空之前不参与识别
func (s *Session) SetInput(text string) (dispatch bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.lastSeen = time.Now()
	if text == "" {
		s.filledByIntent = false
	}
	return !s.filledByIntent
}

// FillFromIntent tel: 意图带入号码
func (s *Session) FillFromIntent(number string) {
	s.mu.Lock()
	s.text = number
	s.filledByIntent = true
	s.mu.Unlock()
	s.emit(Event{Type: EventText, Text: number})
}

func (s *Session) FilledByIntent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filledByIntent
}

// Locked 锁屏/紧急拨号模式
func (s *Session) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

func (s *Session) SetLocked(locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = locked
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// ---------------- 界面 ----------------

func (s *Session) ShowDialog(dialog dialcode.Dialog) dialcode.DialogHandle {
	handle := &dialogHandle{session: s, id: uuid.NewString()}
	handle.attached.Store(true)

	s.mu.Lock()
	s.dialogs[handle.id] = handle
	s.mu.Unlock()

	s.emit(Event{
		Type:    EventDialog,
		Handle:  handle.id,
		Title:   dialog.Title,
		Message: dialog.Message,
		Lines:   append([]dialcode.DialogLine(nil), dialog.Lines...),
	})
	return handle
}

func (s *Session) Toast(text string) {
	s.emit(Event{Type: EventToast, Text: text})
}

func (s *Session) ShowProgress(progress dialcode.Progress) dialcode.ProgressHandle {
	handle := &progressHandle{
		session:    s,
		id:         uuid.NewString(),
		cancelable: progress.Cancelable,
		onCancel:   progress.OnCancel,
	}

	s.mu.Lock()
	s.progress[handle.id] = handle
	s.mu.Unlock()

	s.emit(Event{
		Type:       EventProgress,
		Handle:     handle.id,
		Title:      progress.Title,
		Message:    progress.Message,
		Cancelable: progress.Cancelable,
	})
	return handle
}

// DismissDialog 用户关闭对话框
func (s *Session) DismissDialog(id string) error {
	s.mu.Lock()
	handle, ok := s.dialogs[id]
	s.mu.Unlock()
	if !ok {
		return ErrHandleNotFound
	}
	handle.Dismiss()
	return nil
}

// CancelProgress 用户取消进度框,只能在 UI 循环上调用
func (s *Session) CancelProgress(id string) error {
	s.mu.Lock()
	handle, ok := s.progress[id]
	s.mu.Unlock()
	if !ok {
		return ErrHandleNotFound
	}
	if !handle.cancelable {
		return ErrNotCancelable
	}
	if handle.onCancel != nil {
		handle.onCancel()
	}
	handle.Dismiss()
	return nil
}

func (s *Session) emit(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	if _, err := s.feed.Append(ctx, s.ID, event); err != nil {
		log.Printf("%s 会话 %s 事件 %s 投递失败: %v", logPrefix, s.ID, event.Type, err)
	}
}

type dialogHandle struct {
	session  *Session
	id       string
	attached atomic.Bool
}

func (h *dialogHandle) SetLine(index int, value string) {
	if !h.attached.Load() {
		return
	}
	h.session.emit(Event{Type: EventDialogUpdate, Handle: h.id, Index: index, Value: value})
}

func (h *dialogHandle) Attached() bool {
	return h.attached.Load()
}

func (h *dialogHandle) Dismiss() {
	if !h.attached.CompareAndSwap(true, false) {
		return
	}
	h.session.mu.Lock()
	delete(h.session.dialogs, h.id)
	h.session.mu.Unlock()
	h.session.emit(Event{Type: EventDialogDismiss, Handle: h.id})
}

type progressHandle struct {
	session    *Session
	id         string
	cancelable bool
	onCancel   func()
	dismissed  atomic.Bool
}

func (h *progressHandle) Dismiss() {
	if !h.dismissed.CompareAndSwap(false, true) {
		return
	}
	h.session.mu.Lock()
	delete(h.session.progress, h.id)
	h.session.mu.Unlock()
	h.session.emit(Event{Type: EventProgressDismiss, Handle: h.id})
}
