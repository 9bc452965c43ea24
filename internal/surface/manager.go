package surface

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"dialcode-gateway/internal/dialcode"
	"dialcode-gateway/internal/ui"
)

// EnvironmentSource 按会话锁屏状态给出环境视图
type EnvironmentSource interface {
	ForSession(locked bool) dialcode.Environment
}

// LocalizerFunc 按会话语言取字符串目录
type LocalizerFunc func(locale string) dialcode.Localizer

// Manager 拨号盘会话管理;所有改动输入框或触发识别的操作都投递到 UI 循环上执行
type Manager struct {
	looper     *ui.Looper
	dispatcher *dialcode.Dispatcher
	env        EnvironmentSource
	strings    LocalizerFunc
	feed       Feed

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器
func NewManager(looper *ui.Looper, dispatcher *dialcode.Dispatcher, env EnvironmentSource, localize LocalizerFunc, feed Feed) *Manager {
	return &Manager{
		looper:     looper,
		dispatcher: dispatcher,
		env:        env,
		strings:    localize,
		feed:       feed,
		sessions:   make(map[string]*Session),
	}
}

// Create 新建会话
func (m *Manager) Create(locale string, locked bool) *Session {
	session := NewSession(m.feed, locale, locked)

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	log.Printf("%s 新会话 %s (locale=%s locked=%v)", logPrefix, session.ID, locale, locked)
	return session
}

// Get 查找会话
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch()
	return session, nil
}

// Input 输入框文本变化;命中特殊序列时清空输入并返回 true
func (m *Manager) Input(ctx context.Context, id, text string) (bool, error) {
	session, err := m.Get(id)
	if err != nil {
		return false, err
	}

	var handled bool
	err = m.looper.PostWait(ctx, func(loopCtx context.Context) {
		if !session.SetInput(text) {
			return
		}
		handled = m.dispatcher.Handle(loopCtx, m.host(session), text, session)
		if handled {
			session.Clear()
		}
	})
	return handled, err
}

// Emergency 紧急拨号界面的输入,结果不回填
func (m *Manager) Emergency(ctx context.Context, id, text string) (bool, error) {
	session, err := m.Get(id)
	if err != nil {
		return false, err
	}

	var handled bool
	err = m.looper.PostWait(ctx, func(loopCtx context.Context) {
		handled = m.dispatcher.HandleEmergency(loopCtx, m.host(session), text)
	})
	return handled, err
}

// FillFromIntent tel: URI 带入号码,字母按键盘映射为数字
func (m *Manager) FillFromIntent(ctx context.Context, id, uri string) (string, error) {
	session, err := m.Get(id)
	if err != nil {
		return "", err
	}

	number := dialcode.ConvertKeypadLetters(strings.TrimPrefix(uri, "tel:"))
	err = m.looper.PostWait(ctx, func(context.Context) {
		session.FillFromIntent(number)
	})
	return number, err
}

// Clear 清空输入框
func (m *Manager) Clear(ctx context.Context, id string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.looper.PostWait(ctx, func(context.Context) {
		session.Clear()
	})
}

// SetLocked 切换锁屏/紧急模式
func (m *Manager) SetLocked(ctx context.Context, id string, locked bool) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.looper.PostWait(ctx, func(context.Context) {
		session.SetLocked(locked)
	})
}

// Background 拨号盘转入后台,取消进行中的 SIM 联系人查询
func (m *Manager) Background(ctx context.Context, id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	return m.looper.PostWait(ctx, func(loopCtx context.Context) {
		m.dispatcher.Cleanup(loopCtx)
	})
}

// CancelProgress 用户取消进度框,与查询回填一样在 UI 循环上执行
func (m *Manager) CancelProgress(ctx context.Context, id, handle string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	var cancelErr error
	err = m.looper.PostWait(ctx, func(context.Context) {
		cancelErr = session.CancelProgress(handle)
	})
	if err != nil {
		return err
	}
	return cancelErr
}

// DismissDialog 用户关闭对话框
func (m *Manager) DismissDialog(ctx context.Context, id, handle string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	var dismissErr error
	err = m.looper.PostWait(ctx, func(context.Context) {
		dismissErr = session.DismissDialog(handle)
	})
	if err != nil {
		return err
	}
	return dismissErr
}

// Events 拉取 after 之后的事件
func (m *Manager) Events(ctx context.Context, id string, after int64) ([]Event, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	return m.feed.Since(ctx, id, after)
}

// Close 结束会话并丢弃事件
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return m.feed.Drop(ctx, id)
}

// Sweep 关闭空闲超过 idle 的会话,返回关闭数量
func (m *Manager) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	m.mu.RLock()
	var stale []string
	for id, session := range m.sessions {
		if session.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		if err := m.Close(ctx, id); err != nil {
			log.Printf("%s 清理会话 %s 失败: %v", logPrefix, id, err)
		}
	}
	return len(stale)
}

// Count 当前会话数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) host(session *Session) dialcode.Host {
	return dialcode.Host{
		Env:     m.env.ForSession(session.Locked()),
		Surface: session,
		Strings: m.strings(session.Locale),
	}
}
