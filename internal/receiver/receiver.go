// Package receiver 消费意图总线上的暗码广播,按暗码分派到内置处理器
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"dialcode-gateway/internal/config"
	"dialcode-gateway/internal/dialcode"
	"dialcode-gateway/internal/idempotency"
	"dialcode-gateway/internal/intent"
)

const (
	logPrefix        = "[SecretCodeReceiver]"
	defaultDedupeTTL = 10 * time.Minute
)

// 内置处理的暗码
const (
	CodeEngineerMode = "3878"
	CodeDiagPort     = "76278"
	CodeFactorySet   = "38378"
)

// Handler 处理一条暗码,返回 error 时消息会被重新投递
type Handler func(ctx context.Context, code string) error

// Activities 启动组件
type Activities interface {
	StartActivity(ctx context.Context, in intent.Intent) error
}

// Stats 接收计数
type Stats struct {
	Received   int64 `json:"received"`
	Suppressed int64 `json:"suppressed"`
	Handled    int64 `json:"handled"`
	Unknown    int64 `json:"unknown"`
	Ignored    int64 `json:"ignored"`
	Duplicate  int64 `json:"duplicate"`
}

// Receiver 暗码广播接收器,注册在启动阶段完成,之后只读
type Receiver struct {
	suppressed map[string]bool
	handlers   map[string]Handler
	dedupe     idempotency.Checker
	dedupeTTL  time.Duration

	received  atomic.Int64
	dropped   atomic.Int64
	handled   atomic.Int64
	unknown   atomic.Int64
	ignored   atomic.Int64
	duplicate atomic.Int64
}

// New suppressed 中的暗码收到后确认并丢弃
func New(suppressed []string) *Receiver {
	r := &Receiver{
		suppressed: make(map[string]bool, len(suppressed)),
		handlers:   make(map[string]Handler),
	}
	for _, code := range suppressed {
		if code = strings.TrimSpace(code); code != "" {
			r.suppressed[code] = true
		}
	}
	return r
}

// Register 同一暗码重复注册时后者覆盖前者
func (r *Receiver) Register(code string, handler Handler) {
	r.handlers[code] = handler
}

// SetDeduplicator 按意图 ID 去重;ttl<=0 时使用默认值
func (r *Receiver) SetDeduplicator(checker idempotency.Checker, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	r.dedupe = checker
	r.dedupeTTL = ttl
}

// Consume 满足 queue.HandlerFunc
func (r *Receiver) Consume(ctx context.Context, payload []byte, attempts uint16) error {
	in, err := intent.Unmarshal(payload)
	if err != nil {
		return err
	}

	code, err := in.SecretCode()
	if err != nil {
		// 总线上的其他广播
		r.ignored.Add(1)
		return nil
	}
	r.received.Add(1)

	if r.suppressed[code] {
		r.dropped.Add(1)
		log.Printf("%s 暗码 %s 已按策略屏蔽", logPrefix, code)
		return nil
	}

	handler, ok := r.handlers[code]
	if !ok {
		r.unknown.Add(1)
		log.Printf("%s 暗码 %s 没有处理器", logPrefix, code)
		return nil
	}

	if !r.firstDelivery(ctx, in) {
		r.duplicate.Add(1)
		log.Printf("%s 暗码 %s 重复投递(%s),忽略", logPrefix, code, in.ID)
		return nil
	}

	if err := handler(ctx, code); err != nil {
		r.forget(ctx, in)
		log.Printf("%s 暗码 %s 处理失败(尝试:%d): %v", logPrefix, code, attempts, err)
		return fmt.Errorf("secret code %s: %w", code, err)
	}
	r.handled.Add(1)
	log.Printf("%s 暗码 %s 已处理", logPrefix, code)
	return nil
}

// firstDelivery 去重存储出错时按首次投递处理
func (r *Receiver) firstDelivery(ctx context.Context, in intent.Intent) bool {
	if r.dedupe == nil || in.ID == "" {
		return true
	}
	isNew, err := r.dedupe.CheckAndSet(ctx, in.ID, r.dedupeTTL)
	if err != nil {
		log.Printf("%s 去重检查失败,继续处理: %v", logPrefix, err)
		return true
	}
	return isNew
}

func (r *Receiver) forget(ctx context.Context, in intent.Intent) {
	if r.dedupe == nil || in.ID == "" {
		return
	}
	if err := r.dedupe.Forget(ctx, in.ID); err != nil {
		log.Printf("%s 撤销去重标记失败: %v", logPrefix, err)
	}
}

// Stats 当前计数
func (r *Receiver) Stats() Stats {
	return Stats{
		Received:   r.received.Load(),
		Suppressed: r.dropped.Load(),
		Handled:    r.handled.Load(),
		Unknown:    r.unknown.Load(),
		Ignored:    r.ignored.Load(),
		Duplicate:  r.duplicate.Load(),
	}
}

// RegisterBuiltins 注册工程模式、诊断端口与工厂模式处理器
// engineerMode 为 <package>/<class>
func RegisterBuiltins(r *Receiver, flags *config.Flags, activities Activities, engineerMode string) {
	r.Register(CodeEngineerMode, startComponent(activities, engineerMode))
	r.Register(CodeDiagPort, func(context.Context, string) error {
		enabled := !flags.DiagPortEnabled()
		flags.SetDiagPortEnabled(enabled)
		log.Printf("%s 诊断端口开关 -> %v", logPrefix, enabled)
		return nil
	})

	factory := dialcode.LauncherByCode(dialcode.CodeFactoryTest)
	r.Register(CodeFactorySet, func(ctx context.Context, code string) error {
		return start(ctx, activities, factory.Intent())
	})
}

func startComponent(activities Activities, component string) Handler {
	pkg, class, _ := strings.Cut(component, "/")
	in := intent.NewComponent(pkg, class).WithFlags(intent.FlagActivityNewTask)
	return func(ctx context.Context, code string) error {
		return start(ctx, activities, in)
	}
}

// start 组件未安装不重试
func start(ctx context.Context, activities Activities, in intent.Intent) error {
	err := activities.StartActivity(ctx, in)
	if errors.Is(err, intent.ErrActivityNotFound) {
		log.Printf("%s %v", logPrefix, err)
		return nil
	}
	return err
}
