// Package dialcode 拨号盘特殊字符序列识别器
//
// 每次拨号盘文本变化都会调用 Dispatcher.Handle:先规范化输入,再按固定优先级
// 遍历规则目录,第一个命中且执行成功的规则决定结果。所有分发与动作执行代码
// 都运行在 ui.Looper 上,后台结果(SIM 通讯录查询、厂商 NV 读取)通过 Post 回投。
package dialcode

import (
	"context"
	"log"
	"sync"

	"dialcode-gateway/internal/ui"
)

const logPrefix = "[Dispatcher]"

// Deps 分发器依赖的外部能力
type Deps struct {
	Intents   IntentSender
	Telephony Telephony
	Hook      VendorHook
	System    SystemInfo
}

// Options 分发器参数
type Options struct {
	// BaselineVersion 设备信息面板中的基线版本号
	BaselineVersion string
	// BasebandMaxLen 基带版本显示的最大长度
	BasebandMaxLen int
}

// Dispatcher 特殊拨号串分发器
type Dispatcher struct {
	looper  *ui.Looper
	deps    Deps
	options Options

	adn      adnSlot
	nv       nvCache
	inflight sync.WaitGroup
}

// NewDispatcher 创建分发器,looper 即 UI 循环
func NewDispatcher(looper *ui.Looper, deps Deps, options Options) *Dispatcher {
	if options.BaselineVersion == "" {
		options.BaselineVersion = "2154"
	}
	if options.BasebandMaxLen <= 0 {
		options.BasebandMaxLen = 32
	}
	return &Dispatcher{
		looper:  looper,
		deps:    deps,
		options: options,
	}
}

// Handle 拨号盘文本变化时调用,命中返回 true
// 必须在 UI 循环上调用,field 为 nil 时 ADN 查询结果不回填
func (d *Dispatcher) Handle(ctx context.Context, host Host, raw string, field TextField) bool {
	if !d.looper.OnLoop(ctx) {
		log.Printf("%s ⚠️ Handle 不在 UI 循环上调用,忽略输入", logPrefix)
		return false
	}

	input := Normalize(raw)
	if input == "" {
		return false
	}

	snapshot := Snap(host.Env)
	if input == CodeHookWarmUp && branchB(snapshot) {
		d.warmUpHook()
	}

	for _, rule := range catalog {
		if rule.Active != nil && !rule.Active(snapshot) {
			continue
		}
		match, ok := rule.Match(input)
		if !ok {
			continue
		}
		match.Rule = rule.Name

		if d.execute(ctx, host, snapshot, match, field) {
			log.Printf("%s ✅ %s 命中规则 %s (%s)", logPrefix, input, rule.Name, match.Kind)
			return true
		}
		log.Printf("%s 规则 %s 未能处理 %s,继续匹配", logPrefix, rule.Name, input)
	}
	return false
}

// HandleEmergency 紧急拨号入口,没有可回填的输入框
func (d *Dispatcher) HandleEmergency(ctx context.Context, host Host, raw string) bool {
	return d.Handle(ctx, host, raw, nil)
}

// Cleanup 拨号盘转入后台时调用,取消进行中的 ADN 查询
// 只能在 UI 循环上调用,重复调用无副作用
func (d *Dispatcher) Cleanup(ctx context.Context) {
	if !d.looper.OnLoop(ctx) {
		log.Printf("[WTF] %s Cleanup 在 UI 循环之外被调用", logPrefix)
		return
	}
	d.adn.clear()
}

// Wait 等待后台查询全部回投,然后等待 UI 循环处理完回投的任务
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.inflight.Wait()
	return d.looper.PostWait(ctx, func(context.Context) {})
}

func (d *Dispatcher) execute(ctx context.Context, host Host, snapshot Snapshot, match Match, field TextField) bool {
	switch match.Kind {
	case ActionShowPrlVersion:
		return d.showPrlVersion(ctx)
	case ActionShowDeviceID:
		return d.showDeviceID(host, snapshot)
	case ActionShowRegulatoryInfo:
		return d.showRegulatoryInfo(ctx)
	case ActionShowEngineerMode, ActionBroadcastSecretCode:
		return d.broadcastSecretCode(ctx, match.Payload)
	case ActionHandlePinMmi:
		return d.handlePinMmi(ctx, host, match.Payload)
	case ActionQueryAdn:
		return d.startAdnQuery(host, match.Index, field)
	case ActionLaunchNamedActivity:
		return d.launch(ctx, host, match.Launcher)
	case ActionShowDeviceInfoPanel:
		return d.showDeviceInfoPanel(host)
	case ActionShowBuildID:
		return d.showBuildID(host)
	default:
		log.Printf("%s 未知动作 %v", logPrefix, match.Kind)
		return false
	}
}
