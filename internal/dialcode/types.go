package dialcode

import (
	"context"

	"dialcode-gateway/internal/intent"
)

// PhoneType 卡槽的制式
type PhoneType int

const (
	PhoneTypeNone PhoneType = iota
	PhoneTypeGSM
	PhoneTypeCDMA
)

func (p PhoneType) String() string {
	switch p {
	case PhoneTypeGSM:
		return "GSM"
	case PhoneTypeCDMA:
		return "CDMA"
	default:
		return "NONE"
	}
}

// ActionKind 命中后要执行的动作种类
type ActionKind int

const (
	ActionShowDeviceID ActionKind = iota + 1
	ActionShowRegulatoryInfo
	ActionShowPrlVersion
	ActionShowEngineerMode
	ActionShowDeviceInfoPanel
	ActionShowBuildID
	ActionBroadcastSecretCode
	ActionLaunchNamedActivity
	ActionHandlePinMmi
	ActionQueryAdn
)

func (k ActionKind) String() string {
	switch k {
	case ActionShowDeviceID:
		return "ShowDeviceId"
	case ActionShowRegulatoryInfo:
		return "ShowRegulatoryInfo"
	case ActionShowPrlVersion:
		return "ShowPrlVersion"
	case ActionShowEngineerMode:
		return "ShowEngineerMode"
	case ActionShowDeviceInfoPanel:
		return "ShowDeviceInfoPanel"
	case ActionShowBuildID:
		return "ShowBuildId"
	case ActionBroadcastSecretCode:
		return "BroadcastSecretCode"
	case ActionLaunchNamedActivity:
		return "LaunchNamedActivity"
	case ActionHandlePinMmi:
		return "HandlePinMmi"
	case ActionQueryAdn:
		return "QueryAdn"
	default:
		return "Unknown"
	}
}

// Environment 能力探针,每次分发都重新求值
type Environment interface {
	// Locked 设备处于锁屏受限输入模式(含紧急拨号)
	Locked() bool
	TelephonyAvailable() bool
	PhoneType(slot int) PhoneType
	SlotCount() int
	MultiSim() bool
	DefaultVoiceSubID() int
	DefaultVoiceSlot() int
	DeviceID(slot int) string
	VoicePromptEnabled() bool
	SecretCodeEnabled() bool
	DiagPortEnabled() bool
	TouchCalEnabled() bool
}

// Flags 两个分支开关与构建开关
type Flags struct {
	SecretCode bool
	DiagPort   bool
	TouchCal   bool
}

// DiagFactoryEnabled 任一开关打开即走 A 分支
func (f Flags) DiagFactoryEnabled() bool {
	return f.SecretCode || f.DiagPort
}

// Snapshot 某一次分发时的环境值
type Snapshot struct {
	Locked             bool
	TelephonyAvailable bool
	PhoneType          PhoneType
	SimCount           int
	VoicePromptEnabled bool
	Flags              Flags
}

// Snap 读取环境生成快照
func Snap(env Environment) Snapshot {
	snapshot := Snapshot{
		Locked:             env.Locked(),
		TelephonyAvailable: env.TelephonyAvailable(),
		SimCount:           env.SlotCount(),
		VoicePromptEnabled: env.VoicePromptEnabled(),
		Flags: Flags{
			SecretCode: env.SecretCodeEnabled(),
			DiagPort:   env.DiagPortEnabled(),
			TouchCal:   env.TouchCalEnabled(),
		},
	}
	if snapshot.TelephonyAvailable {
		snapshot.PhoneType = env.PhoneType(env.DefaultVoiceSlot())
	}
	return snapshot
}

// TextField 拨号盘的号码输入框
type TextField interface {
	Text() string
	// Replace 用 text 替换全部内容
	Replace(text string)
}

// DialogLine 面板中的一行 "标签: 值"
type DialogLine struct {
	Label string
	Value string
}

// Dialog 模态对话框
type Dialog struct {
	Title   string
	Message string
	Lines   []DialogLine
}

// DialogHandle 已显示的对话框
type DialogHandle interface {
	// SetLine 更新第 index 行的值
	SetLine(index int, value string)
	// Attached 对话框仍在界面上
	Attached() bool
	Dismiss()
}

// Progress 不确定进度的模态提示
type Progress struct {
	Title      string
	Message    string
	Cancelable bool
	// OnCancel 用户取消时回调,必须在 UI 循环上触发
	OnCancel func()
}

// ProgressHandle 已显示的进度提示
type ProgressHandle interface {
	Dismiss()
}

// Surface 拨号盘所在界面
type Surface interface {
	ShowDialog(dialog Dialog) DialogHandle
	Toast(text string)
	ShowProgress(progress Progress) ProgressHandle
}

// Localizer 本地化字符串
type Localizer interface {
	Text(id string, args ...any) string
}

// Host 一次分发的调用方上下文(对应平台的 Context)
type Host struct {
	Env     Environment
	Surface Surface
	Strings Localizer
}

// IntentSender 广播与组件启动
type IntentSender interface {
	SendBroadcast(ctx context.Context, in intent.Intent) error
	StartActivity(ctx context.Context, in intent.Intent) error
}

// AdnRecord SIM 卡通讯录中的一条记录
type AdnRecord struct {
	Name   string
	Number string
}

// Telephony 电话子系统
type Telephony interface {
	// HandlePinMmi 受理 PIN/PUK 修改类 MMI,远程失败时返回 error
	HandlePinMmi(ctx context.Context, subID int, dial string) (bool, error)
	// QueryAdn 阻塞读取整个 ADN 表,ctx 取消即放弃
	QueryAdn(ctx context.Context, subID int) ([]AdnRecord, error)
}

// VendorHook 厂商 NV 读取接口,异步初始化
type VendorHook interface {
	// OnReady 就绪后(或已就绪时)在任意协程上回调一次
	OnReady(fn func())
	ReadNV(ctx context.Context, item int) (string, error)
}

// SystemInfo 系统属性
type SystemInfo interface {
	Baseband() string
	BuildDisplay() string
	BuildInnerVersion() string
}
