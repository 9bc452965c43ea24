// Package intent 定义拨号盘向外发出的意图(广播/启动组件)及其总线
package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 众所周知的 action 与 URI 约定,取值保持与系统一致
const (
	ActionSecretCode           = "android.provider.Telephony.SECRET_CODE"
	ActionEngineerModeInfo     = "android.intent.action.ENGINEER_MODE_DEVICEINFO"
	ActionShowRegulatoryInfo   = "android.settings.SHOW_REGULATORY_INFO"
	ActionScannerTypeSettings  = "android.intent.action.SCANNER_TYPE_SETTINGS"
	ActionAgeingDevice         = "android.intent.action.AGEING_DEVICE"
	SecretCodeScheme           = "android_secret_code"
	FlagActivityNewTask        = 0x10000000
	secretCodeSchemeSeparator  = "://"
	componentNameSeparator     = "/"
	maxSecretCodePayloadLength = 64
)

var (
	// ErrActivityNotFound 没有任何组件能处理该意图
	ErrActivityNotFound = errors.New("no activity found to handle intent")
	// ErrNotSecretCode 意图不是暗码广播
	ErrNotSecretCode = errors.New("intent is not a secret code broadcast")
)

// Intent 一次广播或组件启动请求
type Intent struct {
	ID      string            `json:"id,omitempty"` // 投递去重用
	Action  string            `json:"action,omitempty"`
	Data    string            `json:"data,omitempty"`
	Package string            `json:"package,omitempty"`
	Class   string            `json:"class,omitempty"`
	Extras  map[string]string `json:"extras,omitempty"`
	Flags   int               `json:"flags,omitempty"`
	SentAt  int64             `json:"sent_at"`
}

// NewSecretCode 构造暗码广播,data 为 android_secret_code://<payload>
func NewSecretCode(payload string) Intent {
	return Intent{
		Action: ActionSecretCode,
		Data:   SecretCodeScheme + secretCodeSchemeSeparator + payload,
	}
}

// NewComponent 构造指定包名与类名的显式意图
func NewComponent(pkg, class string) Intent {
	return Intent{Package: pkg, Class: class}
}

// NewAction 构造隐式意图
func NewAction(action string) Intent {
	return Intent{Action: action}
}

// WithBoolExtra 附加布尔参数(返回副本)
func (in Intent) WithBoolExtra(key string, value bool) Intent {
	extras := make(map[string]string, len(in.Extras)+1)
	for k, v := range in.Extras {
		extras[k] = v
	}
	extras[key] = fmt.Sprintf("%t", value)
	in.Extras = extras
	return in
}

// WithFlags 附加启动标志(返回副本)
func (in Intent) WithFlags(flags int) Intent {
	in.Flags |= flags
	return in
}

// Component 返回 <package>/<class>,隐式意图返回空串
func (in Intent) Component() string {
	if in.Package == "" || in.Class == "" {
		return ""
	}
	return in.Package + componentNameSeparator + in.Class
}

// SecretCode 从暗码广播中取出 payload
func (in Intent) SecretCode() (string, error) {
	if in.Action != ActionSecretCode {
		return "", ErrNotSecretCode
	}

	prefix := SecretCodeScheme + secretCodeSchemeSeparator
	if !strings.HasPrefix(in.Data, prefix) {
		return "", fmt.Errorf("%w: unexpected data %q", ErrNotSecretCode, in.Data)
	}

	payload := strings.TrimPrefix(in.Data, prefix)
	if payload == "" || len(payload) > maxSecretCodePayloadLength {
		return "", fmt.Errorf("%w: invalid payload length %d", ErrNotSecretCode, len(payload))
	}
	return payload, nil
}

// String 便于日志输出
func (in Intent) String() string {
	switch {
	case in.Component() != "":
		return fmt.Sprintf("Intent{cmp=%s extras=%v}", in.Component(), in.Extras)
	case in.Data != "":
		return fmt.Sprintf("Intent{act=%s dat=%s}", in.Action, in.Data)
	default:
		return fmt.Sprintf("Intent{act=%s}", in.Action)
	}
}

// Marshal 序列化,补上 ID 与发送时间
func (in Intent) Marshal() ([]byte, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.SentAt == 0 {
		in.SentAt = time.Now().Unix()
	}
	return json.Marshal(in)
}

// Unmarshal 反序列化总线上的意图
func Unmarshal(payload []byte) (Intent, error) {
	var in Intent
	if err := json.Unmarshal(payload, &in); err != nil {
		return Intent{}, fmt.Errorf("failed to unmarshal intent: %w", err)
	}
	return in, nil
}
