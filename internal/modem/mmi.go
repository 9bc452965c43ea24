package modem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// PIN/PUK 相关 MMI 服务码
const (
	mmiServiceChangePin  = "04"
	mmiServiceChangePin2 = "042"
	mmiServiceUnblockPin = "05"

	lockFacilitySim  = "SC"
	lockFacilityPin2 = "P2"

	pinMinLength = 4
	pinMaxLength = 8
	pukLength    = 8
)

var (
	// ErrNotPinMmi 不是 **04/**05 形式的 MMI 串
	ErrNotPinMmi = errors.New("not a pin mmi string")
	// ErrPinMismatch 两次输入的新 PIN 不一致
	ErrPinMismatch = errors.New("new pin entries do not match")
	// ErrInvalidPin PIN/PUK 长度或字符不合法
	ErrInvalidPin = errors.New("invalid pin or puk")
)

// PinMmiKind PIN 操作种类
type PinMmiKind int

const (
	PinChange PinMmiKind = iota + 1
	Pin2Change
	PinUnblock
)

func (k PinMmiKind) String() string {
	switch k {
	case PinChange:
		return "修改PIN"
	case Pin2Change:
		return "修改PIN2"
	case PinUnblock:
		return "PUK解锁"
	default:
		return "未知操作"
	}
}

// PinMmi 解析后的 PIN 修改/解锁请求
type PinMmi struct {
	Kind PinMmiKind
	// Old 修改时为旧 PIN,解锁时为 PUK
	Old string
	New string
}

// ParsePinMmi 解析 **04*OLD*NEW*NEW#、**042*OLD*NEW*NEW#、**05*PUK*NEW*NEW#
func ParsePinMmi(dial string) (PinMmi, error) {
	if !strings.HasPrefix(dial, "**") || !strings.HasSuffix(dial, "#") {
		return PinMmi{}, ErrNotPinMmi
	}

	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(dial, "**"), "#"), "*")
	if len(parts) != 4 {
		return PinMmi{}, fmt.Errorf("%w: %d fields", ErrNotPinMmi, len(parts))
	}

	var kind PinMmiKind
	switch parts[0] {
	case mmiServiceChangePin:
		kind = PinChange
	case mmiServiceChangePin2:
		kind = Pin2Change
	case mmiServiceUnblockPin:
		kind = PinUnblock
	default:
		return PinMmi{}, fmt.Errorf("%w: service code %s", ErrNotPinMmi, parts[0])
	}

	old, newPin, confirm := parts[1], parts[2], parts[3]
	if newPin != confirm {
		return PinMmi{}, ErrPinMismatch
	}
	if !validPin(newPin) {
		return PinMmi{}, fmt.Errorf("%w: new pin", ErrInvalidPin)
	}
	if kind == PinUnblock && (len(old) != pukLength || !isAllDigits(old)) {
		return PinMmi{}, fmt.Errorf("%w: puk", ErrInvalidPin)
	}
	if kind != PinUnblock && !validPin(old) {
		return PinMmi{}, fmt.Errorf("%w: old pin", ErrInvalidPin)
	}

	return PinMmi{Kind: kind, Old: old, New: newPin}, nil
}

func validPin(pin string) bool {
	return len(pin) >= pinMinLength && len(pin) <= pinMaxLength && isAllDigits(pin)
}

// Command 对应的 AT 指令
func (p PinMmi) Command() string {
	switch p.Kind {
	case PinChange:
		return fmt.Sprintf(CMD_CHANGE_PASSWORD, lockFacilitySim, p.Old, p.New)
	case Pin2Change:
		return fmt.Sprintf(CMD_CHANGE_PASSWORD, lockFacilityPin2, p.Old, p.New)
	default:
		return fmt.Sprintf(CMD_ENTER_PUK, p.Old, p.New)
	}
}

// ExecutePinMmi 执行 PIN 修改或 PUK 解锁,日志中不输出 PIN 本身
func (m *Modem) ExecutePinMmi(ctx context.Context, mmi PinMmi) error {
	if _, err := m.execute(ctx, mmi.Command()); err != nil {
		return newATError(mmi.Kind.String(), "模块拒绝", err)
	}
	log.Printf("%s ✅ %s 成功", logPrefix, mmi.Kind)
	return nil
}
