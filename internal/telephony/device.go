// Package telephony 把一个或多个 4G 模块适配为拨号盘需要的电话子系统:
// 环境探针、PIN/MMI、SIM 通讯录与厂商 NV 读取。
// 卡槽下标从 0 开始,对应的 subscription id 为 slot+1。
package telephony

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dialcode-gateway/internal/config"
	"dialcode-gateway/internal/dialcode"
	"dialcode-gateway/internal/modem"
)

const (
	logPrefix         = "[Telephony]"
	defaultPinTimeout = 30 * time.Second
)

var (
	// ErrNoSuchSubscription subID 没有对应的卡槽
	ErrNoSuchSubscription = errors.New("no such subscription")
	// ErrRadioNotReady 模块尚未完成探测
	ErrRadioNotReady = errors.New("radio not ready")
)

// Radio 单个卡槽背后的模块,*modem.LazyModemManager 满足该接口
type Radio interface {
	IsReady() bool
	RadioType() modem.RadioType
	Identity() modem.Identity
	ReadPhonebook(ctx context.Context) ([]modem.PhonebookEntry, error)
	ExecutePinMmi(ctx context.Context, mmi modem.PinMmi) error
	ReadNV(ctx context.Context, item int) (string, error)
	OnReady(fn func())
}

// Device 多卡槽电话子系统
type Device struct {
	radios     []Radio
	flags      *config.Flags
	dialer     config.Dialer
	pinTimeout time.Duration

	pending sync.WaitGroup
}

var (
	_ dialcode.Environment = (*Device)(nil)
	_ dialcode.Telephony   = (*Device)(nil)
	_ dialcode.VendorHook  = (*Device)(nil)
)

// NewDevice radios 的下标即卡槽号;flags 为运行期开关
func NewDevice(radios []Radio, flags *config.Flags, dialer config.Dialer) *Device {
	return &Device{
		radios:     radios,
		flags:      flags,
		dialer:     dialer,
		pinTimeout: defaultPinTimeout,
	}
}

// Wait 等待后台的 PIN/MMI 执行结束
func (d *Device) Wait() {
	d.pending.Wait()
}

// ---------------- Environment ----------------

// Locked 设备级视图不区分锁屏,会话级用 ForSession
func (d *Device) Locked() bool { return false }

func (d *Device) TelephonyAvailable() bool { return len(d.radios) > 0 }

func (d *Device) PhoneType(slot int) dialcode.PhoneType {
	radio, ok := d.radio(slot)
	if !ok || !radio.IsReady() {
		return dialcode.PhoneTypeNone
	}
	switch radio.RadioType() {
	case modem.RadioGSM:
		return dialcode.PhoneTypeGSM
	case modem.RadioCDMA:
		return dialcode.PhoneTypeCDMA
	default:
		return dialcode.PhoneTypeNone
	}
}

func (d *Device) SlotCount() int { return len(d.radios) }

func (d *Device) MultiSim() bool { return len(d.radios) > 1 }

func (d *Device) DefaultVoiceSlot() int {
	slot := d.dialer.DefaultVoiceSlot
	if slot < 0 || slot >= len(d.radios) {
		return 0
	}
	return slot
}

func (d *Device) DefaultVoiceSubID() int { return d.DefaultVoiceSlot() + 1 }

// DeviceID GSM 卡槽返回 IMEI,CDMA 卡槽返回 MEID
func (d *Device) DeviceID(slot int) string {
	radio, ok := d.radio(slot)
	if !ok {
		return ""
	}
	identity := radio.Identity()
	if radio.RadioType() == modem.RadioCDMA && identity.MEID != "" {
		return identity.MEID
	}
	return identity.IMEI
}

func (d *Device) VoicePromptEnabled() bool { return d.dialer.VoicePromptEnabled }

func (d *Device) SecretCodeEnabled() bool { return d.flags.SecretCodeEnabled() }
func (d *Device) DiagPortEnabled() bool   { return d.flags.DiagPortEnabled() }
func (d *Device) TouchCalEnabled() bool   { return d.flags.TouchCalEnabled() }

// ForSession 返回带会话锁屏状态的环境视图
func (d *Device) ForSession(locked bool) dialcode.Environment {
	return sessionEnv{Device: d, locked: locked}
}

type sessionEnv struct {
	*Device
	locked bool
}

func (e sessionEnv) Locked() bool { return e.locked }

// ---------------- Telephony ----------------

// HandlePinMmi 同步判断是否受理,AT 指令在后台执行,结果只记日志
func (d *Device) HandlePinMmi(ctx context.Context, subID int, dial string) (bool, error) {
	radio, err := d.subscription(subID)
	if err != nil {
		return false, err
	}

	mmi, err := modem.ParsePinMmi(dial)
	switch {
	case errors.Is(err, modem.ErrNotPinMmi):
		return false, nil
	case err != nil:
		// 格式是 PIN 类 MMI 但参数不合法,同样视为已受理
		log.Printf("%s subId=%d PIN 请求被拒绝: %v", logPrefix, subID, err)
		return true, nil
	}

	if !radio.IsReady() {
		return false, fmt.Errorf("subId=%d: %w", subID, ErrRadioNotReady)
	}

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		runCtx, cancel := context.WithTimeout(context.Background(), d.pinTimeout)
		defer cancel()
		if err := radio.ExecutePinMmi(runCtx, mmi); err != nil {
			log.Printf("%s subId=%d %s 失败: %v", logPrefix, subID, mmi.Kind, err)
			return
		}
		log.Printf("%s subId=%d %s 完成", logPrefix, subID, mmi.Kind)
	}()
	return true, nil
}

// QueryAdn 读取整张 ADN 表,空位置返回空记录以保持行号
func (d *Device) QueryAdn(ctx context.Context, subID int) ([]dialcode.AdnRecord, error) {
	radio, err := d.subscription(subID)
	if err != nil {
		return nil, err
	}

	entries, err := radio.ReadPhonebook(ctx)
	if err != nil {
		return nil, fmt.Errorf("icc/adn/subId/%d: %w", subID, err)
	}

	records := make([]dialcode.AdnRecord, len(entries))
	for i, entry := range entries {
		records[i] = dialcode.AdnRecord{Name: entry.Name, Number: entry.Number}
	}
	return records, nil
}

// ---------------- VendorHook ----------------

// OnReady 厂商接口由卡槽 0 的物理模块提供
func (d *Device) OnReady(fn func()) {
	if len(d.radios) == 0 {
		log.Printf("%s 无可用模块,厂商接口不会就绪", logPrefix)
		return
	}
	d.radios[0].OnReady(fn)
}

func (d *Device) ReadNV(ctx context.Context, item int) (string, error) {
	if len(d.radios) == 0 {
		return "", ErrNoSuchSubscription
	}
	return d.radios[0].ReadNV(ctx, item)
}

// ---------------- 内部 ----------------

func (d *Device) radio(slot int) (Radio, bool) {
	if slot < 0 || slot >= len(d.radios) {
		return nil, false
	}
	return d.radios[slot], true
}

func (d *Device) subscription(subID int) (Radio, error) {
	radio, ok := d.radio(subID - 1)
	if !ok {
		return nil, fmt.Errorf("subId=%d: %w", subID, ErrNoSuchSubscription)
	}
	return radio, nil
}
