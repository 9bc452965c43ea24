package telephony

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nalgeon/be"

	"dialcode-gateway/internal/config"
	"dialcode-gateway/internal/dialcode"
	"dialcode-gateway/internal/modem"
)

type fakeRadio struct {
	mu       sync.Mutex
	ready    bool
	radio    modem.RadioType
	identity modem.Identity
	book     []modem.PhonebookEntry
	bookErr  error
	nv       map[int]string
	executed []modem.PinMmi
	pinErr   error
	waiting  []func()
}

func (r *fakeRadio) IsReady() bool              { return r.ready }
func (r *fakeRadio) RadioType() modem.RadioType { return r.radio }
func (r *fakeRadio) Identity() modem.Identity   { return r.identity }

func (r *fakeRadio) ReadPhonebook(context.Context) ([]modem.PhonebookEntry, error) {
	return r.book, r.bookErr
}

func (r *fakeRadio) ExecutePinMmi(_ context.Context, mmi modem.PinMmi) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, mmi)
	return r.pinErr
}

func (r *fakeRadio) ReadNV(_ context.Context, item int) (string, error) {
	return r.nv[item], nil
}

func (r *fakeRadio) OnReady(fn func()) {
	if r.ready {
		fn()
		return
	}
	r.waiting = append(r.waiting, fn)
}

func gsmRadio() *fakeRadio {
	return &fakeRadio{
		ready:    true,
		radio:    modem.RadioGSM,
		identity: modem.Identity{IMEI: "861234567890123"},
	}
}

func cdmaRadio() *fakeRadio {
	return &fakeRadio{
		ready:    true,
		radio:    modem.RadioCDMA,
		identity: modem.Identity{IMEI: "869999999999999", MEID: "A1000049B2C3D4"},
	}
}

func newDevice(dialer config.Dialer, radios ...*fakeRadio) *Device {
	list := make([]Radio, len(radios))
	for i, r := range radios {
		list[i] = r
	}
	return NewDevice(list, config.NewFlags(dialer), dialer)
}

func TestEnvironmentSingleSim(t *testing.T) {
	device := newDevice(config.Dialer{}, gsmRadio())

	be.True(t, device.TelephonyAvailable())
	be.True(t, !device.MultiSim())
	be.Equal(t, device.SlotCount(), 1)
	be.Equal(t, device.DefaultVoiceSlot(), 0)
	be.Equal(t, device.DefaultVoiceSubID(), 1)
	be.Equal(t, device.PhoneType(0), dialcode.PhoneTypeGSM)
	be.Equal(t, device.PhoneType(1), dialcode.PhoneTypeNone)
	be.Equal(t, device.DeviceID(0), "861234567890123")
	be.Equal(t, device.DeviceID(3), "")
}

func TestEnvironmentDualSim(t *testing.T) {
	device := newDevice(config.Dialer{DefaultVoiceSlot: 1, VoicePromptEnabled: true}, gsmRadio(), cdmaRadio())

	be.True(t, device.MultiSim())
	be.Equal(t, device.DefaultVoiceSlot(), 1)
	be.Equal(t, device.DefaultVoiceSubID(), 2)
	be.True(t, device.VoicePromptEnabled())
	be.Equal(t, device.PhoneType(1), dialcode.PhoneTypeCDMA)
	be.Equal(t, device.DeviceID(1), "A1000049B2C3D4")

	snapshot := dialcode.Snap(device)
	be.Equal(t, snapshot.PhoneType, dialcode.PhoneTypeCDMA)
	be.Equal(t, snapshot.SimCount, 2)
}

func TestEnvironmentRadioNotReady(t *testing.T) {
	radio := gsmRadio()
	radio.ready = false
	device := newDevice(config.Dialer{}, radio)

	be.Equal(t, device.PhoneType(0), dialcode.PhoneTypeNone)
}

func TestEnvironmentWithoutRadio(t *testing.T) {
	device := newDevice(config.Dialer{})

	be.True(t, !device.TelephonyAvailable())
	be.Equal(t, dialcode.Snap(device).PhoneType, dialcode.PhoneTypeNone)
	_, err := device.ReadNV(context.Background(), 1)
	be.Err(t, err, ErrNoSuchSubscription)
}

func TestForSessionLocked(t *testing.T) {
	device := newDevice(config.Dialer{}, gsmRadio())

	be.True(t, !device.Locked())
	env := device.ForSession(true)
	be.True(t, env.Locked())
	be.Equal(t, env.PhoneType(0), dialcode.PhoneTypeGSM)
}

func TestFlagsReadEveryTime(t *testing.T) {
	flags := config.NewFlags(config.Dialer{})
	device := NewDevice([]Radio{gsmRadio()}, flags, config.Dialer{})

	be.True(t, !device.DiagPortEnabled())
	flags.SetDiagPortEnabled(true)
	be.True(t, device.DiagPortEnabled())
	be.True(t, dialcode.Snap(device).Flags.DiagFactoryEnabled())
}

func TestHandlePinMmi(t *testing.T) {
	radio := gsmRadio()
	device := newDevice(config.Dialer{}, radio)

	handled, err := device.HandlePinMmi(context.Background(), 1, "**04*1234*5678*5678#")
	be.Err(t, err, nil)
	be.True(t, handled)
	device.Wait()

	be.Equal(t, radio.executed, []modem.PinMmi{{Kind: modem.PinChange, Old: "1234", New: "5678"}})
}

func TestHandlePinMmiRemoteFailureIsLogged(t *testing.T) {
	radio := gsmRadio()
	radio.pinErr = errors.New("+CME ERROR: incorrect password")
	device := newDevice(config.Dialer{}, radio)

	handled, err := device.HandlePinMmi(context.Background(), 1, "**05*12345678*4321*4321#")
	be.Err(t, err, nil)
	be.True(t, handled)
	device.Wait()
	be.Equal(t, len(radio.executed), 1)
}

func TestHandlePinMmiNotMmi(t *testing.T) {
	radio := gsmRadio()
	device := newDevice(config.Dialer{}, radio)

	handled, err := device.HandlePinMmi(context.Background(), 1, "**21*1234#")
	be.Err(t, err, nil)
	be.True(t, !handled)

	handled, err = device.HandlePinMmi(context.Background(), 1, "**04*1234*5678*8765#")
	be.Err(t, err, nil)
	be.True(t, handled)
	device.Wait()
	be.Equal(t, len(radio.executed), 0)
}

func TestHandlePinMmiFailures(t *testing.T) {
	radio := gsmRadio()
	radio.ready = false
	device := newDevice(config.Dialer{}, radio)

	handled, err := device.HandlePinMmi(context.Background(), 1, "**04*1234*5678*5678#")
	be.Err(t, err, ErrRadioNotReady)
	be.True(t, !handled)

	handled, err = device.HandlePinMmi(context.Background(), 2, "**04*1234*5678*5678#")
	be.Err(t, err, ErrNoSuchSubscription)
	be.True(t, !handled)
}

func TestQueryAdn(t *testing.T) {
	radio := gsmRadio()
	radio.book = []modem.PhonebookEntry{
		{Location: 1, Number: "13800138000", Name: "Alice"},
		{},
		{Location: 3, Number: "10086", Name: "张三"},
	}
	device := newDevice(config.Dialer{}, radio)

	records, err := device.QueryAdn(context.Background(), 1)
	be.Err(t, err, nil)
	be.Equal(t, records, []dialcode.AdnRecord{
		{Name: "Alice", Number: "13800138000"},
		{},
		{Name: "张三", Number: "10086"},
	})
}

func TestQueryAdnError(t *testing.T) {
	radio := gsmRadio()
	radio.bookErr = modem.ErrCommandFailed
	device := newDevice(config.Dialer{}, radio)

	_, err := device.QueryAdn(context.Background(), 1)
	be.Err(t, err, modem.ErrCommandFailed)

	_, err = device.QueryAdn(context.Background(), 0)
	be.Err(t, err, ErrNoSuchSubscription)
}

func TestVendorHookUsesFirstSlot(t *testing.T) {
	radio := gsmRadio()
	radio.ready = false
	radio.nv = map[int]string{1: "HW-V2"}
	device := newDevice(config.Dialer{}, radio, cdmaRadio())

	called := false
	device.OnReady(func() { called = true })
	be.True(t, !called)
	be.Equal(t, len(radio.waiting), 1)

	v, err := device.ReadNV(context.Background(), 1)
	be.Err(t, err, nil)
	be.Equal(t, v, "HW-V2")
}
