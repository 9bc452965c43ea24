package dialcode

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/nalgeon/be"

	"dialcode-gateway/internal/intent"
	"dialcode-gateway/internal/ui"
)

type fakeEnv struct {
	locked     bool
	noPhone    bool
	slotTypes  []PhoneType
	deviceIDs  []string
	voiceSlot  int
	secretCode bool
	diagPort   bool
	touchCal   bool
}

func (e *fakeEnv) Locked() bool             { return e.locked }
func (e *fakeEnv) TelephonyAvailable() bool { return !e.noPhone }
func (e *fakeEnv) SlotCount() int           { return len(e.slotTypes) }
func (e *fakeEnv) MultiSim() bool           { return len(e.slotTypes) > 1 }
func (e *fakeEnv) DefaultVoiceSubID() int   { return e.voiceSlot + 1 }
func (e *fakeEnv) DefaultVoiceSlot() int    { return e.voiceSlot }
func (e *fakeEnv) VoicePromptEnabled() bool { return false }
func (e *fakeEnv) SecretCodeEnabled() bool  { return e.secretCode }
func (e *fakeEnv) DiagPortEnabled() bool    { return e.diagPort }
func (e *fakeEnv) TouchCalEnabled() bool    { return e.touchCal }

func (e *fakeEnv) PhoneType(slot int) PhoneType {
	if slot < 0 || slot >= len(e.slotTypes) {
		return PhoneTypeNone
	}
	return e.slotTypes[slot]
}

func (e *fakeEnv) DeviceID(slot int) string {
	if slot < 0 || slot >= len(e.deviceIDs) {
		return ""
	}
	return e.deviceIDs[slot]
}

func gsmEnv() *fakeEnv {
	return &fakeEnv{slotTypes: []PhoneType{PhoneTypeGSM}, deviceIDs: []string{"351234567890127"}}
}

type fakeField struct {
	mu   sync.Mutex
	text string
}

func (f *fakeField) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *fakeField) Replace(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
}

type fakeDialog struct {
	mu        sync.Mutex
	dialog    Dialog
	dismissed bool
}

func (d *fakeDialog) SetLine(index int, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialog.Lines[index].Value = value
}

func (d *fakeDialog) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.dismissed
}

func (d *fakeDialog) Dismiss() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed = true
}

func (d *fakeDialog) line(index int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialog.Lines[index].Value
}

type fakeProgress struct {
	mu        sync.Mutex
	progress  Progress
	dismissed int
}

func (p *fakeProgress) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed++
}

func (p *fakeProgress) isDismissed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissed > 0
}

type fakeSurface struct {
	mu       sync.Mutex
	dialogs  []*fakeDialog
	toasts   []string
	progress []*fakeProgress
}

func (s *fakeSurface) ShowDialog(dialog Dialog) DialogHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := &fakeDialog{dialog: dialog}
	s.dialogs = append(s.dialogs, handle)
	return handle
}

func (s *fakeSurface) Toast(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toasts = append(s.toasts, text)
}

func (s *fakeSurface) ShowProgress(progress Progress) ProgressHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := &fakeProgress{progress: progress}
	s.progress = append(s.progress, handle)
	return handle
}

func (s *fakeSurface) lastDialog(t *testing.T) *fakeDialog {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	be.True(t, len(s.dialogs) > 0)
	return s.dialogs[len(s.dialogs)-1]
}

func (s *fakeSurface) toastList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.toasts...)
}

func (s *fakeSurface) progressAt(t *testing.T, index int) *fakeProgress {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	be.True(t, index < len(s.progress))
	return s.progress[index]
}

type fakeStrings struct{}

func (fakeStrings) Text(id string, args ...any) string {
	if id == StrCallNumber {
		return fmt.Sprintf("Call %s", args...)
	}
	return id
}

type fakeIntents struct {
	mu         sync.Mutex
	broadcasts []intent.Intent
	activities []intent.Intent
	missing    bool
	fail       error
}

func (f *fakeIntents) SendBroadcast(ctx context.Context, in intent.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, in)
	return nil
}

func (f *fakeIntents) StartActivity(ctx context.Context, in intent.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if f.missing {
		return fmt.Errorf("%w: %s", intent.ErrActivityNotFound, in)
	}
	f.activities = append(f.activities, in)
	return nil
}

type fakeTelephony struct {
	mu      sync.Mutex
	records []AdnRecord
	gate    chan struct{}
	queries int
	pinDial string
	pinErr  error
}

func (f *fakeTelephony) HandlePinMmi(ctx context.Context, subID int, dial string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinDial = dial
	if f.pinErr != nil {
		return false, f.pinErr
	}
	return true, nil
}

func (f *fakeTelephony) QueryAdn(ctx context.Context, subID int) ([]AdnRecord, error) {
	f.mu.Lock()
	f.queries++
	gate := f.gate
	records := f.records
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return records, nil
}

// fakeHook OnReady 同步回调,模拟已就绪的厂商接口
type fakeHook struct {
	mu    sync.Mutex
	items map[int]string
	ready bool
	fns   []func()
}

func (h *fakeHook) OnReady(fn func()) {
	h.mu.Lock()
	if !h.ready {
		h.fns = append(h.fns, fn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn()
}

func (h *fakeHook) markReady() {
	h.mu.Lock()
	h.ready = true
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *fakeHook) ReadNV(ctx context.Context, item int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.items[item], nil
}

type fakeSystem struct {
	baseband string
}

func (s fakeSystem) Baseband() string          { return s.baseband }
func (s fakeSystem) BuildDisplay() string      { return "DC-1.0.3" }
func (s fakeSystem) BuildInnerVersion() string { return "PWV-20240801" }

type harness struct {
	looper     *ui.Looper
	dispatcher *Dispatcher
	env        *fakeEnv
	surface    *fakeSurface
	intents    *fakeIntents
	phone      *fakeTelephony
	hook       *fakeHook
	field      *fakeField
}

func newHarness(t *testing.T, env *fakeEnv) *harness {
	t.Helper()
	looper := ui.NewLooper(16)
	t.Cleanup(looper.Quit)

	h := &harness{
		looper:  looper,
		env:     env,
		surface: &fakeSurface{},
		intents: &fakeIntents{},
		phone:   &fakeTelephony{},
		hook:    &fakeHook{ready: true, items: map[int]string{NVItemHardwareVersion: "HW-V2", NVItemQcn: "QCN-77"}},
		field:   &fakeField{},
	}
	h.dispatcher = NewDispatcher(looper, Deps{
		Intents:   h.intents,
		Telephony: h.phone,
		Hook:      h.hook,
		System:    fakeSystem{baseband: "MPSS.JO.2.0.c1.1-00123-8937_GENNS_PACK-1"},
	}, Options{})
	return h
}

func (h *harness) host() Host {
	return Host{Env: h.env, Surface: h.surface, Strings: fakeStrings{}}
}

// dispatch 在 UI 循环上执行一次分发
func (h *harness) dispatch(t *testing.T, input string) bool {
	t.Helper()
	var handled bool
	err := h.looper.PostWait(context.Background(), func(ctx context.Context) {
		handled = h.dispatcher.Handle(ctx, h.host(), input, h.field)
	})
	be.Err(t, err, nil)
	return handled
}

func (h *harness) cleanup(t *testing.T) {
	t.Helper()
	err := h.looper.PostWait(context.Background(), func(ctx context.Context) {
		h.dispatcher.Cleanup(ctx)
	})
	be.Err(t, err, nil)
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	be.Err(t, h.dispatcher.Wait(context.Background()), nil)
}
