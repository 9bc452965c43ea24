package dialcode

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"dialcode-gateway/internal/intent"
)

// 场景 1:GSM 单卡 *#06# 显示 IMEI
func TestDeviceIDSingleGSM(t *testing.T) {
	env := gsmEnv()
	env.deviceIDs = []string{"35...7"}
	h := newHarness(t, env)

	be.True(t, h.dispatch(t, "*#06#"))
	dialog := h.surface.lastDialog(t)
	be.Equal(t, dialog.dialog.Title, StrIMEI)
	be.Equal(t, dialog.dialog.Message, "35...7")
}

// 场景 2:带分隔符输入,CDMA 单卡显示 MEID
func TestDeviceIDSingleCDMAWithSeparators(t *testing.T) {
	env := &fakeEnv{slotTypes: []PhoneType{PhoneTypeCDMA}, deviceIDs: []string{"A000...B"}}
	h := newHarness(t, env)

	be.True(t, h.dispatch(t, "*-#-0-6-#"))
	dialog := h.surface.lastDialog(t)
	be.Equal(t, dialog.dialog.Title, StrMEID)
	be.Equal(t, dialog.dialog.Message, "A000...B")
}

func TestDeviceIDMultiSim(t *testing.T) {
	env := &fakeEnv{
		slotTypes: []PhoneType{PhoneTypeGSM, PhoneTypeCDMA},
		deviceIDs: []string{"861234567890123", "A1000049B2C3D4"},
	}
	h := newHarness(t, env)

	be.True(t, h.dispatch(t, "*#06#"))
	dialog := h.surface.lastDialog(t)
	be.Equal(t, dialog.dialog.Title, StrDeviceID)
	be.Equal(t, dialog.dialog.Message, "imei 861234567890123\nmeid A1000049B2C3D4")
}

func TestDeviceIDAbortsOnUnknownSlot(t *testing.T) {
	env := &fakeEnv{slotTypes: []PhoneType{PhoneTypeGSM, PhoneTypeNone}, deviceIDs: []string{"1", "2"}}
	h := newHarness(t, env)

	be.True(t, !h.dispatch(t, "*#06#"))
	be.Equal(t, len(h.surface.dialogs), 0)

	h = newHarness(t, &fakeEnv{noPhone: true, slotTypes: []PhoneType{PhoneTypeGSM}})
	be.True(t, !h.dispatch(t, "*#06#"))
}

// 场景 3:2# 回填第 1 条 SIM 联系人
func TestAdnQueryFillsField(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.phone.records = []AdnRecord{
		{Name: "Bob", Number: "5550000"},
		{Name: "Alice", Number: "5551234"},
	}

	be.True(t, h.dispatch(t, "2#"))
	h.wait(t)

	be.Equal(t, h.field.Text(), "5551234")
	be.Equal(t, h.surface.toastList(), []string{"Call Alice"})
	be.True(t, h.surface.progressAt(t, 0).isDismissed())
	be.Equal(t, h.dispatcher.adn.current, (*adnQuery)(nil))
}

func TestAdnQueryRowOutOfRange(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.phone.records = []AdnRecord{{Name: "Bob", Number: "5550000"}}
	h.field.Replace("9#")

	be.True(t, h.dispatch(t, "9#"))
	h.wait(t)

	be.Equal(t, h.field.Text(), "9#")
	be.Equal(t, len(h.surface.toastList()), 0)
}

// 场景 4:锁屏时 ADN 不命中
func TestAdnQueryRejectedWhenLocked(t *testing.T) {
	env := gsmEnv()
	env.locked = true
	h := newHarness(t, env)

	be.True(t, !h.dispatch(t, "2#"))
	h.wait(t)
	be.Equal(t, h.phone.queries, 0)
	be.Equal(t, len(h.surface.progress), 0)
}

func TestAdnQueryRejectedOnCDMA(t *testing.T) {
	h := newHarness(t, &fakeEnv{slotTypes: []PhoneType{PhoneTypeCDMA}})
	be.True(t, !h.dispatch(t, "2#"))
}

// 场景 5:4636 照常广播,是否处理由接收方决定
func TestSecretCodeBroadcast(t *testing.T) {
	h := newHarness(t, gsmEnv())

	be.True(t, h.dispatch(t, "*#*#4636#*#*"))
	be.Equal(t, len(h.intents.broadcasts), 1)
	payload, err := h.intents.broadcasts[0].SecretCode()
	be.Err(t, err, nil)
	be.Equal(t, payload, "4636")
}

// 场景 6:连续两次 ADN 查询,只有第二次回填
func TestAdnQueryReplacesPrevious(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.phone.records = []AdnRecord{
		{Name: "A", Number: "1"}, {Name: "B", Number: "2"}, {Name: "C", Number: "3"},
		{Name: "D", Number: "4"}, {Name: "E", Number: "5"},
	}
	gate := make(chan struct{})
	h.phone.gate = gate

	be.True(t, h.dispatch(t, "3#"))
	be.True(t, h.dispatch(t, "5#"))

	// 第二个查询登记时第一个已被取消
	be.True(t, h.surface.progressAt(t, 0).isDismissed())
	be.True(t, !h.surface.progressAt(t, 1).isDismissed())

	close(gate)
	h.wait(t)

	be.Equal(t, h.field.Text(), "5")
	be.Equal(t, h.surface.toastList(), []string{"Call E"})
}

func TestCleanupCancelsPendingQuery(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.phone.records = []AdnRecord{{Name: "Alice", Number: "5551234"}}
	gate := make(chan struct{})
	h.phone.gate = gate

	be.True(t, h.dispatch(t, "1#"))
	h.cleanup(t)
	h.cleanup(t)
	close(gate)
	h.wait(t)

	be.Equal(t, h.field.Text(), "")
	be.Equal(t, len(h.surface.toastList()), 0)
	be.Equal(t, h.dispatcher.adn.current, (*adnQuery)(nil))
}

func TestCleanupOffLoopIsIgnored(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.phone.records = []AdnRecord{{Name: "Alice", Number: "5551234"}}
	gate := make(chan struct{})
	h.phone.gate = gate

	be.True(t, h.dispatch(t, "1#"))
	h.dispatcher.Cleanup(context.Background())
	close(gate)
	h.wait(t)

	be.Equal(t, h.field.Text(), "5551234")
}

func TestUserCancelDropsResult(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.phone.records = []AdnRecord{{Name: "Alice", Number: "5551234"}}
	gate := make(chan struct{})
	h.phone.gate = gate

	be.True(t, h.dispatch(t, "1#"))
	progress := h.surface.progressAt(t, 0)
	be.True(t, progress.progress.Cancelable)
	be.Err(t, h.looper.PostWait(context.Background(), func(context.Context) {
		progress.progress.OnCancel()
	}), nil)
	close(gate)
	h.wait(t)

	be.True(t, progress.isDismissed())
	be.Equal(t, h.field.Text(), "")
	be.Equal(t, len(h.surface.toastList()), 0)
}

func TestEmergencyAdnHasNoField(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.phone.records = []AdnRecord{{Name: "Alice", Number: "5551234"}}

	var handled bool
	err := h.looper.PostWait(context.Background(), func(ctx context.Context) {
		handled = h.dispatcher.HandleEmergency(ctx, h.host(), "1#")
	})
	be.Err(t, err, nil)
	h.wait(t)

	be.True(t, handled)
	be.Equal(t, len(h.surface.toastList()), 0)
}

func TestHandleOffLoopIsRejected(t *testing.T) {
	h := newHarness(t, gsmEnv())
	be.True(t, !h.dispatcher.Handle(context.Background(), h.host(), "*#06#", h.field))
}

func TestEmptyAndUnknownInput(t *testing.T) {
	h := newHarness(t, gsmEnv())
	be.True(t, !h.dispatch(t, ""))
	be.True(t, !h.dispatch(t, " - "))
	be.True(t, !h.dispatch(t, "5551234"))
	be.True(t, !h.dispatch(t, "*#"))
	be.Equal(t, len(h.surface.dialogs), 0)
	be.Equal(t, len(h.intents.broadcasts), 0)
}

func TestSeparatorInsensitivity(t *testing.T) {
	inputs := []string{
		"*#06#", "* # 0 6 #", "*#-0-6-#", "2#", "(2)#", "*#*#4636#*#*", "*#*#46-36#*#*",
		"*#999", "*#.999", "#38378#", "12345", "*#07#", "*#317",
	}
	for _, raw := range inputs {
		got := newHarness(t, gsmEnv()).dispatch(t, raw)
		want := newHarness(t, gsmEnv()).dispatch(t, StripSeparators(raw))
		be.Equal(t, got, want)
	}
}

func TestEngineerModeBroadcastsFixedCode(t *testing.T) {
	h := newHarness(t, gsmEnv())
	be.True(t, h.dispatch(t, "*#7548135*#"))
	payload, err := h.intents.broadcasts[0].SecretCode()
	be.Err(t, err, nil)
	be.Equal(t, payload, "3878")
}

func TestPrlAndRegulatoryToleratesMissingHandler(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.intents.missing = true

	be.True(t, h.dispatch(t, "*#0000#"))
	be.True(t, h.dispatch(t, "*#07#"))
	be.Equal(t, len(h.surface.dialogs), 0)

	h.intents.missing = false
	be.True(t, h.dispatch(t, "*#0000#"))
	be.Equal(t, h.intents.activities[0].Action, intent.ActionEngineerModeInfo)
	be.Equal(t, h.intents.activities[0].Flags, intent.FlagActivityNewTask)
}

func TestPinMmi(t *testing.T) {
	h := newHarness(t, gsmEnv())
	be.True(t, h.dispatch(t, "**04*1234*4321*4321#"))
	be.Equal(t, h.phone.pinDial, "**04*1234*4321*4321#")

	h.phone.pinErr = errors.New("modem not ready")
	be.True(t, !h.dispatch(t, "**05*12345678*1111*1111#"))
}

func TestBranchASecretCodes(t *testing.T) {
	env := gsmEnv()
	env.secretCode = true
	h := newHarness(t, env)

	be.True(t, h.dispatch(t, "*76278#"))
	be.True(t, h.dispatch(t, "#38378#"))
	be.True(t, !h.dispatch(t, "*#999"))
	be.True(t, !h.dispatch(t, "*#316"))

	payload, _ := h.intents.broadcasts[0].SecretCode()
	be.Equal(t, payload, "76278")
	payload, _ = h.intents.broadcasts[1].SecretCode()
	be.Equal(t, payload, "38378")
}

func TestBranchFlagsReadOnEveryDispatch(t *testing.T) {
	env := gsmEnv()
	h := newHarness(t, env)

	be.True(t, !h.dispatch(t, "#38378#"))
	env.diagPort = true
	be.True(t, h.dispatch(t, "#38378#"))
	env.diagPort = false
	be.True(t, !h.dispatch(t, "#38378#"))
}

func TestLauncherMissingShowsError(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.intents.missing = true

	be.True(t, h.dispatch(t, "*#318"))
	dialog := h.surface.lastDialog(t)
	be.Equal(t, dialog.dialog.Title, StrErrorTitle)
	be.Equal(t, dialog.dialog.Message, StrFactoryTestMissing)

	be.True(t, h.dispatch(t, "*#3251"))
	be.Equal(t, h.surface.lastDialog(t).dialog.Message, StrCheckTriggerMissing)

	// QLog 缺失只记日志
	be.True(t, h.dispatch(t, "*#999"))
	be.Equal(t, len(h.surface.dialogs), 2)
}

func TestLauncherOtherErrorOnlyLogs(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.intents.fail = errors.New("nsq unavailable")

	be.True(t, h.dispatch(t, "*#3250"))
	be.Equal(t, len(h.surface.dialogs), 0)
}

func TestLauncherExtras(t *testing.T) {
	h := newHarness(t, gsmEnv())
	be.True(t, h.dispatch(t, "*#319"))
	be.True(t, h.dispatch(t, "*#1262*#"))
	be.True(t, h.dispatch(t, "*#410"))

	be.Equal(t, h.intents.activities[0].Extras["msg"], "false")
	be.Equal(t, h.intents.activities[1].Extras["msg"], "true")
	be.Equal(t, h.intents.activities[2].Extras["networksetting"], "true")
}

func TestDeviceInfoPanel(t *testing.T) {
	h := newHarness(t, gsmEnv())
	be.True(t, h.dispatch(t, "*#316"))
	h.wait(t)

	dialog := h.surface.lastDialog(t)
	be.Equal(t, dialog.dialog.Title, StrDeviceVersion)
	be.Equal(t, dialog.line(panelLineHardware), "HW-V2")
	be.Equal(t, dialog.line(panelLineSoftware), "DC-1.0.3")
	be.Equal(t, dialog.line(panelLineArm), "MPSS.JO.2.0.c1.1-00123-8937_GENN")
	be.Equal(t, len([]rune(dialog.line(panelLineArm))), 32)
	be.Equal(t, dialog.line(panelLineQcn), "QCN-77")
	be.Equal(t, dialog.line(panelLineBaseline), "2154")
}

func TestDeviceInfoPanelFilledWhenHookReady(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.hook.ready = false

	be.True(t, h.dispatch(t, "*#316"))
	dialog := h.surface.lastDialog(t)
	be.Equal(t, dialog.line(panelLineHardware), "")

	h.hook.markReady()
	h.wait(t)
	be.Equal(t, dialog.line(panelLineHardware), "HW-V2")
	be.Equal(t, dialog.line(panelLineQcn), "QCN-77")
}

func TestDeviceInfoPanelDismissedDropsUpdate(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.hook.ready = false

	be.True(t, h.dispatch(t, "*#316"))
	dialog := h.surface.lastDialog(t)
	dialog.Dismiss()

	h.hook.markReady()
	h.wait(t)
	be.Equal(t, dialog.line(panelLineHardware), "")
}

func TestHookWarmUpCachesNV(t *testing.T) {
	h := newHarness(t, gsmEnv())
	h.hook.ready = false

	be.True(t, !h.dispatch(t, "*#"))
	h.hook.markReady()

	be.True(t, h.dispatch(t, "*#316"))
	be.Equal(t, h.surface.lastDialog(t).line(panelLineHardware), "HW-V2")
}

func TestBuildID(t *testing.T) {
	h := newHarness(t, gsmEnv())
	be.True(t, h.dispatch(t, "*#317"))
	dialog := h.surface.lastDialog(t)
	be.Equal(t, dialog.dialog.Title, StrBuildID)
	be.True(t, strings.HasPrefix(dialog.dialog.Message, "PWV-"))
}
