package dialcode

import (
	"context"
	"errors"
	"log"
	"strings"

	"dialcode-gateway/internal/intent"
)

// showPrlVersion 没有处理者时只记日志,仍算命中
func (d *Dispatcher) showPrlVersion(ctx context.Context) bool {
	in := intent.NewAction(intent.ActionEngineerModeInfo).WithFlags(intent.FlagActivityNewTask)
	if err := d.deps.Intents.StartActivity(ctx, in); err != nil {
		log.Printf("%s 无法显示 PRL 版本: %v", logPrefix, err)
	}
	return true
}

func (d *Dispatcher) showRegulatoryInfo(ctx context.Context) bool {
	log.Printf("%s 发送监管信息意图", logPrefix)
	if err := d.deps.Intents.StartActivity(ctx, intent.NewAction(intent.ActionShowRegulatoryInfo)); err != nil {
		log.Printf("%s startActivity 失败: %v", logPrefix, err)
	}
	return true
}

// showDeviceID 多卡时逐槽列出 IMEI/MEID,任一槽制式未知则放弃
func (d *Dispatcher) showDeviceID(host Host, snapshot Snapshot) bool {
	if !snapshot.TelephonyAvailable {
		return false
	}
	env := host.Env

	if env.MultiSim() {
		count := env.SlotCount()
		lines := make([]string, 0, count)
		for slot := 0; slot < count; slot++ {
			label, ok := deviceIDLabel(host, env.PhoneType(slot))
			if !ok {
				return false
			}
			lines = append(lines, label+" "+env.DeviceID(slot))
		}
		host.Surface.ShowDialog(Dialog{
			Title:   host.text(StrDeviceID),
			Message: strings.Join(lines, "\n"),
		})
		return true
	}

	slot := env.DefaultVoiceSlot()
	label, ok := deviceIDLabel(host, env.PhoneType(slot))
	if !ok {
		return false
	}
	host.Surface.ShowDialog(Dialog{Title: label, Message: env.DeviceID(slot)})
	return true
}

func deviceIDLabel(host Host, phoneType PhoneType) (string, bool) {
	switch phoneType {
	case PhoneTypeGSM:
		return host.text(StrIMEI), true
	case PhoneTypeCDMA:
		return host.text(StrMEID), true
	default:
		return "", false
	}
}

// broadcastSecretCode 发后即忘
func (d *Dispatcher) broadcastSecretCode(ctx context.Context, payload string) bool {
	if err := d.deps.Intents.SendBroadcast(ctx, intent.NewSecretCode(payload)); err != nil {
		log.Printf("%s 暗码 %s 广播失败: %v", logPrefix, payload, err)
	}
	return true
}

// handlePinMmi 远程调用失败按未处理返回
func (d *Dispatcher) handlePinMmi(ctx context.Context, host Host, dial string) bool {
	handled, err := d.deps.Telephony.HandlePinMmi(ctx, host.Env.DefaultVoiceSubID(), dial)
	if err != nil {
		log.Printf("%s ❌ PIN/MMI 处理失败: %v", logPrefix, err)
		return false
	}
	return handled
}

// launch 组件缺失时按启动器配置弹错误框或只记日志
func (d *Dispatcher) launch(ctx context.Context, host Host, launcher *Launcher) bool {
	err := d.deps.Intents.StartActivity(ctx, launcher.Intent())
	switch {
	case err == nil:
	case errors.Is(err, intent.ErrActivityNotFound):
		if launcher.MissingMessage == "" {
			log.Printf("%s %s 未安装: %v", logPrefix, launcher.Name, err)
			break
		}
		host.Surface.ShowDialog(Dialog{
			Title:   host.text(StrErrorTitle),
			Message: host.text(launcher.MissingMessage),
		})
	default:
		log.Printf("%s 启动 %s 失败: %v", logPrefix, launcher.Name, err)
	}
	return true
}

func (d *Dispatcher) showBuildID(host Host) bool {
	host.Surface.ShowDialog(Dialog{
		Title:   host.text(StrBuildID),
		Message: d.deps.System.BuildInnerVersion(),
	})
	return true
}
