package dialcode

import (
	"context"
	"log"
	"sync"
	"time"
)

// 厂商 NV 项
const (
	NVItemHardwareVersion = 1
	NVItemQcn             = 7

	nvReadTimeout = 5 * time.Second
)

// 设备信息面板的行号
const (
	panelLineHardware = iota
	panelLineSoftware
	panelLineArm
	panelLineQcn
	panelLineBaseline
)

// nvCache 最近一次读到的 NV 字符串,回调协程写、UI 循环读
type nvCache struct {
	mu       sync.Mutex
	hardware string
	qcn      string
}

func (c *nvCache) store(hardware, qcn string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hardware = hardware
	c.qcn = qcn
}

func (c *nvCache) load() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hardware, c.qcn
}

// warmUpHook 提前读取 NV 项,之后打开面板时可以直接显示
func (d *Dispatcher) warmUpHook() {
	if d.deps.Hook == nil {
		return
	}
	log.Printf("%s 预热厂商接口", logPrefix)
	d.loadNV(nil)
}

// loadNV 厂商接口就绪后读取 NV 项,then 非空时回投到 UI 循环执行
func (d *Dispatcher) loadNV(then func(hardware, qcn string)) {
	d.deps.Hook.OnReady(func() {
		ctx, cancel := context.WithTimeout(context.Background(), nvReadTimeout)
		defer cancel()

		hardware := d.readNV(ctx, NVItemHardwareVersion)
		qcn := d.readNV(ctx, NVItemQcn)
		d.nv.store(hardware, qcn)

		if then == nil {
			return
		}
		if !d.looper.Post(func(context.Context) { then(hardware, qcn) }) {
			log.Printf("%s UI 循环已退出,丢弃 NV 更新", logPrefix)
		}
	})
}

func (d *Dispatcher) readNV(ctx context.Context, item int) string {
	value, err := d.deps.Hook.ReadNV(ctx, item)
	if err != nil {
		log.Printf("%s 读取 NV 项 %d 失败: %v", logPrefix, item, err)
		return ""
	}
	return value
}

// showDeviceInfoPanel 两阶段显示:先用缓存值弹出面板,接口就绪后再补齐 NV 行
func (d *Dispatcher) showDeviceInfoPanel(host Host) bool {
	hardware, qcn := d.nv.load()

	lines := make([]DialogLine, panelLineBaseline+1)
	lines[panelLineHardware] = DialogLine{Label: host.text(StrHardwareVersion), Value: hardware}
	lines[panelLineSoftware] = DialogLine{Label: host.text(StrSoftwareVersion), Value: d.deps.System.BuildDisplay()}
	lines[panelLineArm] = DialogLine{Label: host.text(StrArmVersion), Value: truncate(d.deps.System.Baseband(), d.options.BasebandMaxLen)}
	lines[panelLineQcn] = DialogLine{Label: host.text(StrQcnVersion), Value: qcn}
	lines[panelLineBaseline] = DialogLine{Label: host.text(StrBaseline), Value: d.options.BaselineVersion}

	handle := host.Surface.ShowDialog(Dialog{Title: host.text(StrDeviceVersion), Lines: lines})
	if d.deps.Hook == nil {
		return true
	}

	d.loadNV(func(hardware, qcn string) {
		if !handle.Attached() {
			log.Printf("%s 设备信息面板已关闭,丢弃 NV 更新", logPrefix)
			return
		}
		handle.SetLine(panelLineHardware, hardware)
		handle.SetLine(panelLineQcn, qcn)
	})
	return true
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
