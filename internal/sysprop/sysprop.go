// Package sysprop 读取系统属性(getprop),不可用时退回配置文件中的值
package sysprop

import (
	"context"
	"log"
	"os/exec"
	"strings"
	"time"

	"dialcode-gateway/internal/config"
)

const (
	PropBaseband          = "gsm.version.baseband"
	PropBuildDisplay      = "ro.build.display.id"
	PropBuildInnerVersion = "ro.build.inner.version"
	PropTouchCal          = "ro.build.touchcal"

	getpropTimeout = 2 * time.Second
)

// Runner 执行 getprop name 并返回输出
type Runner func(ctx context.Context, name string) (string, error)

// Props 系统属性读取器
type Props struct {
	run      Runner
	dialer   config.Dialer
	baseband func() string
}

// New 探测 getprop 是否存在;不存在时全部读取退回配置
func New(dialer config.Dialer) *Props {
	var run Runner
	if path, err := exec.LookPath("getprop"); err == nil {
		run = execRunner(path)
	} else {
		log.Printf("[Sysprop] 未找到 getprop,使用配置中的版本信息")
	}
	return NewWithRunner(dialer, run)
}

// NewWithRunner run 为 nil 时只使用配置
func NewWithRunner(dialer config.Dialer, run Runner) *Props {
	return &Props{run: run, dialer: dialer}
}

// SetBasebandSource 属性与配置都为空时的基带版本来源(如模块 AT+CGMR)
func (p *Props) SetBasebandSource(source func() string) {
	p.baseband = source
}

// Get 读取属性,失败或为空返回 fallback
func (p *Props) Get(name, fallback string) string {
	if p.run == nil {
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), getpropTimeout)
	defer cancel()

	value, err := p.run(ctx, name)
	if err != nil {
		log.Printf("[Sysprop] getprop %s 失败: %v", name, err)
		return fallback
	}
	if value = strings.TrimSpace(value); value == "" {
		return fallback
	}
	return value
}

func (p *Props) Baseband() string {
	value := p.Get(PropBaseband, p.dialer.Baseband)
	if value == "" && p.baseband != nil {
		return p.baseband()
	}
	return value
}

func (p *Props) BuildDisplay() string {
	return p.Get(PropBuildDisplay, p.dialer.BuildDisplay)
}

func (p *Props) BuildInnerVersion() string {
	return p.Get(PropBuildInnerVersion, p.dialer.BuildInnerVersion)
}

// TouchCal 构建是否带触摸校准工具
func (p *Props) TouchCal() bool {
	value := p.Get(PropTouchCal, "")
	if value == "" {
		return p.dialer.TouchCalEnabled
	}
	return value == "1" || strings.EqualFold(value, "true")
}

func execRunner(path string) Runner {
	return func(ctx context.Context, name string) (string, error) {
		out, err := exec.CommandContext(ctx, path, name).Output()
		return string(out), err
	}
}
