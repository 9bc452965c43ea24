package config

import (
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
)

// 环境变量名
const (
	EnvConfigPath        = "DIALCODE_CONFIG"
	EnvSecretCodeEnabled = "DIALCODE_SECRETCODE_ENABLED"
	EnvDiagPortEnabled   = "DIALCODE_DIAGPORT_ENABLED"
	EnvTouchCalEnabled   = "DIALCODE_TOUCHCAL_ENABLED"
)

// Flags 运行期可切换的开关
// 每次分发都会重新读取,不做缓存,运维可随时翻转工厂/诊断分支
type Flags struct {
	secretCode atomic.Bool
	diagPort   atomic.Bool
	touchCal   atomic.Bool
}

// NewFlags 以配置文件中的初始值创建开关
func NewFlags(dialer Dialer) *Flags {
	flags := &Flags{}
	flags.secretCode.Store(dialer.SecretCodeEnabled)
	flags.diagPort.Store(dialer.DiagPortEnabled)
	flags.touchCal.Store(dialer.TouchCalEnabled)
	return flags
}

func (flags *Flags) SecretCodeEnabled() bool { return flags.secretCode.Load() }
func (flags *Flags) DiagPortEnabled() bool   { return flags.diagPort.Load() }
func (flags *Flags) TouchCalEnabled() bool   { return flags.touchCal.Load() }

func (flags *Flags) SetSecretCodeEnabled(enabled bool) { flags.secretCode.Store(enabled) }
func (flags *Flags) SetDiagPortEnabled(enabled bool)   { flags.diagPort.Store(enabled) }
func (flags *Flags) SetTouchCalEnabled(enabled bool)   { flags.touchCal.Store(enabled) }

// LoadDotEnv 加载当前目录下可选的 .env 文件
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] 加载 .env 失败: %v", err)
	}
}

// ResolvePath 返回配置文件路径,环境变量优先
func ResolvePath(defaultPath string) string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	return defaultPath
}

// ApplyEnvOverrides 用环境变量覆盖拨号盘开关
func (config *Config) ApplyEnvOverrides() {
	config.Dialer.SecretCodeEnabled = parseBoolEnv(EnvSecretCodeEnabled, config.Dialer.SecretCodeEnabled)
	config.Dialer.DiagPortEnabled = parseBoolEnv(EnvDiagPortEnabled, config.Dialer.DiagPortEnabled)
	config.Dialer.TouchCalEnabled = parseBoolEnv(EnvTouchCalEnabled, config.Dialer.TouchCalEnabled)
}

// parseBoolEnv 解析布尔环境变量,非法值沿用默认值
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		log.Printf("[Config] 环境变量 %s=%q 不是合法布尔值,沿用 %v", key, value, defaultValue)
		return defaultValue
	}
}
