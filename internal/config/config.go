package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认配置常量
const (
	// 应用默认配置
	DefaultHTTPAddress    = ":8080"
	DefaultRequestTimeout = 5 * time.Second
	DefaultLocale         = "en"
	DefaultLooperBacklog  = 256

	// 4G 模块默认配置
	DefaultModemBaudRate    = 115200
	DefaultModemTaskBacklog = 16
	DefaultPhonebookStorage = "SM"

	// 拨号盘默认配置
	DefaultBaselineVersion = "2154"
	DefaultBasebandMaxLen  = 32

	// 意图总线默认配置
	DefaultBroadcastTopic  = "intents.broadcast"
	DefaultActivityTopic   = "intents.activity"
	DefaultReceiverChannel = "secret-code-receiver"
	DefaultEngineerMode    = "com.android.engineermode/com.android.engineermode.EngineerMode"
	DefaultMaxInFlight     = 16
	DefaultConcurrency     = 1
	DefaultMaxAttempts     = 5
	DefaultDLQTopicSuffix  = ".DLQ"

	// 会话事件默认配置
	DefaultRedisNamespace = "dialpad"
	DefaultFeedTTL        = 10 * time.Minute
	DefaultFeedMaxEvents  = 200
)

// App 应用全局配置
type App struct {
	Addr           string        `yaml:"Addr"`           // HTTP 监听地址
	RequestTimeout time.Duration `yaml:"RequestTimeout"` // HTTP 请求超时
	Locale         string        `yaml:"Locale"`         // 默认界面语言
	LooperBacklog  int           `yaml:"LooperBacklog"`  // UI 循环任务队列长度
}

// ModemSlot 单个 SIM 卡槽对应的 4G 模块串口配置
type ModemSlot struct {
	PortName         string        `yaml:"PortName"`         // 串口名称
	BaudRate         int           `yaml:"BaudRate"`         // 波特率
	ReadTimeout      time.Duration `yaml:"ReadTimeout"`      // 串口读取超时
	CommandTimeout   time.Duration `yaml:"CommandTimeout"`   // AT 命令超时
	TaskBacklog      int           `yaml:"TaskBacklog"`      // 串口任务队列长度
	PhonebookStorage string        `yaml:"PhonebookStorage"` // ADN 所在存储区(AT+CPBS)
}

// Modem 4G 模块配置
type Modem struct {
	Enabled bool        `yaml:"Enabled"` // 是否启用模块
	Slots   []ModemSlot `yaml:"Slots"`   // 卡槽列表(下标即 slot id)
}

// Dialer 拨号盘特殊序列相关配置
type Dialer struct {
	SecretCodeEnabled  bool     `yaml:"SecretCodeEnabled"`  // 开启后走工厂/诊断分支
	DiagPortEnabled    bool     `yaml:"DiagPortEnabled"`    // 开启后走工厂/诊断分支
	TouchCalEnabled    bool     `yaml:"TouchCalEnabled"`    // 触摸校准工具是否可用
	VoicePromptEnabled bool     `yaml:"VoicePromptEnabled"` // 多卡时每次拨号询问
	DefaultVoiceSlot   int      `yaml:"DefaultVoiceSlot"`   // 默认语音卡槽
	BaselineVersion    string   `yaml:"BaselineVersion"`    // 设备信息面板的基线版本
	BasebandMaxLen     int      `yaml:"BasebandMaxLen"`     // 基带版本显示长度上限
	BuildDisplay       string   `yaml:"BuildDisplay"`       // getprop 不可用时的软件版本
	BuildInnerVersion  string   `yaml:"BuildInnerVersion"`  // getprop 不可用时的内部版本号
	Baseband           string   `yaml:"Baseband"`           // getprop 不可用时的基带版本
	InstalledPackages  []string `yaml:"InstalledPackages"`  // 可启动的组件(包名/类名)
	InstalledActions   []string `yaml:"InstalledActions"`   // 有处理者的隐式 action
}

// Intents 意图总线(NSQ)配置
type Intents struct {
	Enabled                     bool     `yaml:"Enabled"`                     // 关闭时只记录日志
	ProducerAddr                string   `yaml:"ProducerAddr"`                // nsqd 生产者地址
	BroadcastTopic              string   `yaml:"BroadcastTopic"`              // 广播主题
	ActivityTopic               string   `yaml:"ActivityTopic"`               // 启动组件主题
	NsqdTCPAddrs                []string `yaml:"NsqdTCPAddrs"`                // 消费者 nsqd 地址
	LookupdHTTPAddrs            []string `yaml:"LookupdHTTPAddrs"`            // 消费者 lookupd 地址
	MaxInFlight                 int      `yaml:"MaxInFlight"`                 // 最大并发消息数
	Concurrency                 int      `yaml:"Concurrency"`                 // 处理并发数
	MaxConsumeAttemptsBeforeDLQ int      `yaml:"MaxConsumeAttemptsBeforeDLQ"` // 进入死信队列前最大尝试次数
	DLQTopic                    string   `yaml:"DLQTopic"`                    // 死信队列主题
}

// Receiver 暗码广播接收器配置
type Receiver struct {
	Enabled         bool          `yaml:"Enabled"`         // 是否启动内置接收器
	Channel         string        `yaml:"Channel"`         // 消费通道
	SuppressedCodes []string      `yaml:"SuppressedCodes"` // 收到后直接丢弃的暗码
	EngineerMode    string        `yaml:"EngineerMode"`    // 3878 启动的工程模式组件(包名/类名)
	DedupeTTL       time.Duration `yaml:"DedupeTTL"`       // 重复投递的去重窗口
}

// Storage 会话事件存储配置
type Storage struct {
	RedisAddr     string        `yaml:"RedisAddr"`     // Redis 地址,为空时使用内存
	Namespace     string        `yaml:"Namespace"`     // Redis 键前缀
	FeedTTL       time.Duration `yaml:"FeedTTL"`       // 会话事件过期时间
	FeedMaxEvents int64         `yaml:"FeedMaxEvents"` // 单会话事件上限
}

// Config 应用完整配置
type Config struct {
	App      App      `yaml:"App"`
	Modem    Modem    `yaml:"Modem"`
	Dialer   Dialer   `yaml:"Dialer"`
	Intents  Intents  `yaml:"Intents"`
	Receiver Receiver `yaml:"Receiver"`
	Storage  Storage  `yaml:"Storage"`
}

// MustLoad 加载 YAML 配置文件
// 加载失败时直接 panic(用于应用启动阶段)
func MustLoad(configPath string) Config {
	fileContent, err := os.ReadFile(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to read config file: %v", err))
	}

	config, err := Parse(fileContent)
	if err != nil {
		panic(err.Error())
	}
	return config
}

// Parse 解析 YAML 内容并填充默认值
func Parse(content []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// validate 校验配置并设置默认值
func (config *Config) validate() error {
	config.validateAppConfig()

	if err := config.validateModemConfig(); err != nil {
		return err
	}

	if err := config.validateDialerConfig(); err != nil {
		return err
	}

	config.validateIntentsConfig()
	config.validateStorageConfig()
	return nil
}

// validateAppConfig 校验应用配置并设置默认值
func (config *Config) validateAppConfig() {
	if config.App.Addr == "" {
		config.App.Addr = DefaultHTTPAddress
	}

	if config.App.RequestTimeout <= 0 {
		config.App.RequestTimeout = DefaultRequestTimeout
	}

	if config.App.Locale == "" {
		config.App.Locale = DefaultLocale
	}

	if config.App.LooperBacklog <= 0 {
		config.App.LooperBacklog = DefaultLooperBacklog
	}
}

// validateModemConfig 校验卡槽配置并设置默认值
func (config *Config) validateModemConfig() error {
	if !config.Modem.Enabled {
		return nil
	}

	if len(config.Modem.Slots) == 0 {
		return fmt.Errorf("modem enabled but no slot configured")
	}

	for index := range config.Modem.Slots {
		slot := &config.Modem.Slots[index]
		if slot.BaudRate <= 0 {
			slot.BaudRate = DefaultModemBaudRate
		}
		if slot.TaskBacklog <= 0 {
			slot.TaskBacklog = DefaultModemTaskBacklog
		}
		if slot.PhonebookStorage == "" {
			slot.PhonebookStorage = DefaultPhonebookStorage
		}
	}
	return nil
}

// validateDialerConfig 校验拨号盘配置并设置默认值
func (config *Config) validateDialerConfig() error {
	if config.Dialer.BaselineVersion == "" {
		config.Dialer.BaselineVersion = DefaultBaselineVersion
	}

	if config.Dialer.BasebandMaxLen <= 0 {
		config.Dialer.BasebandMaxLen = DefaultBasebandMaxLen
	}

	slotCount := len(config.Modem.Slots)
	if config.Dialer.DefaultVoiceSlot < 0 || (slotCount > 0 && config.Dialer.DefaultVoiceSlot >= slotCount) {
		return fmt.Errorf("default voice slot %d out of range", config.Dialer.DefaultVoiceSlot)
	}

	for _, component := range config.Dialer.InstalledPackages {
		if !strings.Contains(component, "/") {
			return fmt.Errorf("installed package %q must be <package>/<class>", component)
		}
	}
	return nil
}

// validateIntentsConfig 校验意图总线配置并设置默认值
func (config *Config) validateIntentsConfig() {
	if config.Intents.BroadcastTopic == "" {
		config.Intents.BroadcastTopic = DefaultBroadcastTopic
	}

	if config.Intents.ActivityTopic == "" {
		config.Intents.ActivityTopic = DefaultActivityTopic
	}

	if config.Intents.MaxInFlight <= 0 {
		config.Intents.MaxInFlight = DefaultMaxInFlight
	}

	if config.Intents.Concurrency <= 0 {
		config.Intents.Concurrency = DefaultConcurrency
	}

	if config.Intents.MaxConsumeAttemptsBeforeDLQ <= 0 {
		config.Intents.MaxConsumeAttemptsBeforeDLQ = DefaultMaxAttempts
	}

	if config.Intents.DLQTopic == "" {
		config.Intents.DLQTopic = config.Intents.BroadcastTopic + DefaultDLQTopicSuffix
	}

	if config.Receiver.Channel == "" {
		config.Receiver.Channel = DefaultReceiverChannel
	}

	if config.Receiver.EngineerMode == "" {
		config.Receiver.EngineerMode = DefaultEngineerMode
	}
}

// validateStorageConfig 校验会话事件存储配置并设置默认值
func (config *Config) validateStorageConfig() {
	if config.Storage.Namespace == "" {
		config.Storage.Namespace = DefaultRedisNamespace
	}

	if config.Storage.FeedTTL <= 0 {
		config.Storage.FeedTTL = DefaultFeedTTL
	}

	if config.Storage.FeedMaxEvents <= 0 {
		config.Storage.FeedMaxEvents = DefaultFeedMaxEvents
	}
}
