package main

import (
	"context"
	"log"
	"time"

	"dialcode-gateway/internal/config"
	"dialcode-gateway/internal/dialcode"
	"dialcode-gateway/internal/i18n"
	"dialcode-gateway/internal/idempotency"
	"dialcode-gateway/internal/intent"
	"dialcode-gateway/internal/modem"
	"dialcode-gateway/internal/queue"
	"dialcode-gateway/internal/receiver"
	"dialcode-gateway/internal/surface"
	"dialcode-gateway/internal/sysprop"
	"dialcode-gateway/internal/telephony"
	"dialcode-gateway/internal/ui"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisPingTimeout    = 3 * time.Second
	looperDrainTimeout  = 3 * time.Second
	defaultRecorderSize = 200
)

// AppContext 应用运行时上下文
// 聚合所有运行期依赖,统一管理生命周期
type AppContext struct {
	Config      config.Config
	Flags       *config.Flags
	RedisClient *redis.Client
	Looper      *ui.Looper
	Modems      []*modem.LazyModemManager
	Device      *telephony.Device
	Props       *sysprop.Props
	Producer    queue.Producer
	Recorder    *intent.Recorder
	Loopback    *LoopbackPublisher
	IntentBus   *intent.Bus
	Dispatcher  *dialcode.Dispatcher
	Strings     *i18n.Bundle
	Feed        surface.Feed
	Sessions    *surface.Manager
	Receiver    *receiver.Receiver
}

// Close 释放应用上下文持有的所有资源
// 按照依赖关系倒序释放,避免资源泄漏
func (context *AppContext) Close() {
	context.drainDispatcher()
	context.closeIntentBus()
	context.closeModemManagers()
	context.closeQueueProducer()
	context.closeRedisClient()
}

// drainDispatcher 等待后台查询回投后停止 UI 循环
func (context *AppContext) drainDispatcher() {
	if context.Looper == nil {
		return
	}

	waitContext, cancel := newTimeoutContext(looperDrainTimeout)
	defer cancel()

	if err := context.Looper.PostWait(waitContext, context.Dispatcher.Cleanup); err != nil {
		log.Printf("[AppContext] 取消进行中的查询失败: %v", err)
	}
	if err := context.Dispatcher.Wait(waitContext); err != nil {
		log.Printf("[AppContext] 等待后台查询超时: %v", err)
	}

	context.Looper.Quit()
	context.Device.Wait()
}

// closeIntentBus 投递完已排队的意图,需在生产者关闭之前
func (context *AppContext) closeIntentBus() {
	if context.IntentBus != nil {
		context.IntentBus.Close()
	}
}

// closeModemManagers 关闭全部卡槽的模块
func (context *AppContext) closeModemManagers() {
	for slot, manager := range context.Modems {
		if err := manager.Close(); err != nil {
			log.Printf("[AppContext] 卡槽 %d 模块关闭失败: %v", slot, err)
		}
	}
}

// closeQueueProducer 关闭意图生产者
func (context *AppContext) closeQueueProducer() {
	if context.Producer != nil {
		context.Producer.Stop()
	}
}

// closeRedisClient 关闭 Redis 连接
func (context *AppContext) closeRedisClient() {
	if context.RedisClient == nil {
		return
	}
	if err := context.RedisClient.Close(); err != nil {
		log.Printf("[AppContext] Redis 关闭失败: %v", err)
	}
}

//
// 应用初始化器
//

// ApplicationInitializer 应用初始化器
// 负责构建完整的应用运行上下文
type ApplicationInitializer struct {
	configuration config.Config
	flags         *config.Flags
	redisClient   *redis.Client
	modemManagers []*modem.LazyModemManager
}

// NewApplicationInitializer 创建应用初始化器实例
func NewApplicationInitializer(configuration config.Config) *ApplicationInitializer {
	return &ApplicationInitializer{
		configuration: configuration,
		flags:         config.NewFlags(configuration.Dialer),
	}
}

// Initialize 初始化应用上下文
// 按照依赖关系依次初始化各个组件
func (initializer *ApplicationInitializer) Initialize() *AppContext {
	initializer.initializeRedis()
	initializer.initializeModemManagers()

	device := initializer.createDevice()
	props := initializer.createProps()

	producer, recorder := initializer.createPublisher()
	loopback := NewLoopbackPublisher(initializer.publisherOf(producer, recorder), initializer.configuration.Intents.BroadcastTopic)
	intentBus := initializer.createIntentBus(loopback)

	looper := ui.NewLooper(initializer.configuration.App.LooperBacklog)
	dispatcher := initializer.createDispatcher(looper, intentBus, device, props)

	bundle := i18n.NewBundle(initializer.configuration.App.Locale)
	feed := initializer.createFeed()
	sessions := surface.NewManager(looper, dispatcher, device, localizerOf(bundle), feed)

	secretReceiver := initializer.createReceiver(intentBus)

	return &AppContext{
		Config:      initializer.configuration,
		Flags:       initializer.flags,
		RedisClient: initializer.redisClient,
		Looper:      looper,
		Modems:      initializer.modemManagers,
		Device:      device,
		Props:       props,
		Producer:    producer,
		Recorder:    recorder,
		Loopback:    loopback,
		IntentBus:   intentBus,
		Dispatcher:  dispatcher,
		Strings:     bundle,
		Feed:        feed,
		Sessions:    sessions,
		Receiver:    secretReceiver,
	}
}

// initializeRedis 初始化 Redis 客户端
// 未配置地址或连接失败时会话事件退回内存
func (initializer *ApplicationInitializer) initializeRedis() {
	address := initializer.configuration.Storage.RedisAddr
	if address == "" {
		log.Println("[Initializer] 未配置 Redis,会话事件使用内存缓冲")
		return
	}

	client := redis.NewClient(&redis.Options{Addr: address})

	pingContext, cancel := newTimeoutContext(redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingContext).Err(); err != nil {
		log.Printf("[Initializer] Redis %s 不可用,会话事件使用内存缓冲: %v", address, err)
		_ = client.Close()
		return
	}

	initializer.redisClient = client
	log.Println("[Initializer] Redis 客户端初始化完成")
}

// initializeModemManagers 每个卡槽一个懒加载模块管理器
func (initializer *ApplicationInitializer) initializeModemManagers() {
	if !initializer.configuration.Modem.Enabled {
		log.Println("[Initializer] 4G 模块未启用,电话功能不可用")
		return
	}

	for slot, slotConfig := range initializer.configuration.Modem.Slots {
		modemConfig := modem.ModemConfig{
			PortName:         slotConfig.PortName,
			BaudRate:         slotConfig.BaudRate,
			ReadTimeout:      slotConfig.ReadTimeout,
			CommandTimeout:   slotConfig.CommandTimeout,
			TaskBacklog:      slotConfig.TaskBacklog,
			PhonebookStorage: slotConfig.PhonebookStorage,
		}

		initializer.modemManagers = append(initializer.modemManagers, modem.NewLazyModemManager(modemConfig))
		log.Printf("[Initializer] 卡槽 %d 模块管理器(懒加载)创建完成: %s", slot, slotConfig.PortName)
	}
}

// createDevice 创建电话子系统
func (initializer *ApplicationInitializer) createDevice() *telephony.Device {
	radios := make([]telephony.Radio, 0, len(initializer.modemManagers))
	for _, manager := range initializer.modemManagers {
		radios = append(radios, manager)
	}
	return telephony.NewDevice(radios, initializer.flags, initializer.configuration.Dialer)
}

// createProps 创建系统属性读取器
// 基带版本兜底取卡槽 0 模块的 AT+CGMR,触摸校准开关以构建属性为准
func (initializer *ApplicationInitializer) createProps() *sysprop.Props {
	props := sysprop.New(initializer.configuration.Dialer)

	if len(initializer.modemManagers) > 0 {
		primary := initializer.modemManagers[0]
		props.SetBasebandSource(func() string {
			return primary.Identity().Revision
		})
	}

	initializer.flags.SetTouchCalEnabled(props.TouchCal())
	return props
}

// createPublisher 启用 NSQ 时创建生产者,否则使用记录器
func (initializer *ApplicationInitializer) createPublisher() (queue.Producer, *intent.Recorder) {
	intents := initializer.configuration.Intents
	if !intents.Enabled || intents.ProducerAddr == "" {
		log.Println("[Initializer] 意图总线未启用 NSQ,使用内存记录器")
		return nil, intent.NewRecorder(defaultRecorderSize)
	}

	producer, err := queue.NewNSQProducer(intents.ProducerAddr)
	if err != nil {
		log.Fatalf("[Initializer] 创建意图生产者失败: %v", err)
	}

	if err := producer.Ping(); err != nil {
		log.Printf("[Initializer] nsqd %s 暂不可达,发布时重试: %v", intents.ProducerAddr, err)
	}

	log.Println("[Initializer] 意图生产者创建成功")
	return producer, nil
}

// publisherOf 生产者优先,记录器兜底
func (initializer *ApplicationInitializer) publisherOf(producer queue.Producer, recorder *intent.Recorder) intent.Publisher {
	if producer != nil {
		return producer
	}
	return recorder
}

// createIntentBus 创建意图总线
func (initializer *ApplicationInitializer) createIntentBus(publisher intent.Publisher) *intent.Bus {
	dialer := initializer.configuration.Dialer
	intents := initializer.configuration.Intents

	resolver := intent.NewResolver(dialer.InstalledPackages, dialer.InstalledActions)
	return intent.NewBus(publisher, resolver, intents.BroadcastTopic, intents.ActivityTopic)
}

// createDispatcher 创建拨号串分发器
func (initializer *ApplicationInitializer) createDispatcher(
	looper *ui.Looper,
	intentBus *intent.Bus,
	device *telephony.Device,
	props *sysprop.Props,
) *dialcode.Dispatcher {
	dispatcher := dialcode.NewDispatcher(looper, dialcode.Deps{
		Intents:   intentBus,
		Telephony: device,
		Hook:      device,
		System:    props,
	}, dialcode.Options{
		BaselineVersion: initializer.configuration.Dialer.BaselineVersion,
		BasebandMaxLen:  initializer.configuration.Dialer.BasebandMaxLen,
	})

	log.Println("[Initializer] 拨号串分发器创建完成")
	return dispatcher
}

// createFeed 有 Redis 时使用 Redis 事件缓冲
func (initializer *ApplicationInitializer) createFeed() surface.Feed {
	storage := initializer.configuration.Storage

	if initializer.redisClient == nil {
		return surface.NewMemoryFeed(int(storage.FeedMaxEvents))
	}

	log.Println("[Initializer] 会话事件使用 Redis 缓冲")
	return surface.NewRedisFeed(initializer.redisClient, storage.Namespace, storage.FeedTTL, storage.FeedMaxEvents)
}

// createReceiver 创建暗码接收器并注册内置处理器
func (initializer *ApplicationInitializer) createReceiver(activities receiver.Activities) *receiver.Receiver {
	receiverConfig := initializer.configuration.Receiver

	secretReceiver := receiver.New(receiverConfig.SuppressedCodes)
	receiver.RegisterBuiltins(secretReceiver, initializer.flags, activities, receiverConfig.EngineerMode)
	secretReceiver.SetDeduplicator(initializer.createIdempotencyChecker(), receiverConfig.DedupeTTL)
	return secretReceiver
}

// createIdempotencyChecker 多实例共享 Redis 时用 Redis 去重
func (initializer *ApplicationInitializer) createIdempotencyChecker() idempotency.Checker {
	if initializer.redisClient == nil {
		log.Println("[Initializer] 暗码去重使用内存")
		return idempotency.NewMemoryChecker()
	}

	log.Println("[Initializer] 暗码去重使用 Redis")
	return idempotency.NewRedisChecker(initializer.redisClient, initializer.configuration.Storage.Namespace)
}

// localizerOf 会话语言到字符串目录的映射
func localizerOf(bundle *i18n.Bundle) surface.LocalizerFunc {
	return func(locale string) dialcode.Localizer {
		return bundle.Localizer(locale)
	}
}

func newTimeoutContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

//
// 外部调用接口
//

// InitAppContext 初始化应用上下文
func InitAppContext(configuration config.Config) *AppContext {
	initializer := NewApplicationInitializer(configuration)
	return initializer.Initialize()
}
