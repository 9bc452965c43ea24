package modem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// --------------------------- 常量与错误定义 ---------------------------

const (
	initTimeout          = 15 * time.Second
	probeTimeout         = 30 * time.Second
	defaultRetryDelay    = 2 * time.Second
	defaultMaxRetryCount = 3
	logPrefix            = "[MODEM]"
)

var (
	// 自定义错误（哨兵错误），便于上层识别与分类处理
	ErrModemUnavailable          = errors.New("modem unavailable")
	ErrInitializationInProgress  = errors.New("modem initialization in progress")
	ErrInitializationMaxExceeded = errors.New("modem initialization max retries exceeded")
	ErrWorkerUninitialized       = errors.New("modem worker is uninitialized")
)

// Opener 打开模块串口,测试中替换为内存端口
type Opener func(config ModemConfig) (*Modem, error)

// --------------------------- 结构体定义 ---------------------------

// LazyModemManager 懒加载的4G模块管理器
// 串口打开即可排队执行命令;探测(初始化指令、运营商、设备标识)完成后才算就绪并触发 OnReady 回调
type LazyModemManager struct {
	config ModemConfig
	open   Opener
	modem  *Modem
	worker *Worker

	mu             sync.RWMutex
	initialized    bool
	ready          bool
	initError      error
	lastTryTime    time.Time
	retryDelay     time.Duration
	initInProgress bool
	retryCount     int
	maxRetries     int

	operator OperatorType
	identity Identity
	onReady  []func()
}

// Status 模块状态快照(供 /api/modem/status 使用)
type Status struct {
	Port         string       `json:"port"`
	Available    bool         `json:"available"`
	Ready        bool         `json:"ready"`
	Initializing bool         `json:"initializing"`
	RetryCount   int          `json:"retry_count"`
	LastError    string       `json:"last_error,omitempty"`
	LastTry      time.Time    `json:"last_try"`
	Operator     string       `json:"operator"`
	Radio        string       `json:"radio"`
	Identity     Identity     `json:"identity"`
	Worker       WorkerStatus `json:"worker"`
}

// --------------------------- 构造与生命周期 ---------------------------

// NewLazyModemManager 创建懒加载的4G模块管理器（启动即异步初始化）
func NewLazyModemManager(config ModemConfig) *LazyModemManager {
	return NewLazyModemManagerWithOpener(config, NewModem)
}

// NewLazyModemManagerWithOpener 使用自定义的打开方式
func NewLazyModemManagerWithOpener(config ModemConfig, open Opener) *LazyModemManager {
	m := &LazyModemManager{
		config:     config,
		open:       open,
		retryDelay: defaultRetryDelay,
		maxRetries: defaultMaxRetryCount,
	}
	go m.backgroundInitialize()
	return m
}

// Close 关闭4G模块与任务队列
func (m *LazyModemManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error

	if m.worker != nil {
		if err := m.worker.Close(); err != nil {
			firstErr = err
		}
		m.worker = nil
	}

	if m.modem != nil {
		m.modem.Close()
		m.modem = nil
	}

	m.initialized = false
	m.ready = false
	m.initError = nil
	m.initInProgress = false
	m.retryCount = 0
	m.onReady = nil

	log.Printf("%s 4G模块已关闭: %s", logPrefix, m.config.PortName)
	return firstErr
}

// --------------------------- 公共方法 ---------------------------

// Do 在串口工作者上执行任务并等待结果
func (m *LazyModemManager) Do(ctx context.Context, name string, run TaskFunc) error {
	if err := m.checkAvailability(); err != nil {
		return fmt.Errorf("%w: %v", ErrModemUnavailable, err)
	}

	worker, err := m.getWorker()
	if err != nil {
		return err
	}
	return worker.Do(ctx, name, run)
}

// ReadPhonebook 读取 SIM 卡通讯录
func (m *LazyModemManager) ReadPhonebook(ctx context.Context) ([]PhonebookEntry, error) {
	var entries []PhonebookEntry
	err := m.Do(ctx, "phonebook", func(ctx context.Context, modem *Modem) error {
		var err error
		entries, err = modem.ReadPhonebook(ctx)
		return err
	})
	return entries, err
}

// ExecutePinMmi 执行 PIN 修改/PUK 解锁
func (m *LazyModemManager) ExecutePinMmi(ctx context.Context, mmi PinMmi) error {
	return m.Do(ctx, "pin-mmi", func(ctx context.Context, modem *Modem) error {
		return modem.ExecutePinMmi(ctx, mmi)
	})
}

// ReadNV 读取厂商 NV 项
func (m *LazyModemManager) ReadNV(ctx context.Context, item int) (string, error) {
	var value string
	err := m.Do(ctx, fmt.Sprintf("nv-%d", item), func(ctx context.Context, modem *Modem) error {
		var err error
		value, err = modem.ReadNV(ctx, item)
		return err
	})
	return value, err
}

// OnReady 模块就绪后在新协程中回调 fn;已就绪则立即回调
func (m *LazyModemManager) OnReady(fn func()) {
	m.mu.Lock()
	if !m.ready {
		m.onReady = append(m.onReady, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	go fn()
}

// IsAvailable 检查4G模块是否可用(串口已打开)
func (m *LazyModemManager) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized && m.initError == nil && m.worker != nil
}

// IsReady 探测完成,设备标识与运营商可用
func (m *LazyModemManager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Identity 返回启动时缓存的设备标识
func (m *LazyModemManager) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// RadioType 未就绪时为 RadioNone
func (m *LazyModemManager) RadioType() RadioType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return RadioNone
	}
	return radioTypeFor(m.operator)
}

// GetLastError 获取最后的错误信息
func (m *LazyModemManager) GetLastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initError
}

// Status 获取模块状态
func (m *LazyModemManager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		Port:         m.config.PortName,
		Available:    m.initialized && m.initError == nil && m.worker != nil,
		Ready:        m.ready,
		Initializing: m.initInProgress,
		RetryCount:   m.retryCount,
		LastTry:      m.lastTryTime,
		Operator:     m.operator.String(),
		Radio:        RadioNone.String(),
		Identity:     m.identity,
	}
	if m.ready {
		status.Radio = radioTypeFor(m.operator).String()
	}
	if m.initError != nil {
		status.LastError = m.initError.Error()
	}
	if m.worker != nil {
		status.Worker = m.worker.Status()
	}
	return status
}

// --------------------------- 内部：可用性与队列 ---------------------------

func (m *LazyModemManager) checkAvailability() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.initialized && m.initError == nil && m.worker != nil {
		return nil
	}

	if m.retryCount >= m.maxRetries {
		return fmt.Errorf("%w: 已重试%d次: %v", ErrInitializationMaxExceeded, m.retryCount, m.initError)
	}

	if m.initInProgress {
		return fmt.Errorf("%w: 第%d次尝试", ErrInitializationInProgress, m.retryCount+1)
	}

	if m.initError != nil {
		return fmt.Errorf("暂时不可用(重试进度 %d/%d): %w", m.retryCount, m.maxRetries, m.initError)
	}

	return errors.New("4G模块尚未初始化")
}

func (m *LazyModemManager) getWorker() (*Worker, error) {
	m.mu.RLock()
	worker := m.worker
	m.mu.RUnlock()

	if worker == nil {
		return nil, ErrWorkerUninitialized
	}
	return worker, nil
}

// --------------------------- 内部：初始化流程 ---------------------------

func (m *LazyModemManager) backgroundInitialize() {
	log.Printf("%s 开始后台初始化4G模块: %s@%d", logPrefix, m.config.PortName, m.config.BaudRate)

	m.markInitStart()

	modem, err := m.createModemWithTimeout(initTimeout)
	if err != nil {
		m.handleInitFailure(err)
		return
	}

	worker := m.finalizeInitSuccess(modem)
	m.postInitProbing(worker)
}

func (m *LazyModemManager) markInitStart() {
	m.mu.Lock()
	m.initInProgress = true
	m.lastTryTime = time.Now()
	m.mu.Unlock()
}

func (m *LazyModemManager) createModemWithTimeout(timeout time.Duration) (*Modem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type initResult struct {
		modem *Modem
		err   error
	}

	resultChan := make(chan initResult, 1)
	go func() {
		modem, err := m.open(m.config)
		resultChan <- initResult{modem: modem, err: err}
	}()

	select {
	case result := <-resultChan:
		if result.err != nil {
			return nil, fmt.Errorf("创建Modem失败: %w", result.err)
		}
		return result.modem, nil
	case <-ctx.Done():
		log.Printf("%s 4G模块后台初始化超时(%s)", logPrefix, timeout)
		return nil, fmt.Errorf("4G模块后台初始化超时(%s)", timeout)
	}
}

func (m *LazyModemManager) handleInitFailure(err error) {
	m.mu.Lock()
	m.initInProgress = false
	m.initError = fmt.Errorf("4G模块后台初始化失败: %w", err)
	m.retryCount++
	currentRetry := m.retryCount
	maxRetry := m.maxRetries
	retryDelay := m.retryDelay
	shouldRetry := currentRetry < maxRetry
	m.mu.Unlock()

	log.Printf("%s 4G模块后台初始化失败(第%d次): %v", logPrefix, currentRetry, err)

	if !shouldRetry {
		log.Printf("%s 已达到最大重试次数(%d)，停止重试。请检查4G模块连接和配置", logPrefix, maxRetry)
		return
	}

	log.Printf("%s 将在%v后进行第%d次重试", logPrefix, retryDelay, currentRetry+1)
	time.AfterFunc(retryDelay, func() {
		m.mu.RLock()
		canRetry := !m.initialized && m.initError != nil && m.retryCount < m.maxRetries
		m.mu.RUnlock()
		if canRetry {
			log.Printf("%s 开始第%d次重试4G模块初始化", logPrefix, currentRetry+1)
			m.backgroundInitialize()
		}
	})
}

func (m *LazyModemManager) finalizeInitSuccess(modem *Modem) *Worker {
	worker := NewWorker(modem, m.config.TaskBacklog)

	m.mu.Lock()
	m.modem = modem
	m.worker = worker
	m.initialized = true
	m.initError = nil
	m.initInProgress = false
	m.retryCount = 0
	m.mu.Unlock()

	return worker
}

// postInitProbing 在工作者上执行非致命的初始化探测（失败仅记录日志）,完成后标记就绪
func (m *LazyModemManager) postInitProbing(worker *Worker) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	var operator OperatorType
	var identity Identity
	err := worker.Do(ctx, "probe", func(ctx context.Context, modem *Modem) error {
		if err := modem.Initialize(); err != nil {
			log.Printf("%s 基础初始化指令失败: %v", logPrefix, err)
		}

		if op, err := detectOperatorWithRetry(modem, 5, time.Second); err != nil {
			log.Printf("%s 运营商检测失败: %v", logPrefix, err)
		} else {
			log.Printf("%s 运营商确认: %s", logPrefix, op.String())
		}
		operator = modem.GetOperator()

		id, err := modem.ReadIdentity(ctx)
		if err != nil {
			log.Printf("%s 读取设备标识失败: %v", logPrefix, err)
		}
		identity = id
		return nil
	})
	if err != nil {
		log.Printf("%s 初始化探测未完成: %v", logPrefix, err)
	}

	m.markReady(operator, identity)
	log.Printf("%s 4G模块后台初始化成功，运营商: %s, IMEI: %s", logPrefix, operator.String(), identity.IMEI)
}

func (m *LazyModemManager) markReady(operator OperatorType, identity Identity) {
	m.mu.Lock()
	m.operator = operator
	m.identity = identity
	m.ready = true
	callbacks := m.onReady
	m.onReady = nil
	m.mu.Unlock()

	for _, fn := range callbacks {
		go fn()
	}
}
