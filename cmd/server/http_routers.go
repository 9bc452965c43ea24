package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"dialcode-gateway/internal/config"
	"dialcode-gateway/internal/modem"
	"dialcode-gateway/internal/surface"
	"dialcode-gateway/internal/ui"

	"github.com/gin-gonic/gin"
)

//
// 数据模型定义
//

// UnifiedResponse 统一的 API 响应格式
type UnifiedResponse struct {
	Code int         `json:"code"`
	Data interface{} `json:"data,omitempty"`
	Msg  string      `json:"msg"`
}

// CreateSessionRequest 新建拨号盘会话
type CreateSessionRequest struct {
	Locale string `json:"locale"`
	Locked bool   `json:"locked"`
}

// CreateSessionResponse 新建会话的结果
type CreateSessionResponse struct {
	ID     string `json:"id"`
	Locale string `json:"locale"`
	Locked bool   `json:"locked"`
}

// InputRequest 输入框文本变化
type InputRequest struct {
	Text string `json:"text"`
}

// InputResponse 输入处理结果
type InputResponse struct {
	Handled bool   `json:"handled"`
	Text    string `json:"text"`
}

// IntentRequest tel: 意图填充
type IntentRequest struct {
	URI string `json:"uri" binding:"required"`
}

// LockRequest 锁屏状态切换
type LockRequest struct {
	Locked bool `json:"locked"`
}

// HandleRequest 对话框/进度框操作
type HandleRequest struct {
	Handle string `json:"handle" binding:"required"`
}

// FlagsRequest 运行期开关,未出现的字段保持不变
type FlagsRequest struct {
	SecretCode *bool `json:"secret_code"`
	DiagPort   *bool `json:"diag_port"`
	TouchCal   *bool `json:"touch_cal"`
}

// FlagsResponse 当前开关
type FlagsResponse struct {
	SecretCode bool `json:"secret_code"`
	DiagPort   bool `json:"diag_port"`
	TouchCal   bool `json:"touch_cal"`
}

// EventsResponse 事件拉取结果,Next 为下一次拉取的 after
type EventsResponse struct {
	Events []surface.Event `json:"events"`
	Next   int64           `json:"next"`
}

// ModemStatusResponse 全部卡槽的模块状态
type ModemStatusResponse struct {
	Enabled bool           `json:"enabled"`
	Slots   []modem.Status `json:"slots"`
}

//
// 辅助函数 - 响应处理
//

// sendSuccessResponse 发送成功响应
func sendSuccessResponse(context *gin.Context, data interface{}) {
	context.JSON(http.StatusOK, UnifiedResponse{
		Code: http.StatusOK,
		Data: data,
		Msg:  "success",
	})
}

// sendErrorResponse 发送错误响应
func sendErrorResponse(context *gin.Context, httpStatus int, message string) {
	context.JSON(httpStatus, UnifiedResponse{
		Code: httpStatus,
		Data: nil,
		Msg:  message,
	})
}

// sendDomainError 把领域错误映射为 HTTP 状态码
func sendDomainError(ginContext *gin.Context, err error) {
	switch {
	case errors.Is(err, surface.ErrSessionNotFound), errors.Is(err, surface.ErrHandleNotFound):
		sendErrorResponse(ginContext, http.StatusNotFound, err.Error())
	case errors.Is(err, surface.ErrNotCancelable):
		sendErrorResponse(ginContext, http.StatusConflict, err.Error())
	case errors.Is(err, ui.ErrLooperStopped):
		sendErrorResponse(ginContext, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		sendErrorResponse(ginContext, http.StatusGatewayTimeout, "请求超时")
	default:
		log.Printf("[Router] 请求处理失败: %v", err)
		sendErrorResponse(ginContext, http.StatusInternalServerError, err.Error())
	}
}

//
// 中间件
//

// corsMiddleware 跨域资源共享中间件
func corsMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		context.Header("Access-Control-Allow-Origin", "*")
		context.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		context.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Accept-Language, Authorization")

		if context.Request.Method == "OPTIONS" {
			context.AbortWithStatus(http.StatusNoContent)
			return
		}

		context.Next()
	}
}

//
// 处理器 - 拨号盘会话
//

// DialpadHandler 拨号盘会话处理器
// 所有会改动输入框的请求都会经 UI 循环排队,超时后返回 504
type DialpadHandler struct {
	sessions *surface.Manager
	timeout  time.Duration
}

// NewDialpadHandler 创建拨号盘处理器实例
func NewDialpadHandler(sessions *surface.Manager, timeout time.Duration) *DialpadHandler {
	return &DialpadHandler{sessions: sessions, timeout: timeout}
}

func (handler *DialpadHandler) requestContext(ginContext *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ginContext.Request.Context(), handler.timeout)
}

// handleCreateSession 新建会话,未指定语言时使用 Accept-Language
func (handler *DialpadHandler) handleCreateSession(ginContext *gin.Context) {
	var request CreateSessionRequest
	if ginContext.Request.ContentLength != 0 {
		if err := ginContext.ShouldBindJSON(&request); err != nil {
			sendErrorResponse(ginContext, http.StatusBadRequest, "请求格式错误: "+err.Error())
			return
		}
	}

	if request.Locale == "" {
		request.Locale = ginContext.GetHeader("Accept-Language")
	}

	session := handler.sessions.Create(request.Locale, request.Locked)
	sendSuccessResponse(ginContext, CreateSessionResponse{
		ID:     session.ID,
		Locale: session.Locale,
		Locked: session.Locked(),
	})
}

// handleCloseSession 结束会话
func (handler *DialpadHandler) handleCloseSession(ginContext *gin.Context) {
	requestContext, cancel := handler.requestContext(ginContext)
	defer cancel()

	if err := handler.sessions.Close(requestContext, ginContext.Param("id")); err != nil {
		sendDomainError(ginContext, err)
		return
	}
	sendSuccessResponse(ginContext, nil)
}

// handleInput 输入框文本变化
func (handler *DialpadHandler) handleInput(ginContext *gin.Context) {
	var request InputRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		sendErrorResponse(ginContext, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}

	requestContext, cancel := handler.requestContext(ginContext)
	defer cancel()

	id := ginContext.Param("id")
	handled, err := handler.sessions.Input(requestContext, id, request.Text)
	if err != nil {
		sendDomainError(ginContext, err)
		return
	}

	session, err := handler.sessions.Get(id)
	if err != nil {
		sendDomainError(ginContext, err)
		return
	}
	sendSuccessResponse(ginContext, InputResponse{Handled: handled, Text: session.Text()})
}

// handleEmergency 紧急拨号界面的输入
func (handler *DialpadHandler) handleEmergency(ginContext *gin.Context) {
	var request InputRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		sendErrorResponse(ginContext, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}

	requestContext, cancel := handler.requestContext(ginContext)
	defer cancel()

	handled, err := handler.sessions.Emergency(requestContext, ginContext.Param("id"), request.Text)
	if err != nil {
		sendDomainError(ginContext, err)
		return
	}
	sendSuccessResponse(ginContext, InputResponse{Handled: handled, Text: request.Text})
}

// handleIntent tel: 意图填充
func (handler *DialpadHandler) handleIntent(ginContext *gin.Context) {
	var request IntentRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		sendErrorResponse(ginContext, http.StatusBadRequest, "参数验证失败: "+err.Error())
		return
	}

	requestContext, cancel := handler.requestContext(ginContext)
	defer cancel()

	number, err := handler.sessions.FillFromIntent(requestContext, ginContext.Param("id"), request.URI)
	if err != nil {
		sendDomainError(ginContext, err)
		return
	}
	sendSuccessResponse(ginContext, gin.H{"number": number})
}

// handleClear 清空输入框
func (handler *DialpadHandler) handleClear(ginContext *gin.Context) {
	handler.runSessionAction(ginContext, handler.sessions.Clear)
}

// handleBackground 拨号盘转入后台
func (handler *DialpadHandler) handleBackground(ginContext *gin.Context) {
	handler.runSessionAction(ginContext, handler.sessions.Background)
}

// handleLock 锁屏状态切换
func (handler *DialpadHandler) handleLock(ginContext *gin.Context) {
	var request LockRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		sendErrorResponse(ginContext, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}

	handler.runSessionAction(ginContext, func(ctx context.Context, id string) error {
		return handler.sessions.SetLocked(ctx, id, request.Locked)
	})
}

// handleCancelProgress 用户取消进度框
func (handler *DialpadHandler) handleCancelProgress(ginContext *gin.Context) {
	var request HandleRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		sendErrorResponse(ginContext, http.StatusBadRequest, "参数验证失败: "+err.Error())
		return
	}

	handler.runSessionAction(ginContext, func(ctx context.Context, id string) error {
		return handler.sessions.CancelProgress(ctx, id, request.Handle)
	})
}

// handleDismissDialog 用户关闭对话框
func (handler *DialpadHandler) handleDismissDialog(ginContext *gin.Context) {
	var request HandleRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		sendErrorResponse(ginContext, http.StatusBadRequest, "参数验证失败: "+err.Error())
		return
	}

	handler.runSessionAction(ginContext, func(ctx context.Context, id string) error {
		return handler.sessions.DismissDialog(ctx, id, request.Handle)
	})
}

// handleEvents 拉取 after 之后的界面事件
func (handler *DialpadHandler) handleEvents(ginContext *gin.Context) {
	after, err := strconv.ParseInt(ginContext.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		sendErrorResponse(ginContext, http.StatusBadRequest, "after 参数无效")
		return
	}

	requestContext, cancel := handler.requestContext(ginContext)
	defer cancel()

	events, err := handler.sessions.Events(requestContext, ginContext.Param("id"), after)
	if err != nil {
		sendDomainError(ginContext, err)
		return
	}

	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	sendSuccessResponse(ginContext, EventsResponse{Events: events, Next: next})
}

// runSessionAction 执行无返回值的会话操作的通用方法
func (handler *DialpadHandler) runSessionAction(
	ginContext *gin.Context,
	action func(ctx context.Context, id string) error,
) {
	requestContext, cancel := handler.requestContext(ginContext)
	defer cancel()

	if err := action(requestContext, ginContext.Param("id")); err != nil {
		sendDomainError(ginContext, err)
		return
	}
	sendSuccessResponse(ginContext, nil)
}

//
// 处理器 - 设备与开关
//

// DeviceHandler 模块状态、开关与意图记录
type DeviceHandler struct {
	app *AppContext
}

// NewDeviceHandler 创建设备处理器实例
func NewDeviceHandler(app *AppContext) *DeviceHandler {
	return &DeviceHandler{app: app}
}

// handleModemStatus 全部卡槽的运行状态
func (handler *DeviceHandler) handleModemStatus(ginContext *gin.Context) {
	response := ModemStatusResponse{
		Enabled: handler.app.Config.Modem.Enabled,
		Slots:   make([]modem.Status, 0, len(handler.app.Modems)),
	}
	for _, manager := range handler.app.Modems {
		response.Slots = append(response.Slots, manager.Status())
	}
	sendSuccessResponse(ginContext, response)
}

// handleGetFlags 当前开关
func (handler *DeviceHandler) handleGetFlags(ginContext *gin.Context) {
	sendSuccessResponse(ginContext, snapshotFlags(handler.app.Flags))
}

// handleUpdateFlags 运行期翻转开关,下一次分发即生效
func (handler *DeviceHandler) handleUpdateFlags(ginContext *gin.Context) {
	var request FlagsRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		sendErrorResponse(ginContext, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}

	flags := handler.app.Flags
	if request.SecretCode != nil {
		flags.SetSecretCodeEnabled(*request.SecretCode)
	}
	if request.DiagPort != nil {
		flags.SetDiagPortEnabled(*request.DiagPort)
	}
	if request.TouchCal != nil {
		flags.SetTouchCalEnabled(*request.TouchCal)
	}

	current := snapshotFlags(flags)
	log.Printf("[Router] 开关已更新: %+v", current)
	sendSuccessResponse(ginContext, current)
}

// handleRecordedIntents 未启用 NSQ 时查看已发出的意图
func (handler *DeviceHandler) handleRecordedIntents(ginContext *gin.Context) {
	if handler.app.Recorder == nil {
		sendErrorResponse(ginContext, http.StatusNotFound, "意图已投递到 NSQ,本地没有记录")
		return
	}
	sendSuccessResponse(ginContext, handler.app.Recorder.Messages())
}

// handleReceiverStats 暗码接收计数
func (handler *DeviceHandler) handleReceiverStats(ginContext *gin.Context) {
	sendSuccessResponse(ginContext, handler.app.Receiver.Stats())
}

// handleHealth 健康检查
func (handler *DeviceHandler) handleHealth(ginContext *gin.Context) {
	sendSuccessResponse(ginContext, gin.H{
		"sessions": handler.app.Sessions.Count(),
		"modems":   len(handler.app.Modems),
		"redis":    handler.app.RedisClient != nil,
		"nsq":      handler.app.Producer != nil,
	})
}

func snapshotFlags(flags *config.Flags) FlagsResponse {
	return FlagsResponse{
		SecretCode: flags.SecretCodeEnabled(),
		DiagPort:   flags.DiagPortEnabled(),
		TouchCal:   flags.TouchCalEnabled(),
	}
}

//
// 路由构建主函数
//

// BuildGinRouter 构建 Gin 路由器
func BuildGinRouter(app *AppContext) *gin.Engine {
	router := gin.Default()
	router.Use(corsMiddleware())

	dialpadHandler := NewDialpadHandler(app.Sessions, app.Config.App.RequestTimeout)
	deviceHandler := NewDeviceHandler(app)

	api := router.Group("/api")
	{
		registerDialpadRoutes(api, dialpadHandler)
		registerDeviceRoutes(api, deviceHandler)
	}

	router.GET("/health", deviceHandler.handleHealth)
	return router
}

// registerDialpadRoutes 注册拨号盘会话路由
func registerDialpadRoutes(group *gin.RouterGroup, handler *DialpadHandler) {
	group.POST("/dialpad/sessions", handler.handleCreateSession)

	session := group.Group("/dialpad/sessions/:id")
	session.DELETE("", handler.handleCloseSession)
	session.POST("/input", handler.handleInput)
	session.POST("/emergency", handler.handleEmergency)
	session.POST("/intent", handler.handleIntent)
	session.POST("/clear", handler.handleClear)
	session.POST("/lock", handler.handleLock)
	session.POST("/background", handler.handleBackground)
	session.POST("/cancel", handler.handleCancelProgress)
	session.POST("/dismiss", handler.handleDismissDialog)
	session.GET("/events", handler.handleEvents)
}

// registerDeviceRoutes 注册设备与开关路由
func registerDeviceRoutes(group *gin.RouterGroup, handler *DeviceHandler) {
	group.GET("/modem/status", handler.handleModemStatus)
	group.GET("/flags", handler.handleGetFlags)
	group.PUT("/flags", handler.handleUpdateFlags)
	group.GET("/intents", handler.handleRecordedIntents)
	group.GET("/receiver/stats", handler.handleReceiverStats)
}
