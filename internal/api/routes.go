package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"devschool-client/internal/app"
	"devschool-client/internal/check"
	"devschool-client/internal/lesson"
	"devschool-client/internal/logger"
	"devschool-client/internal/platform"
	"devschool-client/internal/session"
	"devschool-client/internal/validate"
	ws "devschool-client/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// healthMessage 用于 check 包识别本服务
const healthMessage = "DevSchool companion is running"

// Handler API处理器
// 把会话、课程目录、进度和学习流程以 REST 接口暴露给本地前端
type Handler struct {
	// app 组件容器
	app *app.App
	// hub 进度观察者管理器，用于 /ws/progress
	hub *ws.ProgressHub
	// metrics Prometheus 指标
	metrics *Metrics
	// logger 日志记录器实例，用于统一日志管理
	logger *logger.Logger
}

// NewHandler 创建新的API处理器
// 参数:
//
//	a: 组件容器
//	hub: 进度观察者管理器
//	metrics: 指标，为 nil 时创建新的实例
//
// 返回: 初始化的API处理器
func NewHandler(a *app.App, hub *ws.ProgressHub, metrics *Metrics) *Handler {
	if metrics == nil {
		metrics = NewMetrics(hub.Count)
	}
	return &Handler{
		app:     a,
		hub:     hub,
		metrics: metrics,
		logger:  a.Logger,
	}
}

// SetupRoutes 设置路由
// 参数:
//
//	r: Gin引擎实例
func (h *Handler) SetupRoutes(r *gin.Engine) {
	r.Use(h.metrics.Middleware())

	// 健康检查与指标（根级别）
	r.GET("/health", h.healthCheck)
	r.GET("/metrics", h.metrics.Handler())

	api := r.Group("/api")
	{
		// 环境检测
		api.GET("/check", h.envCheck)

		// 会话
		api.POST("/session/login", h.login)
		api.POST("/session/register", h.register)
		api.GET("/session", h.getSession)
		api.DELETE("/session", h.logout)

		protected := api.Group("", h.authGuard())

		courses := protected.Group("/courses")
		{
			courses.GET("", h.getCourses)
			courses.GET("/:id", h.getCourse)
			courses.POST("/:id/enroll", h.enroll)

			// 学习流程
			courses.GET("/:id/lessons", h.getLessons)
			courses.POST("/:id/lessons/goto", h.gotoLesson)
			courses.POST("/:id/lessons/next", h.nextLesson)
			courses.POST("/:id/lessons/previous", h.previousLesson)
			courses.POST("/:id/lessons/answers", h.selectAnswer)
			courses.POST("/:id/lessons/complete", h.completeLesson)
		}

		protected.GET("/enrollments", h.getEnrollments)
		protected.GET("/progress", h.getProgress)
		protected.POST("/progress/refresh", h.refreshProgress)
	}

	// WebSocket路由
	r.GET("/ws/progress", h.authGuard(), h.handleProgressWebSocket)
}

// authGuard 未登录时返回 401，并给出带 returnUrl 的登录跳转地址
func (h *Handler) authGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.app.Sessions.IsAuthenticated() {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":    session.ErrNotAuthenticated.Error(),
			"redirect": loginRedirect(c.Request.URL.RequestURI()),
		})
	}
}

func loginRedirect(returnURL string) string {
	return "/login?returnUrl=" + url.QueryEscape(returnURL)
}

// writeError 把错误映射为 HTTP 状态码和用户可读的信息
func (h *Handler) writeError(c *gin.Context, err error) {
	var ve validate.ValidationErrors
	var apiErr *platform.APIError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "输入无效", "fields": ve})
	case errors.Is(err, session.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": session.ErrInvalidCredentials.Error()})
	case errors.Is(err, session.ErrAccountNotActivated):
		c.JSON(http.StatusForbidden, gin.H{"error": session.ErrAccountNotActivated.Error()})
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, platform.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":    session.ErrNotAuthenticated.Error(),
			"redirect": loginRedirect(c.Request.URL.RequestURI()),
		})
	case errors.Is(err, platform.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": platform.ErrNotFound.Error()})
	case errors.Is(err, platform.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": platform.ErrEmailTaken.Error()})
	case errors.Is(err, lesson.ErrIndexOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, lesson.ErrLessonNotDone):
		c.JSON(http.StatusConflict, gin.H{"error": lesson.ErrLessonNotDone.Error()})
	case errors.Is(err, session.ErrNetwork):
		c.JSON(http.StatusBadGateway, gin.H{"error": session.ErrNetwork.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "课程平台返回错误", "status": apiErr.StatusCode, "message": apiErr.Message})
	case errors.Is(err, lesson.ErrCourseUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": lesson.ErrCourseUnavailable.Error()})
	default:
		h.logger.Error("请求处理失败: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务内部错误"})
	}
}

// healthCheck 健康检查
// 响应: {"status": "ok", "message": "DevSchool companion is running"}
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": healthMessage,
	})
}

// envCheck 环境检测，与 cmd/check 保持一致的检查逻辑但以 JSON 返回
func (h *Handler) envCheck(c *gin.Context) {
	h.logger.Info("Handling /api/check request")
	summary := check.Run(c.Request.Context(), check.Target{
		Config:   h.app.Config,
		API:      h.app.Client,
		Sessions: h.app.Sessions,
		Storage:  h.app.Storage,
	})
	c.JSON(http.StatusOK, summary)
}

// login 登录
// 请求: {"correo": "...", "password": "..."}
//
// 响应:
//
//	200: {"user": identity}
//	400: {"error": "输入无效", "fields": {...}}
//	401: {"error": "邮箱或密码错误"}
//	403: {"error": "账号尚未激活，请查收激活邮件"}
func (h *Handler) login(c *gin.Context) {
	var form validate.LoginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	sess, err := h.app.Sessions.Login(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": sess.Identity})
}

// register 注册，成功后需要激活账号再登录
func (h *Handler) register(c *gin.Context) {
	var form validate.RegisterForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	resp, err := h.app.Register(c.Request.Context(), form)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": resp.Message, "correo": resp.Email})
}

// getSession 当前会话
// 响应: {"authenticated": bool, "user": identity}
func (h *Handler) getSession(c *gin.Context) {
	id, err := h.app.Identity()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": id})
}

// logout 退出登录，重复调用也返回成功
func (h *Handler) logout(c *gin.Context) {
	if err := h.app.Logout(); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已退出登录"})
}

// getCourses 课程卡片列表
// 响应: {"courses": [card, ...]}
func (h *Handler) getCourses(c *gin.Context) {
	cards, err := h.app.Catalog.Cards(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": cards})
}

// getCourse 获取指定课程
// 路径参数:
//
//	id: 课程ID
//
// 响应:
//
//	200: {"course": courseObject}
//	400: {"error": "课程ID无效"}
//	404: {"error": "资源不存在"}
func (h *Handler) getCourse(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	cs, err := h.app.Catalog.Course(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": cs})
}

// enroll 报名课程
func (h *Handler) enroll(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	e, err := h.app.Enroll(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("报名课程成功: course=%d", id)
	c.JSON(http.StatusOK, gin.H{"enrollment": e})
}

// getEnrollments 当前用户的报名记录
func (h *Handler) getEnrollments(c *gin.Context) {
	list, err := h.app.Enrollments(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": list})
}

// getProgress 本地进度映射，不发请求
// 响应: {"progress": {"<courseId>": percentage}}
func (h *Handler) getProgress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"progress": h.app.Tracker.Snapshot()})
}

// refreshProgress 从平台拉取全部进度并发布给观察者
func (h *Handler) refreshProgress(c *gin.Context) {
	list, err := h.app.RefreshProgress(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": list, "progress": h.app.Tracker.Snapshot()})
}

// sequencer 打开课程的学习流程
// 进度或作答加载失败时仍返回可用的流程，并把原因作为 warning 返回
func (h *Handler) sequencer(c *gin.Context) (*lesson.Sequencer, string, bool) {
	id, ok := courseID(c)
	if !ok {
		return nil, "", false
	}
	seq, err := h.app.OpenLesson(c.Request.Context(), id)
	if seq == nil {
		h.writeError(c, err)
		return nil, "", false
	}
	warning := ""
	if err != nil {
		h.logger.Warn("学习流程部分加载失败: course=%d, err=%v", id, err)
		warning = err.Error()
	}
	return seq, warning, true
}

func (h *Handler) respondState(c *gin.Context, seq *lesson.Sequencer, warning string) {
	body := gin.H{"state": seq.State()}
	if warning != "" {
		body["warning"] = warning
	}
	c.JSON(http.StatusOK, body)
}

// getLessons 学习流程的当前状态
func (h *Handler) getLessons(c *gin.Context) {
	seq, warning, ok := h.sequencer(c)
	if !ok {
		return
	}
	h.respondState(c, seq, warning)
}

// gotoLesson 跳转到任意课时
// 请求: {"index": 2}
func (h *Handler) gotoLesson(c *gin.Context) {
	var req struct {
		Index *int `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 index"})
		return
	}
	h.navigate(c, func(seq *lesson.Sequencer, ctx context.Context) error {
		return seq.GoTo(ctx, *req.Index)
	})
}

// nextLesson 前往下一课时，当前课时未完成时返回 409
func (h *Handler) nextLesson(c *gin.Context) {
	h.navigate(c, (*lesson.Sequencer).GoNext)
}

// previousLesson 返回上一课时
func (h *Handler) previousLesson(c *gin.Context) {
	h.navigate(c, (*lesson.Sequencer).GoPrevious)
}

func (h *Handler) navigate(c *gin.Context, move func(*lesson.Sequencer, context.Context) error) {
	seq, _, ok := h.sequencer(c)
	if !ok {
		return
	}
	err := move(seq, c.Request.Context())
	switch {
	case errors.Is(err, lesson.ErrAnswersUnavailable):
		h.respondState(c, seq, err.Error())
	case err != nil:
		h.writeError(c, err)
	default:
		h.respondState(c, seq, "")
	}
}

// selectAnswer 记录题目的选择
// 请求: {"questionId": 1001, "optionId": 2}
func (h *Handler) selectAnswer(c *gin.Context) {
	var req struct {
		QuestionID int64 `json:"questionId" binding:"required"`
		OptionID   int64 `json:"optionId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 questionId 或 optionId"})
		return
	}
	seq, _, ok := h.sequencer(c)
	if !ok {
		return
	}
	seq.SelectOption(req.QuestionID, req.OptionID)
	h.respondState(c, seq, "")
}

// completeLesson 尝试完成课时，未指定 index 时完成当前课时
// 未通过闸门不是错误: 返回 200 且 result.completed 为 false
//
// 响应:
//
//	200: {"result": result, "state": state}
//	502: {"error": "..."} - 平台未接受上报，本地状态不变
func (h *Handler) completeLesson(c *gin.Context) {
	var req struct {
		Index *int `json:"index"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
			return
		}
	}
	seq, _, ok := h.sequencer(c)
	if !ok {
		return
	}
	index := seq.Index()
	if req.Index != nil {
		index = *req.Index
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	res, err := seq.AttemptComplete(ctx, index)
	switch {
	case err != nil && res.Completed:
		// 已完成但加载下一课时的作答失败
		h.metrics.ObserveCompletion("completed")
		c.JSON(http.StatusOK, gin.H{"result": res, "state": seq.State(), "warning": err.Error()})
		return
	case err != nil:
		h.metrics.ObserveCompletion("failed")
		h.writeError(c, err)
		return
	case !res.Completed:
		h.metrics.ObserveCompletion("gated")
	default:
		h.metrics.ObserveCompletion("completed")
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "state": seq.State()})
}

// handleProgressWebSocket 进度观察者连接
// 每次进度发布推送 {"type":"progress","data":{"<courseId>": percentage}}
func (h *Handler) handleProgressWebSocket(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 仅监听本地地址
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败: %v", err)
		return
	}

	observer := h.hub.Attach(conn)
	defer h.hub.Remove(observer.ID())
	observer.Serve()

	h.logger.Info("进度观察者 %s 已连接", observer.ID())
	select {
	case <-c.Request.Context().Done():
		h.logger.Info("客户端断开连接，观察者: %s", observer.ID())
	case <-observer.Done():
		h.logger.Info("进度观察者结束: %s", observer.ID())
	}
}

// courseID 解析路径中的课程ID，无效时直接写入 400 响应
func courseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "课程ID无效"})
		return 0, false
	}
	return id, true
}
