// Package app 组装客户端的各个组件
//
// App 由配置构造，持有会话存储、平台客户端、进度跟踪器、课程目录和
// 学习流程管理器，命令行和伴随服务都通过它取得这些组件。
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"devschool-client/internal/config"
	"devschool-client/internal/course"
	"devschool-client/internal/lesson"
	"devschool-client/internal/logger"
	"devschool-client/internal/platform"
	"devschool-client/internal/progress"
	"devschool-client/internal/session"
	"devschool-client/internal/storage"
	"devschool-client/internal/validate"
)

// App 组件容器
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Storage   *storage.FileStorage
	Sessions  *session.Store
	Client    *platform.Client
	Tracker   *progress.Tracker
	Catalog   *course.Catalog
	Lessons   *lesson.Manager
	Validator *validate.Validator
	Policy    lesson.GatePolicy
}

// New 按配置创建全部组件
// 参数:
//
//	cfg: 已加载并验证的配置
//	l: 日志记录器，为 nil 时使用 INFO 级别的默认 logger
//	opts: 额外的平台客户端选项（测试中用于注入 http.Client）
func New(cfg *config.Config, l *logger.Logger, opts ...platform.Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if l == nil {
		l = logger.NewLogger(logger.INFO)
	}

	policy, err := lesson.ParseGatePolicy(cfg.Learn.GatePolicy)
	if err != nil {
		return nil, err
	}

	st := storage.NewFileStorage(cfg.Session.File, l)
	v := validate.New("zh")
	store := session.NewStore(st,
		session.WithKey(cfg.Session.Key),
		session.WithLogger(l),
		session.WithValidator(v),
	)

	clientOpts := []platform.Option{
		platform.WithCredentialSource(store),
		platform.WithLogger(l),
	}
	if cfg.API.Timeout > 0 {
		clientOpts = append(clientOpts, platform.WithTimeout(time.Duration(cfg.API.Timeout)*time.Second))
	}
	client, err := platform.New(cfg.API.BaseURL, append(clientOpts, opts...)...)
	if err != nil {
		return nil, err
	}
	store.SetAuthenticator(client)

	tracker := progress.NewTracker(client)
	tracker.SetLogger(l)

	catalog := course.NewCatalog(client, tracker)
	catalog.SetLogger(l)

	lessons := lesson.NewManager(
		lesson.Deps{Courses: client, Answers: client, Progress: tracker},
		lesson.WithGatePolicy(policy),
		lesson.WithLogger(l),
	)

	return &App{
		Config:    cfg,
		Logger:    l,
		Storage:   st,
		Sessions:  store,
		Client:    client,
		Tracker:   tracker,
		Catalog:   catalog,
		Lessons:   lessons,
		Validator: v,
		Policy:    policy,
	}, nil
}

// Identity 返回当前登录用户，未登录或会话过期时返回 session.ErrNotAuthenticated
func (a *App) Identity() (*session.Identity, error) {
	id, ok := a.Sessions.CurrentIdentity()
	if !ok || !a.Sessions.IsAuthenticated() {
		return nil, session.ErrNotAuthenticated
	}
	return id, nil
}

// Register 校验注册表单后向平台注册，邮箱由用户名和配置的域名拼接
// 校验失败返回 validate.ValidationErrors，不发送请求
func (a *App) Register(ctx context.Context, form validate.RegisterForm) (*platform.RegisterResponse, error) {
	if err := a.Validator.Register(form); err != nil {
		return nil, err
	}
	resp, err := a.Client.Register(ctx, platform.RegisterRequest{
		Name:     strings.TrimSpace(form.Name),
		LastName: strings.TrimSpace(form.LastName),
		Email:    form.Email(a.Config.Session.EmailDomain),
		Password: form.Password,
	})
	if err != nil {
		return nil, err
	}
	a.Logger.Info("注册成功: %s", resp.Email)
	return resp, nil
}

// Enroll 当前用户报名课程
func (a *App) Enroll(ctx context.Context, courseID int64) (*course.Enrollment, error) {
	id, err := a.Identity()
	if err != nil {
		return nil, err
	}
	return a.Client.Enroll(ctx, id.ID, courseID)
}

// Enrollments 当前用户的报名记录
func (a *App) Enrollments(ctx context.Context) ([]course.Enrollment, error) {
	id, err := a.Identity()
	if err != nil {
		return nil, err
	}
	return a.Client.ListEnrollments(ctx, id.ID)
}

// Logout 退出登录并关闭该用户打开的学习流程
func (a *App) Logout() error {
	if id, ok := a.Sessions.CurrentIdentity(); ok {
		a.Lessons.RemoveUser(id.ID)
	}
	return a.Sessions.Logout()
}

// RefreshProgress 拉取当前用户全部课程进度并更新本地映射
func (a *App) RefreshProgress(ctx context.Context) ([]course.CourseProgress, error) {
	id, err := a.Identity()
	if err != nil {
		return nil, err
	}
	return a.Tracker.Refresh(ctx, id.ID)
}

// OpenLesson 打开当前用户在课程中的学习流程
// 返回的错误可能是非致命的（见 lesson.Open），此时 Sequencer 仍可使用
func (a *App) OpenLesson(ctx context.Context, courseID int64) (*lesson.Sequencer, error) {
	id, err := a.Identity()
	if err != nil {
		return nil, err
	}
	return a.Lessons.Open(ctx, id.ID, courseID)
}

// Close 释放组件持有的资源
func (a *App) Close() {
	a.Lessons.Close()
}
