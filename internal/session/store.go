// Package session 管理登录会话
//
// 会话（用户身份 + 凭证）以一个键保存在持久化存储中，
// 读取时检查凭证是否过期，过期会话不会被当作有效会话返回。
//
// 使用示例:
//
//	store := session.NewStore(storage.NewFileStorage(path, log), session.WithLogger(log))
//	store.SetAuthenticator(client)
//	sess, err := store.Login(ctx, "ana@devschool.com", "secreto")
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"devschool-client/internal/logger"
	"devschool-client/internal/storage"
	"devschool-client/internal/validate"
)

// DefaultKey 会话在存储中的默认键名
const DefaultKey = "usuario"

// 登录失败原因
var (
	ErrInvalidCredentials  = errors.New("邮箱或密码错误")
	ErrAccountNotActivated = errors.New("账号尚未激活，请查收激活邮件")
	ErrNetwork             = errors.New("无法连接课程平台")
	ErrNotAuthenticated    = errors.New("未登录或会话已过期")
	ErrNoAuthenticator     = errors.New("session store has no authenticator")
)

// Identity 当前登录用户的身份信息
type Identity struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"nombre" yaml:"name"`
	LastName string `json:"apellidos" yaml:"lastName"`
	Email    string `json:"correo" yaml:"email"`
	Role     string `json:"rol" yaml:"role"`
	IsAdmin  bool   `json:"esAdmin" yaml:"isAdmin"`
}

// Session 登录会话
type Session struct {
	Identity   Identity `json:"identity" yaml:"identity"`
	Credential string   `json:"-" yaml:"-"`
}

// Authenticator 远端认证接口，由平台客户端实现
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Session, error)
}

// record 存储中的会话格式: 身份字段与 token 平铺在同一个 JSON 对象中
type record struct {
	Identity
	Token string `json:"token"`
}

// Store 会话存储
// 显式构造并注入使用，线程安全
type Store struct {
	storage   storage.Storage
	key       string
	now       func() time.Time
	auth      Authenticator
	validator *validate.Validator
	logger    *logger.Logger
	mu        sync.Mutex // 保证 读取-检查-删除 序列的原子性
}

// Option 会话存储选项
type Option func(*Store)

// WithKey 设置存储键名
func WithKey(key string) Option {
	return func(s *Store) {
		if strings.TrimSpace(key) != "" {
			s.key = key
		}
	}
}

// WithClock 设置时钟，用于测试过期判断
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithValidator 设置表单校验器
func WithValidator(v *validate.Validator) Option {
	return func(s *Store) {
		if v != nil {
			s.validator = v
		}
	}
}

// NewStore 创建会话存储
// 参数:
//
//	st: 持久化存储
//	opts: 可选配置
func NewStore(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage:   st,
		key:       DefaultKey,
		now:       time.Now,
		validator: validate.New("zh"),
		logger:    logger.NewLogger(logger.INFO),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAuthenticator 设置远端认证实现
// 平台客户端依赖会话存储提供凭证，因此在两者都构造完成后再注入
func (s *Store) SetAuthenticator(auth Authenticator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = auth
}

// Login 登录并持久化会话
// 输入为空时直接返回校验错误，不发出请求
func (s *Store) Login(ctx context.Context, email, password string) (*Session, error) {
	if err := s.validator.Login(validate.LoginForm{Email: email, Password: password}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	auth := s.auth
	s.mu.Unlock()
	if auth == nil {
		return nil, ErrNoAuthenticator
	}

	sess, err := auth.Authenticate(ctx, strings.TrimSpace(email), password)
	if err != nil {
		s.logger.Warn("登录失败: email=%s, err=%v", email, err)
		return nil, err
	}

	if err := s.Persist(sess.Identity, sess.Credential); err != nil {
		return nil, err
	}
	s.logger.Info("用户登录成功: id=%d, email=%s", sess.Identity.ID, sess.Identity.Email)
	return sess, nil
}

// Persist 保存身份和凭证，覆盖已有会话
func (s *Store) Persist(identity Identity, credential string) error {
	data, err := json.Marshal(record{Identity: identity, Token: credential})
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Set(s.key, string(data)); err != nil {
		return fmt.Errorf("保存会话失败: %w", err)
	}
	return nil
}

// CurrentCredential 返回未过期的凭证
// 凭证缺失或已过期时清除会话并返回 false
func (s *Store) CurrentCredential() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.read()
	if !ok {
		return "", false
	}
	if rec.Token == "" || IsTokenExpired(rec.Token, s.now()) {
		s.logger.Info("会话凭证已过期，清除本地会话")
		if err := s.remove(); err != nil {
			s.logger.Error("清除会话失败: %v", err)
		}
		return "", false
	}
	return rec.Token, true
}

// CurrentIdentity 返回当前用户身份
// 凭证过期时返回 false，但不清除会话
func (s *Store) CurrentIdentity() (*Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.read()
	if !ok || rec.Token == "" || IsTokenExpired(rec.Token, s.now()) {
		return nil, false
	}
	identity := rec.Identity
	return &identity, true
}

// Current 返回完整的有效会话
func (s *Store) Current() (*Session, bool) {
	token, ok := s.CurrentCredential()
	if !ok {
		return nil, false
	}
	identity, ok := s.CurrentIdentity()
	if !ok {
		return nil, false
	}
	return &Session{Identity: *identity, Credential: token}, true
}

// IsAuthenticated 是否存在有效会话
func (s *Store) IsAuthenticated() bool {
	_, ok := s.CurrentCredential()
	return ok
}

// Logout 清除会话，可重复调用
func (s *Store) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove()
}

// CheckExpired 存在已过期的凭证时清除会话并返回 true
func (s *Store) CheckExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.read()
	if !ok || rec.Token == "" {
		return false
	}
	if !IsTokenExpired(rec.Token, s.now()) {
		return false
	}
	if err := s.remove(); err != nil {
		s.logger.Error("清除过期会话失败: %v", err)
	}
	return true
}

// read 读取存储中的会话记录，调用方需持有锁
func (s *Store) read() (*record, bool) {
	raw, ok, err := s.storage.Get(s.key)
	if err != nil {
		s.logger.Error("读取会话失败: %v", err)
		return nil, false
	}
	if !ok || raw == "" {
		return nil, false
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.Warn("会话数据格式错误，将被清除: %v", err)
		if err := s.remove(); err != nil {
			s.logger.Error("清除会话失败: %v", err)
		}
		return nil, false
	}
	return &rec, true
}

func (s *Store) remove() error {
	if err := s.storage.Remove(s.key); err != nil {
		return fmt.Errorf("清除会话失败: %w", err)
	}
	return nil
}
