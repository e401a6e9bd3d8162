package platform

import (
	"net/http"

	"devschool-client/internal/logger"
)

// CredentialSource 提供当前凭证，并在凭证被服务端拒绝时登出
// 由 session.Store 实现
type CredentialSource interface {
	CurrentCredential() (string, bool)
	Logout() error
}

// AuthTransport 为每个出站请求附加 Bearer 凭证
// 响应为 401 时清除本地会话，响应本身原样返回，不做重试
type AuthTransport struct {
	Base        http.RoundTripper
	Credentials CredentialSource
	Logger      *logger.Logger
}

// NewAuthTransport 创建认证传输层
// 参数:
//
//	base: 底层传输，为 nil 时使用 http.DefaultTransport
//	creds: 凭证来源
func NewAuthTransport(base http.RoundTripper, creds CredentialSource, l *logger.Logger) *AuthTransport {
	if l == nil {
		l = logger.NewLogger(logger.INFO)
	}
	return &AuthTransport{Base: base, Credentials: creds, Logger: l}
}

// RoundTrip 实现 http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Credentials != nil {
		if token, ok := t.Credentials.CurrentCredential(); ok {
			// RoundTripper 不能修改调用方的请求
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && t.Credentials != nil {
		t.Logger.Warn("请求被拒绝 (401)，清除本地会话: %s %s", req.Method, req.URL.Path)
		if err := t.Credentials.Logout(); err != nil {
			t.Logger.Error("清除会话失败: %v", err)
		}
	}
	return resp, nil
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
