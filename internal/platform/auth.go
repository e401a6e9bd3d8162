package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"devschool-client/internal/session"
)

// 平台返回的错误文本
const (
	notActivatedMarker = "no activada"
	emailTakenMessage  = "El correo ya existe"
)

// LoginResponse 登录接口响应: 身份字段与 token 平铺
type LoginResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"nombre"`
	LastName string `json:"apellidos"`
	Email    string `json:"correo"`
	Role     string `json:"rol"`
	IsAdmin  bool   `json:"esAdmin"`
	Token    string `json:"token"`
}

// Session 转换为会话
func (r LoginResponse) Session() *session.Session {
	return &session.Session{
		Identity: session.Identity{
			ID:       r.ID,
			Name:     r.Name,
			LastName: r.LastName,
			Email:    r.Email,
			Role:     r.Role,
			IsAdmin:  r.IsAdmin,
		},
		Credential: r.Token,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Name     string `json:"nombre"`
	LastName string `json:"apellidos"`
	Email    string `json:"correo"`
	Password string `json:"password"`
}

// RegisterResponse 注册响应，平台不返回凭证
type RegisterResponse struct {
	Message string `json:"message"`
	Email   string `json:"correo"`
}

// Login POST auth/login
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body := map[string]string{"correo": email, "password": password}
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "auth/login", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Authenticate 实现 session.Authenticator
// 平台错误信息包含 "no activada" 时归类为账号未激活，其余平台错误归类为凭证错误
func (c *Client) Authenticate(ctx context.Context, email, password string) (*session.Session, error) {
	resp, err := c.Login(ctx, email, password)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if strings.Contains(apiErr.Message, notActivatedMarker) {
				return nil, fmt.Errorf("%w: %w", session.ErrAccountNotActivated, apiErr)
			}
			return nil, fmt.Errorf("%w: %w", session.ErrInvalidCredentials, apiErr)
		}
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: 登录响应缺少 token", session.ErrInvalidCredentials)
	}
	return resp.Session(), nil
}

// Register POST auth/register
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var out RegisterResponse
	if err := c.do(ctx, http.MethodPost, "auth/register", nil, req, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message == emailTakenMessage {
			return nil, fmt.Errorf("%w: %w", ErrEmailTaken, apiErr)
		}
		return nil, err
	}
	return &out, nil
}
