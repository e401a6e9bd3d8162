// Package platform DevSchool 课程平台的 HTTP 客户端
//
// 所有请求都经过 AuthTransport 附加凭证；非 2xx 响应转换为 *APIError，
// 网络错误包装为 session.ErrNetwork。客户端不做重试。
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"devschool-client/internal/logger"
	"devschool-client/internal/session"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

var (
	ErrUnauthorized = errors.New("未授权，请重新登录")
	ErrNotFound     = errors.New("资源不存在")
	ErrEmailTaken   = errors.New("该邮箱已被注册")
)

// APIError 平台返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is 使 401/404 可以用 errors.Is 匹配 ErrUnauthorized/ErrNotFound
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Client 课程平台客户端
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	creds     CredentialSource
	timeout   time.Duration
	userAgent string
	logger    *logger.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义 http.Client（其 Transport 会被 AuthTransport 包装）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCredentialSource 设置凭证来源
func WithCredentialSource(src CredentialSource) Option {
	return func(c *Client) { c.creds = src }
}

// WithTimeout 设置请求超时，0 表示不设置
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUserAgent 设置 User-Agent
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger 设置日志记录器
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New 创建平台客户端
// 参数:
//
//	baseURL: 平台接口根地址，例如 "http://localhost:8080/api/"
//	opts: 可选配置
func New(baseURL string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url: %q", baseURL)
	}

	c := &Client{
		baseURL:   u,
		userAgent: "devschool-client",
		logger:    logger.NewLogger(logger.INFO),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := &http.Client{}
	if c.http != nil {
		copied := *c.http
		hc = &copied
	}
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	hc.Transport = NewAuthTransport(hc.Transport, c.creds, c.logger)
	c.http = hc

	return c, nil
}

// BaseURL 返回平台接口根地址
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Ping 检查平台是否可达，任何 HTTP 响应都视为可达
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrNetwork, err)
	}
	resp.Body.Close()
	return nil
}

// do 发送 JSON 请求并解码响应
// 参数:
//
//	path: 相对于根地址的路径，例如 "cursos/1"
//	query: 查询参数，可为 nil
//	body: 请求体，为 nil 时不发送
//	out: 响应解码目标，为 nil 时丢弃响应体
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	ref := &url.URL{Path: path}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("%s %s failed: %v", method, target.Path, err)
		return fmt.Errorf("%w: %w", session.ErrNetwork, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("%s %s -> %d (%s)", method, target.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp, method, path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrNetwork, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析响应失败 %s %s: %w", method, path, err)
	}
	return nil
}

// apiError 从响应体提取错误信息
// 优先使用 JSON 的 error / message 字段，否则使用纯文本
func (c *Client) apiError(resp *http.Response, method, path string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(data, &payload); err == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	} else {
		msg = strings.TrimSpace(string(data))
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Method:     method,
		Path:       path,
	}
}
