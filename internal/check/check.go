package check

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"devschool-client/internal/config"
	"devschool-client/internal/session"
)

// Item 单项检查结果
type Item struct {
	Name    string `json:"name" yaml:"name"`
	OK      bool   `json:"ok" yaml:"ok"`
	Message string `json:"message" yaml:"message"`
	Details string `json:"details,omitempty" yaml:"details,omitempty"`
}

// Summary 检查汇总
type Summary struct {
	OK    bool   `json:"ok" yaml:"ok"`
	Items []Item `json:"items" yaml:"items"`
}

// Pinger 平台可达性探测，由平台客户端实现
type Pinger interface {
	Ping(ctx context.Context) error
	BaseURL() string
}

// SessionSource 当前会话来源，由会话存储实现
type SessionSource interface {
	Current() (*session.Session, bool)
}

// WritableStorage 可检查写权限的持久化存储
type WritableStorage interface {
	Writable() error
	Path() string
}

// Target 需要检查的组件
type Target struct {
	Config   *config.Config
	API      Pinger
	Sessions SessionSource
	Storage  WritableStorage
}

// Run 依次执行全部检查
func Run(ctx context.Context, t Target) Summary {
	items := make([]Item, 0, 6)
	cfg := t.Config

	// 1) 配置
	configOK, configMsg, configDetails := Configuration(cfg)
	items = append(items, Item{Name: "配置", OK: configOK, Message: configMsg, Details: configDetails})

	// 2) 平台接口
	if t.API != nil {
		apiOK, apiMsg := APIReachability(ctx, t.API)
		items = append(items, Item{Name: fmt.Sprintf("平台接口 (%s)", t.API.BaseURL()), OK: apiOK, Message: apiMsg})
	}

	// 3) 会话存储
	if t.Storage != nil {
		storageOK, storageMsg := StorageWritable(t.Storage)
		items = append(items, Item{Name: fmt.Sprintf("会话存储 (%s)", t.Storage.Path()), OK: storageOK, Message: storageMsg})
	}

	// 4) 会话状态
	if t.Sessions != nil {
		sessionOK, sessionMsg := SessionState(t.Sessions)
		items = append(items, Item{Name: "登录状态", OK: sessionOK, Message: sessionMsg})
	}

	if cfg != nil {
		// 5) 端口占用
		portOK, portMsg := PortOccupation(cfg.Server.Host, cfg.Server.Port)
		items = append(items, Item{Name: fmt.Sprintf("端口占用 (%s:%d)", cfg.Server.Host, cfg.Server.Port), OK: portOK, Message: portMsg})

		// 6) 伴随服务健康
		serviceOK, serviceMsg := ServiceHealth(cfg.Server.Host, cfg.Server.Port)
		items = append(items, Item{Name: fmt.Sprintf("伴随服务健康检查 (%s:%d)", cfg.Server.Host, cfg.Server.Port), OK: serviceOK, Message: serviceMsg})
	}

	ok := true
	for _, it := range items {
		if !it.OK {
			ok = false
		}
	}
	return Summary{OK: ok, Items: items}
}

// Configuration 汇总生效的配置
func Configuration(cfg *config.Config) (bool, string, string) {
	if cfg == nil {
		return false, "配置未初始化", ""
	}
	details := strings.Join([]string{
		"API_BASE_URL=" + cfg.API.BaseURL,
		"SESSION_FILE=" + cfg.Session.File,
		"GATE_POLICY=" + cfg.Learn.GatePolicy,
		"LOG_LEVEL=" + cfg.Log.Level,
	}, "\n")
	return true, "配置加载成功", details
}

// APIReachability 检查平台接口是否可达，任何 HTTP 响应都视为可达
func APIReachability(ctx context.Context, p Pinger) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return false, fmt.Sprintf("平台接口不可达：%v", err)
	}
	return true, "平台接口可达"
}

// StorageWritable 检查会话存储目录是否可写
func StorageWritable(s WritableStorage) (bool, string) {
	if err := s.Writable(); err != nil {
		return false, err.Error()
	}
	return true, "存储目录可写"
}

// SessionState 报告当前登录状态，未登录不视为失败
func SessionState(s SessionSource) (bool, string) {
	sess, ok := s.Current()
	if !ok {
		return true, "未登录（或会话已过期）"
	}
	return true, fmt.Sprintf("已登录：%s %s <%s>", sess.Identity.Name, sess.Identity.LastName, sess.Identity.Email)
}

// PortOccupation 检查伴随服务端口占用
func PortOccupation(host string, port int) (bool, string) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, 800*time.Millisecond)
	if err != nil {
		return true, "端口未被占用，可用"
	}
	_ = conn.Close()

	if IsPortUsedByCurrentService(host, port) {
		return true, "端口被本服务使用（正常）"
	}
	return false, "端口已被其他进程占用"
}

// IsPortUsedByCurrentService 通过 /health 识别是否为本服务
func IsPortUsedByCurrentService(host string, port int) bool {
	url := fmt.Sprintf("http://%s/health", net.JoinHostPort(host, strconv.Itoa(port)))
	client := &http.Client{Timeout: 800 * time.Millisecond}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var payload struct{ Status, Message string }
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false
	}
	return strings.ToLower(payload.Status) == "ok" && strings.Contains(payload.Message, "DevSchool")
}

// ServiceHealth 调用 /health 检查伴随服务状态，服务未运行不视为失败
func ServiceHealth(host string, port int) (bool, string) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, 800*time.Millisecond)
	if err != nil {
		return true, "服务未运行"
	}
	_ = conn.Close()

	url := fmt.Sprintf("http://%s/health", addr)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return false, fmt.Sprintf("服务已监听，但健康端点访问失败：%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("服务已监听，但健康端点返回非 200 状态码：%d", resp.StatusCode)
	}
	return true, "服务正在运行且健康（/health 返回 200）"
}
