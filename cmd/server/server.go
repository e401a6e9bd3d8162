package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"devschool-client/cmd/cmdutil"
	"devschool-client/internal/api"
	"devschool-client/internal/app"
	"devschool-client/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// 守护进程文件名，放在会话文件所在目录
const (
	pidFileName   = "devschool.pid"
	daemonLogName = "daemon.log"
)

// NewRouter 创建伴随服务的 gin 路由
// 未匹配的 /api 路径返回 JSON 404
func NewRouter(a *app.App, hub *websocket.ProgressHub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handler := api.NewHandler(a, hub, nil)
	handler.SetupRoutes(r)

	for _, ri := range r.Routes() {
		a.Logger.Debug("Route registered: %s %s", ri.Method, ri.Path)
	}

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// Run 启动伴随服务并阻塞到收到 SIGINT/SIGTERM
func Run() error {
	a, cleanup, err := cmdutil.LoadApp()
	if err != nil {
		return err
	}
	defer cleanup()
	cfg := a.Config

	hub := websocket.NewProgressHub(a.Tracker)
	hub.SetLogger(a.Logger)

	gin.SetMode(gin.ReleaseMode)
	r := NewRouter(a, hub)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	// WriteTimeout 为 0: WebSocket 连接自行管理写超时
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 15 * time.Second, IdleTimeout: 60 * time.Second}

	a.Logger.Info("DevSchool companion starting on %s", addr)
	a.Logger.Info("Platform API: %s", cfg.API.BaseURL)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Logger.Error("Failed to start server: %v", err)
		return fmt.Errorf("启动伴随服务失败: %w", err)
	case <-quit:
	}
	a.Logger.Info("Shutting down server...")

	// 先关闭观察者连接，Shutdown 不会等待被劫持的 WebSocket 连接
	hub.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error("Server forced to shutdown: %v", err)
	}

	if os.Getenv("DAEMON_MODE") == "1" {
		removePIDFile(pidFilePath(cfg.Session.File))
	}
	a.Logger.Info("Server exited")
	return nil
}

// NewCommand 定义 serve 子命令
// 运行参数通过 Flags（优先级最高）或环境变量读取
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动本地伴随服务",
		Long:  "启动本地伴随服务，为浏览器前端提供会话、课程、学习流程接口和进度 WebSocket 推送",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdutil.BindEnv(cmd, map[string]string{
				"host":       "SERVER_HOST",
				"port":       "SERVER_PORT",
				"log-level":  "LOG_LEVEL",
				"log-format": "LOG_FORMAT",
				"log-file":   "LOG_FILE",
			})

			daemon, _ := cmd.Flags().GetBool("daemon")
			if daemon && os.Getenv("DAEMON_MODE") != "1" {
				return startDaemon(os.Args[1:])
			}
			return Run()
		},
	}

	cmd.Flags().BoolP("daemon", "d", false, "以守护进程模式运行")
	cmd.Flags().String("host", "", "服务器监听地址（默认从环境变量 SERVER_HOST 或默认值读取）")
	cmd.Flags().Int("port", 0, "服务器端口（默认从环境变量 SERVER_PORT 或默认值读取）")
	cmd.Flags().String("log-level", "info", "日志级别: debug|info|warn|error（默认从环境变量 LOG_LEVEL 或默认值读取）")
	cmd.Flags().String("log-format", "text", "日志格式: json|text（默认从环境变量 LOG_FORMAT 或默认值读取）")
	cmd.Flags().String("log-file", "", "日志文件，设置后按大小滚动（默认从环境变量 LOG_FILE 读取）")

	return cmd
}

// startDaemon 在父进程中检查重复实例并拉起守护子进程
func startDaemon(args []string) error {
	sessionFile, err := sessionFileFromEnv()
	if err != nil {
		return err
	}
	pidFile := pidFilePath(sessionFile)
	logFile := filepath.Join(filepath.Dir(sessionFile), daemonLogName)

	if pid, ok := readPIDFromFile(pidFile); ok && isProcessRunning(pid) {
		return fmt.Errorf("已有守护进程在运行(PID=%d)，若需重启，请先停止或清理PID文件: %s", pid, pidFile)
	}
	removePIDFile(pidFile)
	if err := runAsDaemon(pidFile, logFile, filterDaemonFlags(args)); err != nil {
		return fmt.Errorf("守护进程启动失败: %w", err)
	}
	return nil
}

// sessionFileFromEnv 读取生效的会话文件路径，守护进程文件与其放在同一目录
func sessionFileFromEnv() (string, error) {
	a, cleanup, err := cmdutil.LoadApp()
	if err != nil {
		return "", err
	}
	defer cleanup()
	return a.Config.Session.File, nil
}

func pidFilePath(sessionFile string) string {
	return filepath.Join(filepath.Dir(sessionFile), pidFileName)
}

// filterDaemonFlags 过滤守护进程相关标志，避免子进程再次守护化
func filterDaemonFlags(args []string) []string {
	filtered := make([]string, 0, len(args))
	for _, a := range args {
		if a == "-d" || a == "--daemon" || a == "--daemon=true" {
			continue
		}
		filtered = append(filtered, a)
	}
	return filtered
}

// ensureDirForFile 确保文件所在目录存在
func ensureDirForFile(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

// readPIDFromFile 从 PID 文件读取进程号
func readPIDFromFile(filePath string) (int, bool) {
	data, err := os.ReadFile(filePath)
	if err != nil || len(data) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// writePID 写入进程 PID 到指定文件
func writePID(filePath string, pid int) error {
	if err := ensureDirForFile(filePath); err != nil {
		return err
	}
	return os.WriteFile(filePath, []byte(strconv.Itoa(pid)), 0o644)
}

// removePIDFile 删除 PID 文件（忽略错误）
func removePIDFile(filePath string) { _ = os.Remove(filePath) }
