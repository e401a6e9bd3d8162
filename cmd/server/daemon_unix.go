//go:build !windows

package server

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// isProcessRunning 向进程发送 0 信号判断其是否存在
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// runAsDaemon 以脱离终端的子进程重新执行当前命令
// args 为已去掉守护标志的命令行参数（不含程序名）
func runAsDaemon(pidFile, logFile string, args []string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("无法获取可执行文件路径: %w", err)
	}

	if err = ensureDirForFile(logFile); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	logFH, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}
	defer logFH.Close()

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("打开 %s 失败: %w", os.DevNull, err)
	}
	defer devNull.Close()

	child := exec.Command(exePath, args...)
	child.Stdout = logFH
	child.Stderr = logFH
	child.Stdin = devNull
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Env = append(os.Environ(), "DAEMON_MODE=1")

	if err := child.Start(); err != nil {
		return fmt.Errorf("守护子进程启动失败: %w", err)
	}
	if err := writePID(pidFile, child.Process.Pid); err != nil {
		return fmt.Errorf("写入 PID 文件失败: %w", err)
	}

	fmt.Printf("伴随服务已在后台启动，PID=%d，日志=%s\n", child.Process.Pid, logFile)
	return nil
}
