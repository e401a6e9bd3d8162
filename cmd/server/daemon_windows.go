//go:build windows

package server

import "fmt"

// isProcessRunning Windows 下没有可用的信号探测，始终返回 false
func isProcessRunning(_ int) bool {
	return false
}

// runAsDaemon Windows 下不支持后台模式
func runAsDaemon(_ string, _ string, _ []string) error {
	return fmt.Errorf("Windows 下不支持后台模式，请以服务或计划任务方式运行 devschool serve")
}
