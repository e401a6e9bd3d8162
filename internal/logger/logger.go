package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel 定义日志级别类型
type LogLevel int

// 日志级别常量定义
const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// LogLevelNames 日志级别名称映射
var LogLevelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// 日志输出格式
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Logger 日志记录器结构体
type Logger struct {
	mu     sync.RWMutex
	level  LogLevel    // 当前日志级别
	format string      // 输出格式: text / json
	out    *log.Logger // 为空时使用标准库全局 logger
}

// NewLogger 创建新的日志记录器实例
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		level:  level,
		format: FormatText,
	}
}

// Discard 返回一个丢弃全部输出的 logger，用于测试和静默场景
func Discard() *Logger {
	l := NewLogger(ERROR)
	l.SetOutput(io.Discard)
	return l
}

// ParseLogLevel 从字符串解析日志级别
func ParseLogLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO // 默认级别
	}
}

// NewFileWriter 创建按大小滚动的日志文件写入器
// 参数:
//
//	path: 日志文件路径，目录不存在时自动创建
func NewFileWriter(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 3,
		MaxAge:     14, // 天
		Compress:   true,
	}, nil
}

// SetOutput 设置日志输出目标
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = log.New(w, "", log.LstdFlags)
}

// SetFormat 设置日志格式，未知格式回退为 text
func (l *Logger) SetFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.EqualFold(format, FormatJSON) {
		l.format = FormatJSON
		return
	}
	l.format = FormatText
}

// shouldLog 检查是否应该记录指定级别的日志
func (l *Logger) shouldLog(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

// formatMessage 格式化日志消息，添加级别标识
func (l *Logger) formatMessage(level LogLevel, format string, args ...interface{}) string {
	levelName := LogLevelNames[level]
	message := fmt.Sprintf(format, args...)

	l.mu.RLock()
	jsonFormat := l.format == FormatJSON
	l.mu.RUnlock()

	if jsonFormat {
		data, err := json.Marshal(map[string]string{"level": levelName, "msg": message})
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("[%s] %s", levelName, message)
}

func (l *Logger) print(message string) {
	l.mu.RLock()
	out := l.out
	l.mu.RUnlock()
	if out != nil {
		out.Print(message)
		return
	}
	log.Print(message)
}

// Debug 记录DEBUG级别日志
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.print(l.formatMessage(DEBUG, format, args...))
	}
}

// Info 记录INFO级别日志
func (l *Logger) Info(format string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.print(l.formatMessage(INFO, format, args...))
	}
}

// Warn 记录WARN级别日志
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.print(l.formatMessage(WARN, format, args...))
	}
}

// Error 记录ERROR级别日志
func (l *Logger) Error(format string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.print(l.formatMessage(ERROR, format, args...))
	}
}

// SetLevel 设置日志级别
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel 获取当前日志级别
func (l *Logger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}
