package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"devschool-client/internal/logger"

	"gopkg.in/yaml.v3"
)

// 完成闸门策略
const (
	GateAllCorrect  = "all-correct"
	GateAllAnswered = "all-answered"
)

// Config 应用程序配置结构
// 包含平台接口、会话存储、学习流程、伴随服务和日志相关的所有配置项
type Config struct {
	// API 课程平台接口配置
	API     APIConfig     `json:"api" yaml:"api"`
	Session SessionConfig `json:"session" yaml:"session"`
	// Learn 学习流程配置
	Learn  LearnConfig  `json:"learn" yaml:"learn"`
	Server ServerConfig `json:"server" yaml:"server"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// APIConfig 平台接口配置
type APIConfig struct {
	// BaseURL 平台接口根地址，以 / 结尾
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`
	Timeout int    `json:"timeout" yaml:"timeout"` // 请求超时（秒），0 表示不设置
}

// SessionConfig 会话持久化配置
type SessionConfig struct {
	File        string `json:"file" yaml:"file"`               // 会话存储文件
	Key         string `json:"key" yaml:"key"`                 // 存储键名
	EmailDomain string `json:"emailDomain" yaml:"emailDomain"` // 注册时拼接的邮箱域名
}

// LearnConfig 学习流程配置
type LearnConfig struct {
	GatePolicy string `json:"gatePolicy" yaml:"gatePolicy"` // all-correct 或 all-answered
}

// ServerConfig 伴随服务配置
// 定义本地HTTP服务器的监听地址和端口
type ServerConfig struct {
	Host string `json:"host" yaml:"host"` // 服务器监听地址
	Port int    `json:"port" yaml:"port"` // 服务器监听端口
}

// LogConfig 日志系统相关配置
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // 日志级别 (debug, info, warn, error)
	Format string `json:"format" yaml:"format"` // 日志格式 (json, text)
	File   string `json:"file" yaml:"file"`     // 日志文件，为空时输出到标准错误
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080/api/",
			Timeout: 0,
		},
		Session: SessionConfig{
			File:        defaultSessionFile(),
			Key:         "usuario",
			EmailDomain: "devschool.com",
		},
		Learn: LearnConfig{
			GatePolicy: GateAllCorrect,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4300,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 加载配置
// 加载顺序: 默认值 -> CONFIG_FILE 指定的 YAML 文件 -> 环境变量
// 支持的环境变量:
//   - API_BASE_URL: 平台接口根地址 (默认: http://localhost:8080/api/)
//   - API_TIMEOUT: 请求超时秒数 (默认: 0，不设置)
//   - SESSION_FILE: 会话存储文件 (默认: ~/.devschool/session.json)
//   - SESSION_KEY: 会话存储键名 (默认: usuario)
//   - EMAIL_DOMAIN: 注册邮箱域名 (默认: devschool.com)
//   - GATE_POLICY: 课时完成闸门 (默认: all-correct)
//   - SERVER_HOST / SERVER_PORT: 伴随服务监听地址 (默认: 127.0.0.1:4300)
//   - LOG_LEVEL / LOG_FORMAT / LOG_FILE: 日志配置
//
// 配置验证失败时返回错误
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	cfg.API.BaseURL = normalizeBaseURL(cfg.API.BaseURL)
	cfg.Learn.GatePolicy = strings.ToLower(cfg.Learn.GatePolicy)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile 从 YAML 文件覆盖配置，文件中未出现的字段保持原值
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.API.BaseURL = getEnv("API_BASE_URL", cfg.API.BaseURL)
	cfg.API.Timeout = getEnvInt("API_TIMEOUT", cfg.API.Timeout)
	cfg.Session.File = getEnv("SESSION_FILE", cfg.Session.File)
	cfg.Session.Key = getEnv("SESSION_KEY", cfg.Session.Key)
	cfg.Session.EmailDomain = getEnv("EMAIL_DOMAIN", cfg.Session.EmailDomain)
	cfg.Learn.GatePolicy = getEnv("GATE_POLICY", cfg.Learn.GatePolicy)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
}

// validateConfig 验证配置的有效性
func validateConfig(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api base url: %q", cfg.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api base url scheme: %s, must be http or https", u.Scheme)
	}

	if cfg.API.Timeout < 0 {
		return fmt.Errorf("invalid api timeout: %d, must not be negative", cfg.API.Timeout)
	}

	// 检查端口范围
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d, must be between 1 and 65535", cfg.Server.Port)
	}

	if strings.TrimSpace(cfg.Session.File) == "" {
		return fmt.Errorf("session file must not be empty")
	}
	if strings.TrimSpace(cfg.Session.Key) == "" {
		return fmt.Errorf("session key must not be empty")
	}

	if cfg.Learn.GatePolicy != GateAllCorrect && cfg.Learn.GatePolicy != GateAllAnswered {
		return fmt.Errorf("invalid gate policy: %s, must be one of: %s, %s", cfg.Learn.GatePolicy, GateAllCorrect, GateAllAnswered)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s, must be one of: debug, info, warn, error", cfg.Log.Level)
	}

	return nil
}

// NewLogger 按日志配置创建 logger
// 设置了 LOG_FILE 时写入滚动日志文件，返回的 closer 需由调用方关闭
func (cfg *Config) NewLogger() (*logger.Logger, func() error, error) {
	l := logger.NewLogger(logger.ParseLogLevel(cfg.Log.Level))
	l.SetFormat(cfg.Log.Format)
	if cfg.Log.File == "" {
		return l, func() error { return nil }, nil
	}
	w, err := logger.NewFileWriter(cfg.Log.File)
	if err != nil {
		return nil, nil, err
	}
	l.SetOutput(w)
	return l, w.Close, nil
}

// normalizeBaseURL 保证根地址以 / 结尾，便于拼接相对路径
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".devschool", "session.json")
	}
	return filepath.Join(home, ".devschool", "session.json")
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整数类型的环境变量，如果不存在或转换失败则返回默认值
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		// 记录解析错误但不中断程序
		tempLogger := logger.NewLogger(logger.WARN)
		tempLogger.Warn("failed to parse %s as integer: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}
