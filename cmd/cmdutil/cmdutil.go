// Package cmdutil 子命令共用的配置加载、组件构建与结果输出
package cmdutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"devschool-client/internal/app"
	"devschool-client/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// 输出格式
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// BindEnv 用户显式设置了 flag 时写入对应环境变量
// 实现 "Flags > Env > 默认值" 的优先级，配置仍由 config.Load 统一读取
func BindEnv(cmd *cobra.Command, pairs map[string]string) {
	for flag, env := range pairs {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		_ = os.Setenv(env, f.Value.String())
	}
}

// LoadApp 加载配置并构建 App
// 返回的 cleanup 负责关闭 App 和日志文件，调用方必须执行
func LoadApp() (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	l, closeLog, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	a, err := app.New(cfg, l)
	if err != nil {
		_ = closeLog()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		_ = closeLog()
	}, nil
}

// OutputFormat 读取 --output 标志，未知格式返回错误
func OutputFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return OutputText, nil
	}
	switch strings.ToLower(format) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	case OutputYAML, "yml":
		return OutputYAML, nil
	default:
		return "", fmt.Errorf("不支持的输出格式: %s（可选 text|json|yaml）", format)
	}
}

// AddOutputFlag 为命令添加 --output/-o 标志
func AddOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", OutputText, "输出格式: text|json|yaml")
}

// Render 按格式输出 v；text 格式调用 text 回调
func Render(w io.Writer, format string, v interface{}, text func(io.Writer)) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

// FormatPercentage 进度百分比的统一展示
func FormatPercentage(p float64) string {
	return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.2f", p), "0"), ".0") + "%"
}
