package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"devschool-client/cmd/auth"
	checkcmd "devschool-client/cmd/check"
	"devschool-client/cmd/cmdutil"
	"devschool-client/cmd/courses"
	"devschool-client/cmd/learn"
	"devschool-client/cmd/server"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version 发布构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

// newRootCommand 创建 devschool 根命令并注册全部子命令
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "devschool",
		Short:         "DevSchool 课程平台客户端",
		Long:          "DevSchool 课程平台客户端：登录注册、浏览课程、交互式学习，以及为浏览器前端提供本地伴随服务",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 全局 Flags 覆盖环境变量，配置由各子命令按需加载
			cmdutil.BindEnv(cmd, map[string]string{
				"config":  "CONFIG_FILE",
				"api-url": "API_BASE_URL",
			})
			if cmd.Flags().Changed("verbose") {
				_ = os.Setenv("LOG_LEVEL", "debug")
			}
		},
	}

	root.PersistentFlags().String("config", "", "YAML 配置文件（默认从环境变量 CONFIG_FILE 读取）")
	root.PersistentFlags().String("api-url", "", "课程平台接口根地址（默认从环境变量 API_BASE_URL 读取）")
	root.PersistentFlags().BoolP("verbose", "v", false, "输出调试日志")

	root.AddCommand(auth.NewCommands()...)
	root.AddCommand(courses.NewCommands()...)
	root.AddCommand(learn.NewCommand())
	root.AddCommand(server.NewCommand())
	root.AddCommand(checkcmd.NewCommand())
	return root
}

// main 是应用程序的入口函数
func main() {
	// .env 文件不存在时不中断程序，环境变量也可以通过其他方式设置
	_ = godotenv.Load()

	// 命令行模式下 Ctrl+C 取消进行中的请求；serve 自行处理信号
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}
