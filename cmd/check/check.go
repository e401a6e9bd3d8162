package check

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"devschool-client/cmd/cmdutil"
	"devschool-client/internal/check"

	"github.com/spf13/cobra"
)

// NewCommand 创建 check 子命令：
// - 配置是否有效
// - 课程平台接口是否可达
// - 会话存储是否可写、当前登录状态
// - 伴随服务端口占用与健康状态（服务未运行不判失败）
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "检查本地环境（配置、平台接口、会话、伴随服务）",
		Long:  "全面检查本地环境：\n1) 配置是否有效\n2) 课程平台接口是否可达\n3) 会话存储是否可写以及登录状态\n4) 伴随服务端口占用与健康状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 静默模式：检查期间不输出组件日志，结束后恢复
			log.SetOutput(io.Discard)
			defer log.SetOutput(os.Stderr)

			cmdutil.BindEnv(cmd, map[string]string{
				"host": "SERVER_HOST",
				"port": "SERVER_PORT",
			})

			format, err := cmdutil.OutputFormat(cmd)
			if err != nil {
				return err
			}

			a, cleanup, err := cmdutil.LoadApp()
			if err != nil {
				// 配置无效时仍输出配置检查项
				summary := check.Run(cmd.Context(), check.Target{})
				_ = render(cmd, format, summary)
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			summary := check.Run(ctx, check.Target{
				Config:   a.Config,
				API:      a.Client,
				Sessions: a.Sessions,
				Storage:  a.Storage,
			})
			if err := render(cmd, format, summary); err != nil {
				return err
			}

			if !summary.OK {
				return fmt.Errorf("环境检查存在失败项，请根据提示修复后重试")
			}
			return nil
		},
	}

	cmd.Flags().String("host", "", "伴随服务主机（默认从环境变量/配置读取）")
	cmd.Flags().Int("port", 0, "伴随服务端口（默认从环境变量/配置读取）")
	cmdutil.AddOutputFlag(cmd)

	return cmd
}

func render(cmd *cobra.Command, format string, summary check.Summary) error {
	return cmdutil.Render(cmd.OutOrStdout(), format, summary, func(w io.Writer) {
		fmt.Fprintln(w, check.RenderSummaryCLI(summary))
	})
}
