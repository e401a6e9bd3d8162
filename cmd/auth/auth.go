// Package auth 登录、注册与会话相关的子命令
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"devschool-client/cmd/cmdutil"
	"devschool-client/internal/session"
	"devschool-client/internal/validate"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewCommands 返回 login、logout、whoami、register 子命令
func NewCommands() []*cobra.Command {
	return []*cobra.Command{
		newLoginCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newRegisterCommand(),
	}
}

func newLoginCommand() *cobra.Command {
	var (
		email         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "登录课程平台",
		Long:  "使用邮箱和密码登录课程平台，成功后会话保存在本地，直到凭证过期或退出登录",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := cmdutil.LoadApp()
			if err != nil {
				return err
			}
			defer cleanup()

			in := bufio.NewReader(cmd.InOrStdin())
			if strings.TrimSpace(email) == "" {
				fmt.Fprint(cmd.OutOrStdout(), "邮箱: ")
				if email, err = readLine(in); err != nil {
					return err
				}
			}
			password, err := readPassword(cmd, in, passwordStdin, "密码: ")
			if err != nil {
				return err
			}

			sess, err := a.Sessions.Login(cmd.Context(), strings.TrimSpace(email), password)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "登录成功，欢迎 %s\n", displayName(sess.Identity))
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "登录邮箱")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "从标准输入读取密码")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "退出登录并清除本地会话",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := cmdutil.LoadApp()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.Logout(); err != nil {
				return fmt.Errorf("清除会话失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "已退出登录")
			return nil
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "显示当前登录用户",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cmdutil.OutputFormat(cmd)
			if err != nil {
				return err
			}
			a, cleanup, err := cmdutil.LoadApp()
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := a.Identity()
			if err != nil {
				return describe(err)
			}
			return cmdutil.Render(cmd.OutOrStdout(), format, id, func(w io.Writer) {
				fmt.Fprintf(w, "%s <%s>\n", displayName(*id), id.Email)
				fmt.Fprintf(w, "ID: %d  角色: %s\n", id.ID, roleLabel(*id))
			})
		},
	}
	cmdutil.AddOutputFlag(cmd)
	return cmd
}

func newRegisterCommand() *cobra.Command {
	var (
		form          validate.RegisterForm
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "注册新账号",
		Long:  "注册新账号，邮箱只填写用户名部分，域名由配置 EMAIL_DOMAIN 决定。注册后需通过邮件激活才能登录",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := cmdutil.LoadApp()
			if err != nil {
				return err
			}
			defer cleanup()

			in := bufio.NewReader(cmd.InOrStdin())
			if form.Password, err = readPassword(cmd, in, passwordStdin, "密码: "); err != nil {
				return err
			}
			if passwordStdin {
				form.Confirm = form.Password
			} else if form.Confirm, err = readPassword(cmd, in, false, "确认密码: "); err != nil {
				return err
			}

			resp, err := a.Register(cmd.Context(), form)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "注册成功: %s\n请查收激活邮件后再登录\n", resp.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&form.Name, "name", "", "名字")
	cmd.Flags().StringVar(&form.LastName, "last-name", "", "姓氏")
	cmd.Flags().StringVar(&form.Mailbox, "mailbox", "", "邮箱用户名（不含 @ 和域名）")
	cmd.Flags().BoolVar(&form.AcceptTerms, "accept-terms", false, "同意服务条款")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "从标准输入读取密码")
	return cmd
}

// readPassword 读取密码
// 标准输入是终端且未指定 --password-stdin 时关闭回显读取，否则按行读取
func readPassword(cmd *cobra.Command, in *bufio.Reader, fromStdin bool, prompt string) (string, error) {
	if !fromStdin {
		if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fmt.Fprint(cmd.OutOrStdout(), prompt)
			data, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return "", fmt.Errorf("读取密码失败: %w", err)
			}
			return string(data), nil
		}
	}
	return readLine(in)
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("读取输入失败: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// describe 给认证相关错误补充操作提示
func describe(err error) error {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return fmt.Errorf("%w，请先执行 devschool login", err)
	case validate.IsValidationError(err):
		return fmt.Errorf("表单校验失败: %w", err)
	default:
		return err
	}
}

func displayName(id session.Identity) string {
	name := strings.TrimSpace(id.Name + " " + id.LastName)
	if name == "" {
		return id.Email
	}
	return name
}

func roleLabel(id session.Identity) string {
	if id.IsAdmin {
		return "管理员"
	}
	if id.Role == "" {
		return "学生"
	}
	return id.Role
}
