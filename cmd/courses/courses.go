// Package courses 课程目录、选课与进度相关的子命令
package courses

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"devschool-client/cmd/cmdutil"
	"devschool-client/internal/app"
	"devschool-client/internal/course"
	"devschool-client/internal/lesson"
	"devschool-client/internal/session"

	"github.com/spf13/cobra"
)

// NewCommands 返回 courses、course、enroll、enrollments、progress 子命令
func NewCommands() []*cobra.Command {
	cmds := []*cobra.Command{
		newCoursesCommand(),
		newCourseCommand(),
		newEnrollCommand(),
		newEnrollmentsCommand(),
		newProgressCommand(),
	}
	for _, c := range cmds {
		cmdutil.AddOutputFlag(c)
	}
	return cmds
}

// withApp 加载 App 并要求已登录后执行 fn
func withApp(cmd *cobra.Command, fn func(a *app.App, format string) error) error {
	format, err := cmdutil.OutputFormat(cmd)
	if err != nil {
		return err
	}
	a, cleanup, err := cmdutil.LoadApp()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := a.Identity(); err != nil {
		return loginHint(err)
	}
	return fn(a, format)
}

func newCoursesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "列出全部课程及学习进度",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App, format string) error {
				// 进度只影响卡片展示，拉取失败时仍列出课程
				if _, err := a.RefreshProgress(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "警告: %v\n", err)
				}
				cards, err := a.Catalog.Cards(cmd.Context())
				if err != nil {
					return loginHint(err)
				}
				return cmdutil.Render(cmd.OutOrStdout(), format, cards, func(w io.Writer) {
					if len(cards) == 0 {
						fmt.Fprintln(w, "暂无课程")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\t课程\t级别\t课时\t进度\t操作")
					for _, c := range cards {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", c.ID, c.Title, c.Level, c.Lessons, cmdutil.FormatPercentage(c.Progress), c.Action)
					}
					tw.Flush()
				})
			})
		},
	}
}

func newCourseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "course <id>",
		Short: "显示课程详情和课时列表",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCourseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.App, format string) error {
				c, err := a.Catalog.Course(cmd.Context(), id)
				if err != nil {
					return loginHint(err)
				}
				return cmdutil.Render(cmd.OutOrStdout(), format, c, func(w io.Writer) {
					writeCourse(w, *c)
				})
			})
		},
	}
}

func newEnrollCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <id>",
		Short: "报名课程",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCourseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.App, format string) error {
				e, err := a.Enroll(cmd.Context(), id)
				if err != nil {
					return loginHint(err)
				}
				return cmdutil.Render(cmd.OutOrStdout(), format, e, func(w io.Writer) {
					fmt.Fprintf(w, "已报名课程 %d\n", e.CourseID)
				})
			})
		},
	}
}

func newEnrollmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enrollments",
		Short: "列出当前用户的报名记录",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App, format string) error {
				list, err := a.Enrollments(cmd.Context())
				if err != nil {
					return loginHint(err)
				}
				return cmdutil.Render(cmd.OutOrStdout(), format, list, func(w io.Writer) {
					if len(list) == 0 {
						fmt.Fprintln(w, "尚未报名任何课程")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "报名ID\t课程ID\t报名时间\t状态\t")
					for _, e := range list {
						fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t\n", e.ID, e.CourseID, dash(e.EnrolledAt), dash(e.Status))
					}
					tw.Flush()
				})
			})
		},
	}
}

func newProgressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "显示各课程的学习进度",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App, format string) error {
				list, err := a.RefreshProgress(cmd.Context())
				if err != nil {
					return loginHint(err)
				}
				return cmdutil.Render(cmd.OutOrStdout(), format, list, func(w io.Writer) {
					writeProgress(w, list)
				})
			})
		},
	}
}

func writeCourse(w io.Writer, c course.Course) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = course.DefaultTitle
	}
	fmt.Fprintf(w, "%s (ID %d)\n", title, c.ID)
	if d := strings.TrimSpace(c.Description); d != "" {
		fmt.Fprintln(w, d)
	}
	fmt.Fprintln(w)

	entries := lesson.Flatten(c)
	if len(entries) == 0 {
		fmt.Fprintln(w, "该课程暂无课时")
		return
	}
	lastModule := int64(-1)
	for _, e := range entries {
		if e.Module.ID != lastModule {
			fmt.Fprintf(w, "%s\n", e.Module.Title)
			lastModule = e.Module.ID
		}
		fmt.Fprintf(w, "  %2d. %s\n", e.Index+1, e.Lesson.Title)
	}
	fmt.Fprintf(w, "\n共 %d 个课时\n", len(entries))
}

func writeProgress(w io.Writer, list []course.CourseProgress) {
	if len(list) == 0 {
		fmt.Fprintln(w, "暂无学习记录")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "课程ID\t进度\t已完成\t最近课时\t")
	for _, p := range list {
		last := "-"
		if p.LastLessonTitle != nil && *p.LastLessonTitle != "" {
			last = *p.LastLessonTitle
		}
		status := fmt.Sprintf("%d/%d", p.CompletedLessons, p.TotalLessons)
		if p.Completed {
			status += " ✓"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", p.CourseID, cmdutil.FormatPercentage(p.Percentage), status, last)
	}
	tw.Flush()
}

func parseCourseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("无效的课程ID: %s", raw)
	}
	return id, nil
}

func loginHint(err error) error {
	if errors.Is(err, session.ErrNotAuthenticated) {
		return fmt.Errorf("%w，请先执行 devschool login", err)
	}
	return err
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
