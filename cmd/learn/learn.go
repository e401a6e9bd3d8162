// Package learn 交互式学习流程子命令
//
// 在终端中逐课时学习一门课程：阅读内容、作答测验、完成课时并查看进度。
// 指令按行读取，题目和选项使用当前课时中的序号（从 1 开始）。
package learn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"devschool-client/cmd/cmdutil"
	"devschool-client/internal/lesson"
	"devschool-client/internal/session"

	"github.com/spf13/cobra"
)

const helpText = `指令:
  n          下一课时（当前课时需已完成）
  p          上一课时
  g <n>      跳转到第 n 个课时
  a <q> <o>  第 q 题选择第 o 个选项
  c          完成当前课时
  s          显示当前课时
  h          显示帮助
  q          退出`

// NewCommand 创建 learn 子命令
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "learn <courseId>",
		Short: "交互式学习课程",
		Long:  "打开课程的学习流程，从上次学习的位置继续。\n\n" + helpText,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || courseID <= 0 {
				return fmt.Errorf("无效的课程ID: %s", args[0])
			}

			a, cleanup, err := cmdutil.LoadApp()
			if err != nil {
				return err
			}
			defer cleanup()

			seq, err := a.OpenLesson(cmd.Context(), courseID)
			if seq == nil {
				if errors.Is(err, session.ErrNotAuthenticated) {
					return fmt.Errorf("%w，请先执行 devschool login", err)
				}
				return err
			}
			if errors.Is(err, lesson.ErrEmptyCourse) {
				return err
			}
			if err != nil {
				// 进度或作答加载失败不影响学习
				fmt.Fprintf(cmd.ErrOrStderr(), "警告: %v\n", err)
			}

			loop := NewLoop(seq, cmd.InOrStdin(), cmd.OutOrStdout())
			return loop.Run(cmd.Context())
		},
	}
}

// Loop 读取指令并驱动 Sequencer
type Loop struct {
	seq *lesson.Sequencer
	in  *bufio.Scanner
	out io.Writer
}

// NewLoop 创建交互循环
func NewLoop(seq *lesson.Sequencer, in io.Reader, out io.Writer) *Loop {
	return &Loop{seq: seq, in: bufio.NewScanner(in), out: out}
}

// Run 显示当前课时后逐行执行指令，直到 q、输入结束或 ctx 取消
func (l *Loop) Run(ctx context.Context) error {
	l.show()
	for {
		fmt.Fprint(l.out, "> ")
		if !l.in.Scan() {
			fmt.Fprintln(l.out)
			return l.in.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if quit := l.Exec(ctx, l.in.Text()); quit {
			return nil
		}
	}
}

// Exec 执行一条指令，返回是否退出
// 指令失败只输出提示，不中断循环
func (l *Loop) Exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "q", "quit", "exit":
		l.printf("已退出，当前进度 %s\n", cmdutil.FormatPercentage(l.seq.OverallPercentage()))
		return true
	case "h", "help", "?":
		fmt.Fprintln(l.out, helpText)
	case "s":
		l.show()
	case "n":
		l.navigate(l.seq.GoNext(ctx))
	case "p":
		l.navigate(l.seq.GoPrevious(ctx))
	case "g":
		n, ok := l.argInt(fields, 1)
		if !ok {
			l.printf("用法: g <课时序号>\n")
			return false
		}
		l.navigate(l.seq.GoTo(ctx, n-1))
	case "a":
		l.answer(fields)
	case "c":
		l.complete(ctx)
	default:
		l.printf("未知指令: %s（输入 h 查看帮助）\n", fields[0])
	}
	return false
}

func (l *Loop) navigate(err error) {
	if err != nil && !errors.Is(err, lesson.ErrAnswersUnavailable) {
		l.printf("%v\n", err)
		return
	}
	if err != nil {
		l.printf("警告: %v\n", err)
	}
	l.show()
}

func (l *Loop) answer(fields []string) {
	qn, ok1 := l.argInt(fields, 1)
	on, ok2 := l.argInt(fields, 2)
	if !ok1 || !ok2 {
		l.printf("用法: a <题号> <选项号>\n")
		return
	}

	st := l.seq.State()
	if st.Lesson == nil || qn < 1 || qn > len(st.Lesson.Questions) {
		l.printf("题号超出范围\n")
		return
	}
	q := st.Lesson.Questions[qn-1]
	if on < 1 || on > len(q.Options) {
		l.printf("选项号超出范围\n")
		return
	}
	l.seq.SelectOption(q.ID, q.Options[on-1].ID)

	st = l.seq.State()
	if c := st.Lesson.Questions[qn-1].Correct; c != nil && *c {
		l.printf("第 %d 题: 回答正确\n", qn)
	} else {
		l.printf("第 %d 题: 回答错误\n", qn)
		if exp := strings.TrimSpace(q.Explanation); exp != "" {
			l.printf("  %s\n", exp)
		}
	}
}

func (l *Loop) complete(ctx context.Context) {
	st := l.seq.State()
	res, err := l.seq.AttemptComplete(ctx, st.Index)
	if err != nil && !res.Completed {
		l.printf("完成课时失败: %v\n", err)
		return
	}
	if !res.Completed {
		l.printf("还有题目未满足要求: %s\n", l.questionNumbers(st, res.Unmet))
		return
	}

	if err != nil {
		l.printf("警告: %v\n", err)
	}
	l.printf("课时已完成，课程进度 %s\n", cmdutil.FormatPercentage(l.seq.OverallPercentage()))
	if l.seq.IsCourseComplete() {
		l.printf("恭喜，课程已全部完成！\n")
	}
	if res.Advanced {
		l.show()
	}
}

// questionNumbers 把题目 ID 转换为课时中的题号
func (l *Loop) questionNumbers(st lesson.State, ids []int64) string {
	if st.Lesson == nil {
		return ""
	}
	nums := make([]string, 0, len(ids))
	for _, id := range ids {
		for i, q := range st.Lesson.Questions {
			if q.ID == id {
				nums = append(nums, strconv.Itoa(i+1))
			}
		}
	}
	return strings.Join(nums, ", ")
}

func (l *Loop) show() {
	WriteState(l.out, l.seq.State())
}

func (l *Loop) argInt(fields []string, i int) (int, bool) {
	if len(fields) <= i {
		return 0, false
	}
	n, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (l *Loop) printf(format string, args ...interface{}) {
	fmt.Fprintf(l.out, format, args...)
}

// WriteState 以文本形式输出学习流程快照
func WriteState(w io.Writer, st lesson.State) {
	fmt.Fprintf(w, "\n== %s  [%d/%d]  进度 %s ==\n", st.CourseTitle, st.Index+1, st.Total, cmdutil.FormatPercentage(st.Percentage))
	if st.Lesson == nil {
		fmt.Fprintln(w, "该课程暂无课时")
		return
	}

	step := st.Steps[st.Index]
	mark := ""
	if step.Done {
		mark = " ✓"
	}
	fmt.Fprintf(w, "%s / %s%s\n\n", step.ModuleTitle, st.Lesson.Title, mark)

	for _, intro := range st.Lesson.Intros {
		fmt.Fprintln(w, intro)
	}
	if content := strings.TrimSpace(st.Lesson.Content); content != "" {
		fmt.Fprintln(w, content)
	}
	if st.Lesson.EmbedURL != "" {
		fmt.Fprintf(w, "视频: %s\n", st.Lesson.EmbedURL)
	}

	for i, q := range st.Lesson.Questions {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, q.Prompt)
		for j, o := range q.Options {
			sel := " "
			if q.Selected != nil && *q.Selected == o.ID {
				sel = "*"
			}
			fmt.Fprintf(w, "   [%s] %d) %s\n", sel, j+1, o.Text)
		}
		if q.Correct != nil {
			if *q.Correct {
				fmt.Fprintln(w, "   ✓ 回答正确")
			} else {
				fmt.Fprintln(w, "   ✗ 回答错误")
			}
		}
	}

	fmt.Fprintln(w)
	if st.CanComplete {
		fmt.Fprintln(w, "可以完成本课时（输入 c）")
	}
}
