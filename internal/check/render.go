package check

import (
	"fmt"
	"strings"
)

const (
	bannerBegin = "================ 环境检查开始 ================"
	bannerEnd   = "================ 环境检查结束 ================"
)

// RenderSummaryCLI 将检查结果渲染为适合 CLI 输出的文本
// 失败项在末尾汇总数量，详情按行缩进
func RenderSummaryCLI(summary Summary) string {
	var b strings.Builder
	b.WriteString(bannerBegin + "\n")

	failed := 0
	for _, it := range summary.Items {
		mark := "✅"
		if !it.OK {
			mark = "❌"
			failed++
		}
		fmt.Fprintf(&b, "[%s] %s：%s\n", mark, it.Name, it.Message)

		if details := strings.TrimRight(it.Details, "\n"); strings.TrimSpace(details) != "" {
			b.WriteString(indent(details+"\n", "    "))
		}
	}

	if failed > 0 {
		fmt.Fprintf(&b, "共 %d 项检查未通过\n", failed)
	}
	b.WriteString(bannerEnd)
	return b.String()
}

// indent 为每个非空行加前缀
func indent(s, prefix string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		if line == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(line)
	}
	return b.String()
}
