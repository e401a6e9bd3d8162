package lesson

import (
	"net/url"
	"sort"
	"strings"

	"devschool-client/internal/course"
)

// Entry 展开后的课时，Index 为在整门课程中的位置
type Entry struct {
	Index  int
	Module course.Module
	Lesson course.Lesson
}

// Flatten 按模块顺序、再按课时顺序把课程展开为线性序列
// 排序按 OrderIndex 升序，相同时按 ID，不修改传入的课程
func Flatten(c course.Course) []Entry {
	modules := append([]course.Module(nil), c.Modules...)
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].OrderIndex != modules[j].OrderIndex {
			return modules[i].OrderIndex < modules[j].OrderIndex
		}
		return modules[i].ID < modules[j].ID
	})

	entries := make([]Entry, 0, c.LessonCount())
	for _, m := range modules {
		lessons := append([]course.Lesson(nil), m.Lessons...)
		sort.SliceStable(lessons, func(i, j int) bool {
			if lessons[i].OrderIndex != lessons[j].OrderIndex {
				return lessons[i].OrderIndex < lessons[j].OrderIndex
			}
			return lessons[i].ID < lessons[j].ID
		})
		for _, l := range lessons {
			entries = append(entries, Entry{Index: len(entries), Module: m, Lesson: l})
		}
	}
	return entries
}

// EmbedVideoURL 把视频地址转换为 YouTube 嵌入地址
// 地址中带 v= 参数时取其值作为视频 ID，否则整个地址视为视频 ID
func EmbedVideoURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	id := raw
	if i := strings.Index(raw, "v="); i >= 0 {
		id = raw[i+2:]
		if j := strings.Index(id, "&"); j >= 0 {
			id = id[:j]
		}
	}
	return "https://www.youtube.com/embed/" + url.PathEscape(id)
}
