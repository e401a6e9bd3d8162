// Package course 提供课程数据模型和课程目录
//
// 主要功能:
//   - 平台 JSON 接口对应的课程、模块、课时、题目等模型
//   - 课程卡片构建（默认值、课时统计、本地进度、图片地址规范化）
//   - 线程安全的课程缓存
//
// 使用示例:
//
//	catalog := course.NewCatalog(client, tracker)
//	cards, err := catalog.Cards(ctx)
package course

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"devschool-client/internal/logger"
)

// 卡片默认文案与按钮标签
const (
	DefaultTitle       = "未命名课程"
	DefaultDescription = "暂无描述"
	DefaultLevel       = "基础"

	ActionStart    = "开始学习"
	ActionContinue = "继续学习"
	ActionReview   = "查看内容"
)

// Lister 课程数据来源，通常由平台客户端实现
type Lister interface {
	ListCourses(ctx context.Context) ([]Course, error)
	GetCourse(ctx context.Context, id int64) (*Course, error)
}

// PercentageSource 本地进度来源，通常由进度跟踪器实现
type PercentageSource interface {
	CurrentLocalPercentage(courseID int64) float64
}

// Card 课程列表中的卡片
type Card struct {
	ID          int64   `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Description string  `json:"description" yaml:"description"`
	Level       string  `json:"level" yaml:"level"`
	Lessons     int     `json:"lessons" yaml:"lessons"`
	Progress    float64 `json:"progress" yaml:"progress"`
	ImageURL    string  `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	Action      string  `json:"action" yaml:"action"`
}

// Catalog 课程目录，负责课程列表和卡片构建
// 线程安全，支持并发访问
type Catalog struct {
	source   Lister
	progress PercentageSource
	courses  map[int64]*Course // 课程缓存，key为课程ID
	mu       sync.RWMutex
	logger   *logger.Logger
}

// NewCatalog 创建课程目录
// 参数:
//
//	source: 课程数据来源
//	progress: 本地进度来源，可为 nil（此时进度均为 0）
func NewCatalog(source Lister, progress PercentageSource) *Catalog {
	return &Catalog{
		source:   source,
		progress: progress,
		courses:  make(map[int64]*Course),
		logger:   logger.NewLogger(logger.INFO),
	}
}

// SetLogger 设置日志记录器实例
func (c *Catalog) SetLogger(loggerInstance *logger.Logger) {
	c.logger = loggerInstance
}

// Courses 拉取课程列表并刷新缓存
func (c *Catalog) Courses(ctx context.Context) ([]Course, error) {
	list, err := c.source.ListCourses(ctx)
	if err != nil {
		c.logger.Error("加载课程列表失败: %v", err)
		return nil, fmt.Errorf("加载课程列表失败: %w", err)
	}

	c.mu.Lock()
	c.courses = make(map[int64]*Course, len(list))
	for i := range list {
		course := list[i]
		c.courses[course.ID] = &course
	}
	c.mu.Unlock()

	c.logger.Debug("Loaded %d courses from platform", len(list))
	return list, nil
}

// Cards 拉取课程列表并构建卡片
func (c *Catalog) Cards(ctx context.Context) ([]Card, error) {
	list, err := c.Courses(ctx)
	if err != nil {
		return nil, err
	}
	cards := make([]Card, 0, len(list))
	for _, course := range list {
		cards = append(cards, c.card(course))
	}
	return cards, nil
}

// Course 获取单个课程详情并写入缓存
func (c *Catalog) Course(ctx context.Context, id int64) (*Course, error) {
	course, err := c.source.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.courses[id] = course
	c.mu.Unlock()
	return course, nil
}

// Cached 从缓存读取课程，未命中返回 false
func (c *Catalog) Cached(id int64) (*Course, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	course, ok := c.courses[id]
	return course, ok
}

func (c *Catalog) card(course Course) Card {
	title := strings.TrimSpace(course.Title)
	if title == "" {
		title = DefaultTitle
	}
	description := strings.TrimSpace(course.Description)
	if description == "" {
		description = DefaultDescription
	}

	var pct float64
	if c.progress != nil {
		pct = c.progress.CurrentLocalPercentage(course.ID)
	}

	return Card{
		ID:          course.ID,
		Title:       title,
		Description: description,
		Level:       DefaultLevel,
		Lessons:     course.LessonCount(),
		Progress:    pct,
		ImageURL:    NormalizeImageURL(course.ImageURL),
		Action:      ActionLabel(pct),
	}
}

// NormalizeImageURL 规范化课程图片地址
// 完整的 http(s) 地址和以 / 开头的服务端路径原样保留，
// 只有文件名时指向 assets/img 目录，空值返回空字符串
func NormalizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "http"):
		return raw
	case strings.HasPrefix(raw, "/"):
		return raw
	default:
		return "assets/img/" + raw
	}
}

// ActionLabel 根据进度返回课程按钮标签
func ActionLabel(progress float64) string {
	if progress >= 100 {
		return ActionReview
	}
	if progress > 0 {
		return ActionContinue
	}
	return ActionStart
}
