// Package progress 课程进度跟踪
//
// Tracker 维护 课程ID -> 完成百分比 的本地映射，并把映射的完整快照
// 发布给所有订阅者。订阅时立即收到当前快照；订阅者处理较慢时只会
// 错过中间快照，始终能拿到最新的一份。
package progress

import (
	"context"
	"fmt"
	"sync"

	"devschool-client/internal/course"
	"devschool-client/internal/logger"
)

// API 进度相关的平台接口，由平台客户端实现
type API interface {
	ProgressByUser(ctx context.Context, userID int64) ([]course.CourseProgress, error)
	ProgressByCourse(ctx context.Context, courseID, userID int64) (*course.CourseProgress, error)
	CompleteLesson(ctx context.Context, req course.LessonCompletion) (*course.CourseProgress, error)
}

// Tracker 课程进度跟踪器，线程安全
type Tracker struct {
	api         API
	mu          sync.RWMutex
	percentages map[int64]float64
	subscribers map[*Subscription]struct{}
	logger      *logger.Logger
}

// NewTracker 创建进度跟踪器
func NewTracker(api API) *Tracker {
	return &Tracker{
		api:         api,
		percentages: make(map[int64]float64),
		subscribers: make(map[*Subscription]struct{}),
		logger:      logger.NewLogger(logger.INFO),
	}
}

// SetLogger 设置日志记录器实例
func (t *Tracker) SetLogger(loggerInstance *logger.Logger) {
	t.logger = loggerInstance
}

// FetchByUser 拉取用户全部课程进度，不修改本地映射
func (t *Tracker) FetchByUser(ctx context.Context, userID int64) ([]course.CourseProgress, error) {
	list, err := t.api.ProgressByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取用户进度失败: %w", err)
	}
	return list, nil
}

// FetchByCourse 拉取用户在某课程的进度，不修改本地映射
func (t *Tracker) FetchByCourse(ctx context.Context, courseID, userID int64) (*course.CourseProgress, error) {
	p, err := t.api.ProgressByCourse(ctx, courseID, userID)
	if err != nil {
		return nil, fmt.Errorf("获取课程进度失败: %w", err)
	}
	return p, nil
}

// Refresh 拉取用户全部课程进度并逐个写入本地映射
func (t *Tracker) Refresh(ctx context.Context, userID int64) ([]course.CourseProgress, error) {
	list, err := t.FetchByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		t.RecordLocally(p)
	}
	return list, nil
}

// ReportLessonCompleted 上报课时完成，成功后把返回的进度写入本地映射
// 参数:
//
//	answers: 本课时已作答的题目，只包含已选择选项的题目
func (t *Tracker) ReportLessonCompleted(ctx context.Context, userID, courseID, lessonID int64, answers []course.QuestionAnswer) (*course.CourseProgress, error) {
	req := course.LessonCompletion{
		UserID:   userID,
		CourseID: courseID,
		LessonID: lessonID,
		Answers:  answers,
	}
	p, err := t.api.CompleteLesson(ctx, req)
	if err != nil {
		t.logger.Warn("课时完成上报失败: course=%d, lesson=%d, err=%v", courseID, lessonID, err)
		return nil, fmt.Errorf("上报课时完成失败: %w", err)
	}
	t.RecordLocally(*p)
	t.logger.Info("课时完成: course=%d, lesson=%d, progress=%.2f%%", courseID, lessonID, p.Percentage)
	return p, nil
}

// RecordLocally 覆盖该课程的本地百分比并向所有订阅者发布快照
func (t *Tracker) RecordLocally(p course.CourseProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.percentages[p.CourseID] = p.Percentage
	snapshot := t.snapshotLocked()
	for sub := range t.subscribers {
		sub.deliver(snapshot)
	}
}

// CurrentLocalPercentage 返回课程最近一次已知的百分比，未知时为 0
func (t *Tracker) CurrentLocalPercentage(courseID int64) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.percentages[courseID]
}

// Snapshot 返回本地映射的副本
func (t *Tracker) Snapshot() map[int64]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Subscribe 订阅进度快照，返回的订阅需要 Close
func (t *Tracker) Subscribe() *Subscription {
	sub := &Subscription{
		ch:      make(chan map[int64]float64, 1),
		tracker: t,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[sub] = struct{}{}
	sub.deliver(t.snapshotLocked())
	return sub
}

// SubscriberCount 当前订阅者数量
func (t *Tracker) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}

func (t *Tracker) unsubscribe(sub *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, sub)
	close(sub.ch)
}

func (t *Tracker) snapshotLocked() map[int64]float64 {
	snapshot := make(map[int64]float64, len(t.percentages))
	for id, pct := range t.percentages {
		snapshot[id] = pct
	}
	return snapshot
}

// Subscription 进度快照订阅
type Subscription struct {
	ch      chan map[int64]float64
	tracker *Tracker
	once    sync.Once
}

// C 快照通道，订阅关闭后通道被关闭
func (s *Subscription) C() <-chan map[int64]float64 {
	return s.ch
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.tracker.unsubscribe(s)
	})
}

// deliver 投递快照，通道中未读取的旧快照会被替换
// 调用方需持有 tracker 的写锁
func (s *Subscription) deliver(snapshot map[int64]float64) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snapshot
}
