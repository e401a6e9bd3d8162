// Package lesson 课程学习流程
//
// Sequencer 把一门课程展开为线性课时序列，维护当前位置、每个课时的完成
// 标记和题目作答，并在通过闸门后向平台上报课时完成。
//
// 完成上报采用先确认后生效: 只有平台接受上报后，课时才被标记为完成、
// 进入下一课时并采用平台返回的进度。每次导航都会递增代号并取消上一次
// 导航的请求，旧代号的响应会被丢弃。
package lesson

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"devschool-client/internal/course"
	"devschool-client/internal/logger"
)

var (
	ErrCourseUnavailable   = errors.New("无法加载课程")
	ErrProgressUnavailable = errors.New("无法加载课程进度")
	ErrAnswersUnavailable  = errors.New("无法加载已保存的作答")
	ErrIndexOutOfRange     = errors.New("课时序号超出范围")
	ErrLessonNotDone       = errors.New("请先完成当前课时")
	ErrEmptyCourse         = errors.New("课程没有任何课时")
)

// CourseSource 课程详情来源
type CourseSource interface {
	GetCourse(ctx context.Context, id int64) (*course.Course, error)
}

// AnswerSource 已保存作答来源
type AnswerSource interface {
	LessonAnswers(ctx context.Context, userID, lessonID int64) ([]course.QuestionAnswer, error)
}

// ProgressReporter 进度读取与上报，由 progress.Tracker 实现
type ProgressReporter interface {
	FetchByCourse(ctx context.Context, courseID, userID int64) (*course.CourseProgress, error)
	ReportLessonCompleted(ctx context.Context, userID, courseID, lessonID int64, answers []course.QuestionAnswer) (*course.CourseProgress, error)
	RecordLocally(p course.CourseProgress)
}

// Deps Sequencer 的外部依赖
type Deps struct {
	Courses  CourseSource
	Answers  AnswerSource
	Progress ProgressReporter
}

// Result 完成尝试的结果
type Result struct {
	Completed bool                   `json:"completed"`
	Advanced  bool                   `json:"advanced"`
	Index     int                    `json:"index"`
	Unmet     []int64                `json:"unmet,omitempty"` // 未满足闸门的题目
	Progress  *course.CourseProgress `json:"progress,omitempty"`
}

// Option Sequencer 选项
type Option func(*Sequencer)

// WithGatePolicy 设置完成闸门策略
func WithGatePolicy(policy GatePolicy) Option {
	return func(s *Sequencer) { s.policy = policy }
}

// WithLogger 设置日志记录器
func WithLogger(l *logger.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sequencer 单个用户在单门课程中的学习流程，线程安全
type Sequencer struct {
	deps    Deps
	userID  int64
	course  course.Course
	entries []Entry
	policy  GatePolicy
	logger  *logger.Logger

	mu         sync.Mutex
	index      int
	done       []bool
	selections map[int64]int64 // 题目ID -> 选项ID
	progress   *course.CourseProgress
	generation uint64
	cancel     context.CancelFunc // 取消上一次导航中的请求
}

// Open 加载课程并创建 Sequencer
// 课程加载失败返回 ErrCourseUnavailable；进度或作答加载失败时
// 同时返回可用的 Sequencer 和 ErrProgressUnavailable / ErrAnswersUnavailable
func Open(ctx context.Context, deps Deps, courseID, userID int64, opts ...Option) (*Sequencer, error) {
	c, err := deps.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCourseUnavailable, err)
	}

	entries := Flatten(*c)
	s := &Sequencer{
		deps:       deps,
		userID:     userID,
		course:     *c,
		entries:    entries,
		policy:     GateAllCorrect,
		logger:     logger.NewLogger(logger.INFO),
		done:       make([]bool, len(entries)),
		selections: make(map[int64]int64),
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(entries) == 0 {
		return s, ErrEmptyCourse
	}
	s.logger.Debug("Opened course %d with %d lessons for user %d", c.ID, len(entries), userID)

	if err := s.LoadProgress(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// CourseID 课程 ID
func (s *Sequencer) CourseID() int64 {
	return s.course.ID
}

// UserID 用户 ID
func (s *Sequencer) UserID() int64 {
	return s.userID
}

// Course 课程详情
func (s *Sequencer) Course() course.Course {
	return s.course
}

// Entries 展开后的课时序列
func (s *Sequencer) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Len 课时总数
func (s *Sequencer) Len() int {
	return len(s.entries)
}

// Index 当前课时序号
func (s *Sequencer) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Current 当前课时
func (s *Sequencer) Current() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[s.index], true
}

// Policy 完成闸门策略
func (s *Sequencer) Policy() GatePolicy {
	return s.policy
}

// LoadProgress 从平台加载进度，标记已完成课时并定位初始课时
// 初始课时: ultimaLeccionId 对应的课时，否则最后一个已完成课时，否则第一个课时
func (s *Sequencer) LoadProgress(ctx context.Context) error {
	if len(s.entries) == 0 {
		return ErrEmptyCourse
	}

	s.mu.Lock()
	gen, navCtx, cancel := s.beginNavigationLocked(ctx)
	s.mu.Unlock()

	p, err := s.deps.Progress.FetchByCourse(navCtx, s.course.ID, s.userID)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		cancel()
		s.logger.Debug("Discarding stale progress response for course %d", s.course.ID)
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		cancel()
		s.logger.Warn("加载课程进度失败: course=%d, err=%v", s.course.ID, err)
		return fmt.Errorf("%w: %w", ErrProgressUnavailable, err)
	}

	s.progress = cloneProgress(p)
	for i, e := range s.entries {
		if p.HasCompleted(e.Lesson.ID) {
			s.done[i] = true
		}
	}
	s.index = s.initialIndexLocked(p)
	lessonID := s.entries[s.index].Lesson.ID
	s.mu.Unlock()

	s.deps.Progress.RecordLocally(*p)
	return s.loadAnswers(navCtx, cancel, gen, lessonID)
}

func (s *Sequencer) initialIndexLocked(p *course.CourseProgress) int {
	if p.LastLessonID != nil && *p.LastLessonID != 0 {
		if i, ok := s.indexOfLocked(*p.LastLessonID); ok {
			return i
		}
		return 0
	}
	if n := len(p.CompletedLessonIDs); n > 0 {
		if i, ok := s.indexOfLocked(p.CompletedLessonIDs[n-1]); ok {
			return i
		}
	}
	return 0
}

func (s *Sequencer) indexOfLocked(lessonID int64) (int, bool) {
	for i, e := range s.entries {
		if e.Lesson.ID == lessonID {
			return i, true
		}
	}
	return 0, false
}

// GoTo 跳转到任意课时并重新加载该课时已保存的作答
func (s *Sequencer) GoTo(ctx context.Context, i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.entries) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return s.navigateLocked(ctx, i)
}

// GoNext 前往下一课时，当前课时未完成时返回 ErrLessonNotDone，已在最后一课时不做任何事
func (s *Sequencer) GoNext(ctx context.Context) error {
	s.mu.Lock()
	if s.index >= len(s.entries)-1 {
		s.mu.Unlock()
		return nil
	}
	if !s.done[s.index] {
		s.mu.Unlock()
		return ErrLessonNotDone
	}
	return s.navigateLocked(ctx, s.index+1)
}

// GoPrevious 返回上一课时，已在第一课时不做任何事
func (s *Sequencer) GoPrevious(ctx context.Context) error {
	s.mu.Lock()
	if s.index == 0 {
		s.mu.Unlock()
		return nil
	}
	return s.navigateLocked(ctx, s.index-1)
}

// navigateLocked 切换课时并加载作答，调用时持有锁，返回前释放
func (s *Sequencer) navigateLocked(ctx context.Context, i int) error {
	s.index = i
	gen, navCtx, cancel := s.beginNavigationLocked(ctx)
	lessonID := s.entries[i].Lesson.ID
	s.mu.Unlock()
	return s.loadAnswers(navCtx, cancel, gen, lessonID)
}

// beginNavigationLocked 开始新的导航: 取消上一次导航并递增代号
func (s *Sequencer) beginNavigationLocked(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	navCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return s.generation, navCtx, cancel
}

// loadAnswers 加载课时已保存的作答，先清空该课时的选择再应用
func (s *Sequencer) loadAnswers(ctx context.Context, cancel context.CancelFunc, gen uint64, lessonID int64) error {
	defer cancel()

	answers, err := s.deps.Answers.LessonAnswers(ctx, s.userID, lessonID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.logger.Debug("Discarding stale answers for lesson %d", lessonID)
		return nil
	}
	if err != nil {
		s.logger.Warn("加载已保存作答失败: lesson=%d, err=%v", lessonID, err)
		return fmt.Errorf("%w: %w", ErrAnswersUnavailable, err)
	}

	if i, ok := s.indexOfLocked(lessonID); ok {
		for _, q := range s.entries[i].Lesson.Questions {
			delete(s.selections, q.ID)
		}
	}
	for _, a := range answers {
		s.selections[a.QuestionID] = a.OptionID
	}
	return nil
}

// SelectOption 记录题目的选择，覆盖之前的选择，不做校验也不持久化
func (s *Sequencer) SelectOption(questionID, optionID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[questionID] = optionID
}

// Selection 返回题目当前的选择
func (s *Sequencer) Selection(questionID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.selections[questionID]
	return id, ok
}

// IsCorrect 判断题目是否回答正确，未作答时 answered 为 false
func (s *Sequencer) IsCorrect(q course.Question) (correct, answered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return isCorrect(q, s.selections)
}

// CanComplete 课时是否满足完成闸门
func (s *Sequencer) CanComplete(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.entries) {
		return false
	}
	ok, _ := s.policy.Evaluate(s.entries[i].Lesson, s.selections)
	return ok
}

// AttemptComplete 尝试完成课时
// 未通过闸门时返回 Completed=false 且不发请求；通过后只上报已作答的题目，
// 平台确认后才标记完成、采用返回的进度，并在用户仍停留在该课时且不是
// 最后一课时的情况下进入下一课时。上报失败时本地状态保持不变。
func (s *Sequencer) AttemptComplete(ctx context.Context, i int) (Result, error) {
	s.mu.Lock()
	if i < 0 || i >= len(s.entries) {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	entry := s.entries[i]
	if ok, unmet := s.policy.Evaluate(entry.Lesson, s.selections); !ok {
		index := s.index
		s.mu.Unlock()
		return Result{Completed: false, Index: index, Unmet: unmet}, nil
	}

	var answers []course.QuestionAnswer
	for _, q := range entry.Lesson.Questions {
		if opt, ok := s.selections[q.ID]; ok {
			answers = append(answers, course.QuestionAnswer{QuestionID: q.ID, OptionID: opt})
		}
	}
	gen := s.generation
	s.mu.Unlock()

	p, err := s.deps.Progress.ReportLessonCompleted(ctx, s.userID, s.course.ID, entry.Lesson.ID, answers)
	if err != nil {
		return Result{Index: s.Index()}, err
	}

	s.mu.Lock()
	s.done[i] = true
	s.progress = cloneProgress(p)
	result := Result{Completed: true, Progress: cloneProgress(p)}

	// 上报期间用户没有离开该课时才自动前进
	if gen == s.generation && s.index == i && i < len(s.entries)-1 {
		result.Advanced = true
		result.Index = i + 1
		s.logger.Debug("Lesson %d completed, advancing to index %d", entry.Lesson.ID, i+1)
		if err := s.navigateLocked(ctx, i+1); err != nil {
			return result, err
		}
		return result, nil
	}
	result.Index = s.index
	s.mu.Unlock()
	return result, nil
}

// IsStepCompleted 课时是否已完成
func (s *Sequencer) IsStepCompleted(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.done) {
		return false
	}
	return s.done[i]
}

// OverallPercentage 课程完成百分比
// 有平台进度时使用平台的百分比，否则按本地完成标记计算并四舍五入
func (s *Sequencer) OverallPercentage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percentageLocked()
}

func (s *Sequencer) percentageLocked() float64 {
	if s.progress != nil {
		return s.progress.Percentage
	}
	if len(s.done) == 0 {
		return 0
	}
	completed := 0
	for _, d := range s.done {
		if d {
			completed++
		}
	}
	return math.Round(float64(completed) / float64(len(s.done)) * 100)
}

// IsCourseComplete 课程是否已完成
func (s *Sequencer) IsCourseComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.courseCompleteLocked()
}

func (s *Sequencer) courseCompleteLocked() bool {
	if s.progress != nil {
		return s.progress.Completed || s.progress.Percentage >= 100
	}
	return s.percentageLocked() >= 100
}

// Progress 最近一次采用的平台进度，没有时返回 nil
func (s *Sequencer) Progress() *course.CourseProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProgress(s.progress)
}

// Close 取消进行中的请求
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
}

func cloneProgress(p *course.CourseProgress) *course.CourseProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.CompletedLessonIDs = append([]int64(nil), p.CompletedLessonIDs...)
	if p.LastLessonID != nil {
		id := *p.LastLessonID
		c.LastLessonID = &id
	}
	if p.LastLessonTitle != nil {
		title := *p.LastLessonTitle
		c.LastLessonTitle = &title
	}
	return &c
}
