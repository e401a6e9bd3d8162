package lesson

import "devschool-client/internal/course"

// State Sequencer 的可序列化快照，供伴随服务和命令行展示
type State struct {
	CourseID    int64        `json:"courseId" yaml:"courseId"`
	CourseTitle string       `json:"courseTitle" yaml:"courseTitle"`
	Index       int          `json:"index" yaml:"index"`
	Total       int          `json:"total" yaml:"total"`
	Percentage  float64      `json:"percentage" yaml:"percentage"`
	Completed   bool         `json:"completed" yaml:"completed"`
	GatePolicy  string       `json:"gatePolicy" yaml:"gatePolicy"`
	CanComplete bool         `json:"canComplete" yaml:"canComplete"`
	Steps       []StepState  `json:"steps" yaml:"steps"`
	Lesson      *LessonState `json:"lesson,omitempty" yaml:"lesson,omitempty"`
}

// StepState 课时列表中的一项
type StepState struct {
	Index       int    `json:"index" yaml:"index"`
	ModuleTitle string `json:"moduleTitle" yaml:"moduleTitle"`
	LessonID    int64  `json:"lessonId" yaml:"lessonId"`
	LessonTitle string `json:"lessonTitle" yaml:"lessonTitle"`
	Done        bool   `json:"done" yaml:"done"`
}

// LessonState 当前课时的内容与作答情况
type LessonState struct {
	ID        int64           `json:"id" yaml:"id"`
	Title     string          `json:"title" yaml:"title"`
	Content   string          `json:"content" yaml:"content"`
	VideoURL  string          `json:"videoUrl,omitempty" yaml:"videoUrl,omitempty"`
	EmbedURL  string          `json:"embedUrl,omitempty" yaml:"embedUrl,omitempty"`
	Intros    []string        `json:"intros,omitempty" yaml:"intros,omitempty"`
	Questions []QuestionState `json:"questions" yaml:"questions"`
}

// QuestionState 题目与当前选择
// Correct 只在已作答时给出
type QuestionState struct {
	ID          int64         `json:"id" yaml:"id"`
	Prompt      string        `json:"prompt" yaml:"prompt"`
	Explanation string        `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Options     []OptionState `json:"options" yaml:"options"`
	Selected    *int64        `json:"selected,omitempty" yaml:"selected,omitempty"`
	Correct     *bool         `json:"correct,omitempty" yaml:"correct,omitempty"`
}

// OptionState 选项，不包含正确答案标记
type OptionState struct {
	ID   int64  `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// State 返回当前快照
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		CourseID:    s.course.ID,
		CourseTitle: s.course.Title,
		Index:       s.index,
		Total:       len(s.entries),
		Percentage:  s.percentageLocked(),
		Completed:   s.courseCompleteLocked(),
		GatePolicy:  s.policy.String(),
		Steps:       make([]StepState, 0, len(s.entries)),
	}
	for i, e := range s.entries {
		st.Steps = append(st.Steps, StepState{
			Index:       i,
			ModuleTitle: e.Module.Title,
			LessonID:    e.Lesson.ID,
			LessonTitle: e.Lesson.Title,
			Done:        s.done[i],
		})
	}
	if len(s.entries) == 0 {
		return st
	}

	current := s.entries[s.index].Lesson
	st.CanComplete, _ = s.policy.Evaluate(current, s.selections)
	st.Lesson = s.lessonStateLocked(current)
	return st
}

func (s *Sequencer) lessonStateLocked(l course.Lesson) *LessonState {
	ls := &LessonState{
		ID:        l.ID,
		Title:     l.Title,
		Content:   l.Content,
		VideoURL:  l.VideoURL,
		EmbedURL:  EmbedVideoURL(l.VideoURL),
		Questions: make([]QuestionState, 0, len(l.Questions)),
	}
	for _, intro := range []*string{l.Intro1, l.Intro2, l.Intro3} {
		if intro != nil && *intro != "" {
			ls.Intros = append(ls.Intros, *intro)
		}
	}

	for _, q := range l.Questions {
		qs := QuestionState{
			ID:          q.ID,
			Prompt:      q.Prompt,
			Explanation: q.Explanation,
			Options:     make([]OptionState, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			qs.Options = append(qs.Options, OptionState{ID: o.ID, Text: o.Text})
		}
		if selected, ok := s.selections[q.ID]; ok {
			sel := selected
			correct, _ := isCorrect(q, s.selections)
			qs.Selected = &sel
			qs.Correct = &correct
		}
		ls.Questions = append(ls.Questions, qs)
	}
	return ls
}
