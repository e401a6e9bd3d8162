package lesson

import (
	"fmt"
	"strings"

	"devschool-client/internal/course"
)

// GatePolicy 课时完成闸门策略
type GatePolicy int

const (
	// GateAllCorrect 全部题目回答正确才能完成
	GateAllCorrect GatePolicy = iota
	// GateAllAnswered 全部题目作答即可完成
	GateAllAnswered
)

// ParseGatePolicy 从配置字符串解析闸门策略
func ParseGatePolicy(s string) (GatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all-correct":
		return GateAllCorrect, nil
	case "all-answered":
		return GateAllAnswered, nil
	default:
		return GateAllCorrect, fmt.Errorf("unknown gate policy: %q", s)
	}
}

func (g GatePolicy) String() string {
	if g == GateAllAnswered {
		return "all-answered"
	}
	return "all-correct"
}

// Evaluate 判断课时是否满足闸门，返回未满足的题目 ID
// 没有题目的课时总是满足
func (g GatePolicy) Evaluate(l course.Lesson, selections map[int64]int64) (bool, []int64) {
	var unmet []int64
	for _, q := range l.Questions {
		correct, answered := isCorrect(q, selections)
		switch g {
		case GateAllAnswered:
			if !answered {
				unmet = append(unmet, q.ID)
			}
		default:
			if !correct {
				unmet = append(unmet, q.ID)
			}
		}
	}
	return len(unmet) == 0, unmet
}

// isCorrect 题目没有正确选项时，即使已作答也视为不正确
func isCorrect(q course.Question, selections map[int64]int64) (correct, answered bool) {
	selected, answered := selections[q.ID]
	if !answered {
		return false, false
	}
	opt, ok := q.CorrectOption()
	if !ok {
		return false, true
	}
	return opt.ID == selected, true
}
