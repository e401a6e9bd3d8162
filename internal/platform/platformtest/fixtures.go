package platformtest

import "devschool-client/internal/course"

// 测试课程中的 ID
const (
	CourseID = 1

	LessonIntro     = 101 // 模块 1 第 1 课，两道题
	LessonVariables = 102 // 模块 1 第 2 课，一道题
	LessonWrapUp    = 203 // 模块 2 第 1 课，无题目

	QuestionSyntax  = 1001 // 正确选项 OptionSyntaxOK
	QuestionPackage = 1002 // 正确选项 OptionPackageOK
	QuestionVar     = 1003 // 正确选项 OptionVarOK

	OptionSyntaxWrong  = 1
	OptionSyntaxOK     = 2
	OptionPackageOK    = 3
	OptionPackageWrong = 4
	OptionVarOK        = 5
	OptionVarWrong     = 6

	StudentID       = 7
	StudentEmail    = "ana@devschool.com"
	StudentPassword = "secreto"
)

// SampleCourse 返回一个模块和课时均乱序的测试课程
// 按 OrderIndex 展开后的顺序为 LessonIntro, LessonVariables, LessonWrapUp
func SampleCourse() course.Course {
	return course.Course{
		ID:          CourseID,
		Title:       "Go 基础",
		Description: "从零开始学习 Go",
		ImageURL:    "go.png",
		Modules: []course.Module{
			{
				ID:         20,
				Title:      "总结",
				OrderIndex: 2,
				Lessons: []course.Lesson{
					{ID: LessonWrapUp, Title: "回顾", OrderIndex: 1},
				},
			},
			{
				ID:         10,
				Title:      "入门",
				OrderIndex: 1,
				Lessons: []course.Lesson{
					{
						ID:         LessonVariables,
						Title:      "变量",
						OrderIndex: 2,
						Questions: []course.Question{
							{ID: QuestionVar, Prompt: "声明变量的关键字?", OrderIndex: 1, Options: []course.Option{
								{ID: OptionVarOK, Text: "var", IsCorrect: true, OrderIndex: 1},
								{ID: OptionVarWrong, Text: "let", OrderIndex: 2},
							}},
						},
					},
					{
						ID:         LessonIntro,
						Title:      "你好, Go",
						OrderIndex: 1,
						Questions: []course.Question{
							{ID: QuestionSyntax, Prompt: "程序入口函数?", OrderIndex: 1, Options: []course.Option{
								{ID: OptionSyntaxWrong, Text: "start", OrderIndex: 1},
								{ID: OptionSyntaxOK, Text: "main", IsCorrect: true, OrderIndex: 2},
							}},
							{ID: QuestionPackage, Prompt: "可执行程序的包名?", OrderIndex: 2, Options: []course.Option{
								{ID: OptionPackageOK, Text: "main", IsCorrect: true, OrderIndex: 1},
								{ID: OptionPackageWrong, Text: "app", OrderIndex: 2},
							}},
						},
					},
				},
			},
		},
	}
}

// Student 返回已激活的测试学生
func Student() course.User {
	return course.User{
		ID:       StudentID,
		Name:     "Ana",
		LastName: "Pérez",
		Email:    StudentEmail,
		Role:     "ESTUDIANTE",
		Active:   true,
	}
}

// NewSeeded 启动预置了 SampleCourse 和 Student 的平台
func NewSeeded() *Server {
	s := New()
	s.AddCourse(SampleCourse())
	s.AddUser(Student(), StudentPassword)
	return s
}
