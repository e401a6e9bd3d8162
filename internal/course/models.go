package course

// Course 课程模型
// 字段名与课程平台的 JSON 接口保持一致
type Course struct {
	ID          int64    `json:"id" yaml:"id"`
	Title       string   `json:"titulo" yaml:"title"`
	Description string   `json:"descripcion" yaml:"description"`
	ImageURL    string   `json:"imagenUrl" yaml:"imageUrl"`
	Modules     []Module `json:"modulos" yaml:"modules"`
}

// Module 课程模块
type Module struct {
	ID         int64    `json:"id" yaml:"id"`
	Title      string   `json:"titulo" yaml:"title"`
	OrderIndex int      `json:"numeroOrden" yaml:"orderIndex"`
	Lessons    []Lesson `json:"lecciones" yaml:"lessons"`
}

// Lesson 课时
type Lesson struct {
	ID         int64      `json:"id" yaml:"id"`
	Title      string     `json:"titulo" yaml:"title"`
	Content    string     `json:"contenido" yaml:"content"`
	VideoURL   string     `json:"videoUrl" yaml:"videoUrl"`
	Intro1     *string    `json:"intro1" yaml:"intro1,omitempty"`
	Intro2     *string    `json:"intro2" yaml:"intro2,omitempty"`
	Intro3     *string    `json:"intro3" yaml:"intro3,omitempty"`
	OrderIndex int        `json:"numeroOrden" yaml:"orderIndex"`
	Questions  []Question `json:"preguntas" yaml:"questions"`
}

// Question 课时测验题
type Question struct {
	ID          int64    `json:"id" yaml:"id"`
	Prompt      string   `json:"enunciado" yaml:"prompt"`
	Explanation string   `json:"explicacion" yaml:"explanation"`
	OrderIndex  int      `json:"numeroOrden" yaml:"orderIndex"`
	Options     []Option `json:"opciones" yaml:"options"`
}

// Option 题目选项
type Option struct {
	ID         int64  `json:"id" yaml:"id"`
	Text       string `json:"texto" yaml:"text"`
	IsCorrect  bool   `json:"correcta" yaml:"correct"`
	OrderIndex int    `json:"numeroOrden" yaml:"orderIndex"`
}

// CourseProgress 服务端返回的课程进度
type CourseProgress struct {
	CourseID           int64   `json:"cursoId" yaml:"courseId"`
	UserID             int64   `json:"usuarioId" yaml:"userId"`
	Percentage         float64 `json:"porcentaje" yaml:"percentage"`
	CompletedLessons   int     `json:"leccionesCompletadas" yaml:"completedLessons"`
	TotalLessons       int     `json:"totalLecciones" yaml:"totalLessons"`
	LastLessonID       *int64  `json:"ultimaLeccionId" yaml:"lastLessonId,omitempty"`
	LastLessonTitle    *string `json:"ultimaLeccionTitulo" yaml:"lastLessonTitle,omitempty"`
	Completed          bool    `json:"cursoCompletado" yaml:"completed"`
	CompletedLessonIDs []int64 `json:"leccionesCompletadasIds" yaml:"completedLessonIds"`
}

// QuestionAnswer 一道题的作答
type QuestionAnswer struct {
	QuestionID int64 `json:"preguntaId" yaml:"questionId"`
	OptionID   int64 `json:"opcionSeleccionadaId" yaml:"optionId"`
}

// LessonCompletion 课时完成上报请求体
type LessonCompletion struct {
	UserID   int64            `json:"usuarioId"`
	CourseID int64            `json:"cursoId"`
	LessonID int64            `json:"leccionId"`
	Answers  []QuestionAnswer `json:"respuestas"`
}

// Enrollment 选课记录
type Enrollment struct {
	ID         int64  `json:"id" yaml:"id"`
	UserID     int64  `json:"usuarioId" yaml:"userId"`
	CourseID   int64  `json:"cursoId" yaml:"courseId"`
	EnrolledAt string `json:"fechaInscripcion,omitempty" yaml:"enrolledAt,omitempty"`
	Status     string `json:"estado,omitempty" yaml:"status,omitempty"`
}

// User 平台用户
type User struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"nombre" yaml:"name"`
	LastName string `json:"apellidos" yaml:"lastName"`
	Email    string `json:"correo" yaml:"email"`
	Role     string `json:"rol" yaml:"role"`
	IsAdmin  bool   `json:"esAdmin" yaml:"isAdmin"`
	Active   bool   `json:"activo" yaml:"active"`
}

// CorrectOption 返回题目的正确选项
// 数据异常出现多个正确选项时取第一个，没有正确选项时返回 false
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt, true
		}
	}
	return Option{}, false
}

// LessonCount 课程包含的课时总数
func (c Course) LessonCount() int {
	total := 0
	for _, m := range c.Modules {
		total += len(m.Lessons)
	}
	return total
}

// HasCompleted 判断课时是否已在服务端记录为完成
func (p CourseProgress) HasCompleted(lessonID int64) bool {
	for _, id := range p.CompletedLessonIDs {
		if id == lessonID {
			return true
		}
	}
	return false
}
