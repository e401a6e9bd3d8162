// Package platformtest 提供内存版课程平台，用于测试
// 基于 gin 实现与真实平台相同的 JSON 接口，并记录收到的请求
package platformtest

import (
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"devschool-client/internal/course"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

var signingKey = []byte("platformtest")

// Request 记录的请求
type Request struct {
	Method        string
	Path          string
	Authorization string
}

type account struct {
	user     course.User
	password string
}

type progressKey struct {
	userID   int64
	courseID int64
}

type answerKey struct {
	userID   int64
	lessonID int64
}

type failure struct {
	status  int
	message string
}

// Server 内存版课程平台
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	courses     map[int64]course.Course
	accounts    map[int64]*account
	tokens      map[string]int64
	enrollments []course.Enrollment
	completed   map[progressKey][]int64
	answers     map[answerKey][]course.QuestionAnswer
	completions []course.LessonCompletion
	failures    map[string]failure
	requests    []Request
	nextID      int64
	tokenTTL    time.Duration
}

// New 启动内存版平台，测试结束时需调用 Close
func New() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		courses:   make(map[int64]course.Course),
		accounts:  make(map[int64]*account),
		tokens:    make(map[string]int64),
		completed: make(map[progressKey][]int64),
		answers:   make(map[answerKey][]course.QuestionAnswer),
		failures:  make(map[string]failure),
		nextID:    1000,
		tokenTTL:  time.Hour,
	}

	r := gin.New()
	r.Use(s.record, s.injectFailure)

	api := r.Group("/api")
	api.POST("/auth/login", s.login)
	api.POST("/auth/register", s.register)

	protected := api.Group("", s.requireToken)
	protected.GET("/cursos", s.listCourses)
	protected.GET("/cursos/:id", s.getCourse)
	protected.POST("/inscripciones/:cursoId/inscribirme", s.enroll)
	protected.GET("/inscripciones/usuario/:usuarioId", s.listEnrollments)
	protected.GET("/progreso/*path", s.getProgress)
	protected.POST("/progreso/leccion-completada", s.completeLesson)
	protected.GET("/usuarios", s.listUsers)
	protected.GET("/usuarios/:id", s.getUser)

	s.Server = httptest.NewServer(r)
	return s
}

// APIBase 平台接口根地址
func (s *Server) APIBase() string {
	return s.URL + "/api/"
}

// SetTokenTTL 设置签发凭证的有效期，可为负数以签发已过期凭证
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

// AddCourse 添加课程
func (s *Server) AddCourse(c course.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

// AddUser 添加用户
func (s *Server) AddUser(u course.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[u.ID] = &account{user: u, password: password}
}

// Activate 激活用户
func (s *Server) Activate(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.Email == email {
			acc.user.Active = true
			return true
		}
	}
	return false
}

// IssueToken 为用户签发凭证
func (s *Server) IssueToken(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueTokenLocked(userID)
}

// RevokeTokens 作废所有已签发凭证，之后的请求将收到 401
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]int64)
}

// SetAnswers 预置用户在某课时已保存的作答
func (s *Server) SetAnswers(userID, lessonID int64, answers []course.QuestionAnswer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[answerKey{userID, lessonID}] = answers
}

// SetCompleted 预置用户在某课程已完成的课时
func (s *Server) SetCompleted(userID, courseID int64, lessonIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[progressKey{userID, courseID}] = append([]int64(nil), lessonIDs...)
}

// FailNext 让下一次匹配 method 和路径（不含 /api 前缀）的请求返回指定错误
func (s *Server) FailNext(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, message: message}
}

// Requests 返回收到的全部请求
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Completions 返回收到的课时完成上报
func (s *Server) Completions() []course.LessonCompletion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]course.LessonCompletion(nil), s.completions...)
}

// Enrollments 返回全部选课记录
func (s *Server) Enrollments() []course.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]course.Enrollment(nil), s.enrollments...)
}

func (s *Server) issueTokenLocked(userID int64) string {
	s.nextID++
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"jti": strconv.FormatInt(s.nextID, 10),
		"exp": time.Now().Add(s.tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	s.tokens[token] = userID
	return token
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		Authorization: c.GetHeader("Authorization"),
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) injectFailure(c *gin.Context) {
	key := c.Request.Method + " " + strings.TrimPrefix(c.Request.URL.Path, "/api/")
	s.mu.Lock()
	f, ok := s.failures[key]
	if ok {
		delete(s.failures, key)
	}
	s.mu.Unlock()
	if ok {
		c.AbortWithStatusJSON(f.status, gin.H{"error": f.message})
		return
	}
	c.Next()
}

func (s *Server) requireToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	s.mu.Lock()
	userID, ok := s.tokens[token]
	s.mu.Unlock()
	if header == "" || !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token inválido"})
		return
	}
	c.Set("userID", userID)
	c.Next()
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"correo"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Solicitud inválida"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.Email != req.Email {
			continue
		}
		if acc.password != req.Password {
			break
		}
		if !acc.user.Active {
			c.JSON(http.StatusForbidden, gin.H{"error": "Cuenta no activada"})
			return
		}
		u := acc.user
		c.JSON(http.StatusOK, gin.H{
			"id":        u.ID,
			"nombre":    u.Name,
			"apellidos": u.LastName,
			"correo":    u.Email,
			"rol":       u.Role,
			"esAdmin":   u.IsAdmin,
			"token":     s.issueTokenLocked(u.ID),
		})
		return
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Credenciales inválidas"})
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		Name     string `json:"nombre"`
		LastName string `json:"apellidos"`
		Email    string `json:"correo"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Solicitud inválida"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.Email == req.Email {
			c.JSON(http.StatusBadRequest, gin.H{"error": "El correo ya existe"})
			return
		}
	}
	s.nextID++
	s.accounts[s.nextID] = &account{
		user:     course.User{ID: s.nextID, Name: req.Name, LastName: req.LastName, Email: req.Email, Role: "ESTUDIANTE"},
		password: req.Password,
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Registro exitoso", "correo": req.Email})
}

func (s *Server) listCourses(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]course.Course, 0, len(s.courses))
	for _, cs := range s.courses {
		list = append(list, cs)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	c.JSON(http.StatusOK, list)
}

func (s *Server) getCourse(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id inválido"})
		return
	}
	s.mu.Lock()
	cs, ok := s.courses[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Curso no encontrado"})
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (s *Server) enroll(c *gin.Context) {
	courseID, err := strconv.ParseInt(c.Param("cursoId"), 10, 64)
	var req struct {
		UserID int64 `json:"usuarioId"`
	}
	if err != nil || c.ShouldBindJSON(&req) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Solicitud inválida"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[courseID]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Curso no encontrado"})
		return
	}
	for _, e := range s.enrollments {
		if e.UserID == req.UserID && e.CourseID == courseID {
			c.JSON(http.StatusConflict, gin.H{"error": "Ya estás inscrito en este curso"})
			return
		}
	}
	s.nextID++
	e := course.Enrollment{
		ID:         s.nextID,
		UserID:     req.UserID,
		CourseID:   courseID,
		EnrolledAt: time.Now().UTC().Format(time.RFC3339),
		Status:     "ACTIVA",
	}
	s.enrollments = append(s.enrollments, e)
	c.JSON(http.StatusOK, e)
}

func (s *Server) listEnrollments(c *gin.Context) {
	userID, _ := strconv.ParseInt(c.Param("usuarioId"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []course.Enrollment{}
	for _, e := range s.enrollments {
		if e.UserID == userID {
			list = append(list, e)
		}
	}
	c.JSON(http.StatusOK, list)
}

// getProgress 处理 progreso/usuario/{id}、progreso/respuestas/{u}/{l} 和 progreso/{cursoId}
func (s *Server) getProgress(c *gin.Context) {
	parts := strings.Split(strings.Trim(c.Param("path"), "/"), "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case len(parts) == 2 && parts[0] == "usuario":
		userID, _ := strconv.ParseInt(parts[1], 10, 64)
		list := []course.CourseProgress{}
		for key := range s.completed {
			if key.userID == userID {
				list = append(list, s.progressLocked(userID, key.courseID))
			}
		}
		sort.Slice(list, func(i, j int) bool { return list[i].CourseID < list[j].CourseID })
		c.JSON(http.StatusOK, list)

	case len(parts) == 3 && parts[0] == "respuestas":
		userID, _ := strconv.ParseInt(parts[1], 10, 64)
		lessonID, _ := strconv.ParseInt(parts[2], 10, 64)
		answers := s.answers[answerKey{userID, lessonID}]
		if answers == nil {
			answers = []course.QuestionAnswer{}
		}
		c.JSON(http.StatusOK, answers)

	case len(parts) == 1:
		courseID, err := strconv.ParseInt(parts[0], 10, 64)
		userID, err2 := strconv.ParseInt(c.Query("usuarioId"), 10, 64)
		if err != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Parámetros inválidos"})
			return
		}
		if _, ok := s.courses[courseID]; !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Curso no encontrado"})
			return
		}
		c.JSON(http.StatusOK, s.progressLocked(userID, courseID))

	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Ruta no encontrada"})
	}
}

func (s *Server) completeLesson(c *gin.Context) {
	var req course.LessonCompletion
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Solicitud inválida"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.courses[req.CourseID]
	if !ok || !lessonInCourse(cs, req.LessonID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lección no encontrada"})
		return
	}

	s.completions = append(s.completions, req)
	key := progressKey{req.UserID, req.CourseID}
	done := s.completed[key]
	seen := false
	for _, id := range done {
		if id == req.LessonID {
			seen = true
			break
		}
	}
	if !seen {
		s.completed[key] = append(done, req.LessonID)
	}
	s.answers[answerKey{req.UserID, req.LessonID}] = req.Answers

	c.JSON(http.StatusOK, s.progressLocked(req.UserID, req.CourseID))
}

func (s *Server) listUsers(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]course.User, 0, len(s.accounts))
	for _, acc := range s.accounts {
		list = append(list, acc.user)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	c.JSON(http.StatusOK, list)
}

func (s *Server) getUser(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	s.mu.Lock()
	acc, ok := s.accounts[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Usuario no encontrado"})
		return
	}
	c.JSON(http.StatusOK, acc.user)
}

// progressLocked 计算课程进度，调用方需持有锁
func (s *Server) progressLocked(userID, courseID int64) course.CourseProgress {
	cs := s.courses[courseID]
	total := cs.LessonCount()
	done := append([]int64{}, s.completed[progressKey{userID, courseID}]...)

	p := course.CourseProgress{
		CourseID:           courseID,
		UserID:             userID,
		CompletedLessons:   len(done),
		TotalLessons:       total,
		CompletedLessonIDs: done,
	}
	if total > 0 {
		p.Percentage = math.Round(float64(len(done))*10000/float64(total)) / 100
		p.Completed = len(done) >= total
	}
	if n := len(done); n > 0 {
		last := done[n-1]
		p.LastLessonID = &last
		if title, ok := lessonTitle(cs, last); ok {
			p.LastLessonTitle = &title
		}
	}
	return p
}

func lessonInCourse(cs course.Course, lessonID int64) bool {
	_, ok := lessonTitle(cs, lessonID)
	return ok
}

func lessonTitle(cs course.Course, lessonID int64) (string, bool) {
	for _, m := range cs.Modules {
		for _, l := range m.Lessons {
			if l.ID == lessonID {
				return l.Title, true
			}
		}
	}
	return "", false
}
