package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"devschool-client/internal/app"
	"devschool-client/internal/config"
	"devschool-client/internal/logger"
	"devschool-client/internal/platform/platformtest"
	ws "devschool-client/internal/websocket"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	platform *platformtest.Server
	app      *app.App
	hub      *ws.ProgressHub
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := platformtest.NewSeeded()
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.APIBase()
	cfg.Session.File = filepath.Join(t.TempDir(), "session.json")
	a, err := app.New(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("app.New() error: %v", err)
	}
	t.Cleanup(a.Close)

	hub := ws.NewProgressHub(a.Tracker)
	hub.SetLogger(logger.Discard())
	t.Cleanup(hub.CloseAll)

	router := gin.New()
	NewHandler(a, hub, nil).SetupRoutes(router)
	return &testEnv{platform: srv, app: a, hub: hub, router: router}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/session/login", gin.H{
		"correo":   platformtest.StudentEmail,
		"password": platformtest.StudentPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func state(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	body := decode(t, rec)
	st, ok := body["state"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no state: %s", rec.Body.String())
	}
	return st
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", nil)
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["status"] != "ok" || body["message"] != healthMessage {
		t.Errorf("GET /health = %d %v", rec.Code, body)
	}
}

func TestAuthGuard_RedirectsToLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/courses?page=2", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decode(t, rec)
	if body["redirect"] != "/login?returnUrl=%2Fapi%2Fcourses%3Fpage%3D2" {
		t.Errorf("redirect = %v", body["redirect"])
	}
	if len(env.platform.Requests()) != 0 {
		t.Error("guarded request reached the platform")
	}
}

func TestSession_LoginLifecycle(t *testing.T) {
	env := newTestEnv(t)

	if body := decode(t, env.do(http.MethodGet, "/api/session", nil)); body["authenticated"] != false {
		t.Errorf("GET /api/session before login = %v", body)
	}

	rec := env.do(http.MethodPost, "/api/session/login", gin.H{"correo": "", "password": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty login status = %d, want 400", rec.Code)
	}
	if _, ok := decode(t, rec)["fields"]; !ok {
		t.Error("validation response should list fields")
	}

	rec = env.do(http.MethodPost, "/api/session/login", gin.H{"correo": platformtest.StudentEmail, "password": "mal"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rec.Code)
	}

	env.login(t)
	body := decode(t, env.do(http.MethodGet, "/api/session", nil))
	user, _ := body["user"].(map[string]interface{})
	if body["authenticated"] != true || user["correo"] != platformtest.StudentEmail {
		t.Errorf("GET /api/session after login = %v", body)
	}

	for i := 0; i < 2; i++ {
		if rec := env.do(http.MethodDelete, "/api/session", nil); rec.Code != http.StatusOK {
			t.Errorf("DELETE /api/session #%d status = %d", i, rec.Code)
		}
	}
	if rec := env.do(http.MethodGet, "/api/progress", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout status = %d, want 401", rec.Code)
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	form := gin.H{
		"nombre":            "Luis",
		"apellidos":         "Gómez",
		"correo":            "luis",
		"password":          "secreto1",
		"confirmarPassword": "secreto1",
		"aceptaTerminos":    true,
	}

	if rec := env.do(http.MethodPost, "/api/session/register", form); rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(http.MethodPost, "/api/session/register", form); rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rec.Code)
	}

	form["correo"] = "luis@gmail.com"
	rec := env.do(http.MethodPost, "/api/session/register", form)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("mailbox with @ status = %d, want 400", rec.Code)
	}
	fields, _ := decode(t, rec)["fields"].(map[string]interface{})
	if _, ok := fields["correo"]; !ok {
		t.Errorf("fields = %v, want correo", fields)
	}
}

func TestCourses(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	body := decode(t, env.do(http.MethodGet, "/api/courses", nil))
	cards, _ := body["courses"].([]interface{})
	if len(cards) != 1 {
		t.Fatalf("courses = %v", body)
	}
	card := cards[0].(map[string]interface{})
	if card["lessons"] != 3.0 || card["action"] == "" {
		t.Errorf("card = %v", card)
	}

	if rec := env.do(http.MethodGet, "/api/courses/1", nil); rec.Code != http.StatusOK {
		t.Errorf("GET /api/courses/1 status = %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/courses/99", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/courses/99 status = %d, want 404", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/courses/abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("GET /api/courses/abc status = %d, want 400", rec.Code)
	}
}

func TestEnrollments(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	if rec := env.do(http.MethodPost, "/api/courses/1/enroll", nil); rec.Code != http.StatusOK {
		t.Fatalf("enroll status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(http.MethodPost, "/api/courses/1/enroll", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("duplicate enroll status = %d, want 502", rec.Code)
	}

	body := decode(t, env.do(http.MethodGet, "/api/enrollments", nil))
	if list, _ := body["enrollments"].([]interface{}); len(list) != 1 {
		t.Errorf("enrollments = %v", body)
	}
}

func TestLessonFlow(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	st := state(t, env.do(http.MethodGet, "/api/courses/1/lessons", nil))
	if st["index"] != 0.0 || st["total"] != 3.0 || st["canComplete"] != false {
		t.Fatalf("initial state = %v", st)
	}

	if rec := env.do(http.MethodPost, "/api/courses/1/lessons/next", nil); rec.Code != http.StatusConflict {
		t.Errorf("next on unfinished lesson status = %d, want 409", rec.Code)
	}

	env.do(http.MethodPost, "/api/courses/1/lessons/answers", gin.H{"questionId": platformtest.QuestionSyntax, "optionId": platformtest.OptionSyntaxWrong})
	rec := env.do(http.MethodPost, "/api/courses/1/lessons/complete", nil)
	body := decode(t, rec)
	result, _ := body["result"].(map[string]interface{})
	if rec.Code != http.StatusOK || result["completed"] != false {
		t.Fatalf("gated complete = %d %v", rec.Code, body)
	}
	if len(env.platform.Completions()) != 0 {
		t.Error("gated completion reached the platform")
	}

	env.do(http.MethodPost, "/api/courses/1/lessons/answers", gin.H{"questionId": platformtest.QuestionSyntax, "optionId": platformtest.OptionSyntaxOK})
	st = state(t, env.do(http.MethodPost, "/api/courses/1/lessons/answers", gin.H{"questionId": platformtest.QuestionPackage, "optionId": platformtest.OptionPackageOK}))
	if st["canComplete"] != true {
		t.Errorf("canComplete after correct answers = %v", st["canComplete"])
	}

	body = decode(t, env.do(http.MethodPost, "/api/courses/1/lessons/complete", gin.H{"index": 0}))
	result, _ = body["result"].(map[string]interface{})
	st, _ = body["state"].(map[string]interface{})
	if result["completed"] != true || result["advanced"] != true || st["index"] != 1.0 {
		t.Errorf("complete = %v", body)
	}
	if st["percentage"] != 33.33 {
		t.Errorf("percentage = %v, want 33.33", st["percentage"])
	}

	progress, _ := decode(t, env.do(http.MethodGet, "/api/progress", nil))["progress"].(map[string]interface{})
	if progress["1"] != 33.33 {
		t.Errorf("progress = %v", progress)
	}

	if rec := env.do(http.MethodPost, "/api/courses/1/lessons/goto", gin.H{"index": 5}); rec.Code != http.StatusBadRequest {
		t.Errorf("goto out of range status = %d, want 400", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/api/courses/1/lessons/goto", gin.H{}); rec.Code != http.StatusBadRequest {
		t.Errorf("goto without index status = %d, want 400", rec.Code)
	}
	st = state(t, env.do(http.MethodPost, "/api/courses/1/lessons/previous", nil))
	if st["index"] != 0.0 {
		t.Errorf("previous index = %v", st["index"])
	}
	st = state(t, env.do(http.MethodPost, "/api/courses/1/lessons/goto", gin.H{"index": 2}))
	if st["index"] != 2.0 {
		t.Errorf("goto index = %v", st["index"])
	}
}

func TestLessonComplete_PlatformFailureKeepsState(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	env.do(http.MethodPost, "/api/courses/1/lessons/answers", gin.H{"questionId": platformtest.QuestionSyntax, "optionId": platformtest.OptionSyntaxOK})
	env.do(http.MethodPost, "/api/courses/1/lessons/answers", gin.H{"questionId": platformtest.QuestionPackage, "optionId": platformtest.OptionPackageOK})
	env.platform.FailNext(http.MethodPost, "progreso/leccion-completada", http.StatusInternalServerError, "boom")

	rec := env.do(http.MethodPost, "/api/courses/1/lessons/complete", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	st := state(t, env.do(http.MethodGet, "/api/courses/1/lessons", nil))
	steps, _ := st["steps"].([]interface{})
	first, _ := steps[0].(map[string]interface{})
	if st["index"] != 0.0 || first["done"] != false {
		t.Errorf("state changed after failed report: %v", st)
	}
	if !env.app.Sessions.IsAuthenticated() {
		t.Error("a 500 response must not end the session")
	}
}

func TestRevokedCredentialEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.platform.RevokeTokens()

	rec := env.do(http.MethodGet, "/api/courses", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if _, ok := decode(t, rec)["redirect"]; !ok {
		t.Error("401 response should carry a login redirect")
	}
	if env.app.Sessions.IsAuthenticated() {
		t.Error("session should be cleared after the platform rejected the credential")
	}
}

func TestRefreshProgress(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.platform.SetCompleted(platformtest.StudentID, platformtest.CourseID, platformtest.LessonIntro, platformtest.LessonVariables)

	body := decode(t, env.do(http.MethodPost, "/api/progress/refresh", nil))
	progress, _ := body["progress"].(map[string]interface{})
	if progress["1"] != 66.67 {
		t.Errorf("progress after refresh = %v", body)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(http.MethodPost, "/api/courses/1/lessons/complete", nil)

	rec := env.do(http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	out := rec.Body.String()
	for _, want := range []string{
		`devschool_http_requests_total{endpoint="/api/session/login",method="POST",status="200"} 1`,
		`devschool_lesson_completions_total{outcome="gated"} 1`,
		"devschool_progress_observers 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
