package courses

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"devschool-client/cmd/cmdutil"
	"devschool-client/internal/platform/platformtest"
	"devschool-client/internal/session"

	"github.com/spf13/cobra"
)

func setupEnv(t *testing.T, loggedIn bool) *platformtest.Server {
	t.Helper()
	srv := platformtest.NewSeeded()
	t.Cleanup(srv.Close)
	t.Setenv("API_BASE_URL", srv.APIBase())
	t.Setenv("SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("LOG_LEVEL", "error")

	if loggedIn {
		a, cleanup, err := cmdutil.LoadApp()
		if err != nil {
			t.Fatalf("LoadApp() error: %v", err)
		}
		defer cleanup()
		if _, err := a.Sessions.Login(context.Background(), platformtest.StudentEmail, platformtest.StudentPassword); err != nil {
			t.Fatalf("Login() error: %v", err)
		}
	}
	return srv
}

func run(t *testing.T, name string, args ...string) (string, error) {
	t.Helper()
	var cmd *cobra.Command
	for _, c := range NewCommands() {
		if c.Name() == name {
			cmd = c
		}
	}
	if cmd == nil {
		t.Fatalf("command %q not found", name)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_RequireLogin(t *testing.T) {
	srv := setupEnv(t, false)

	for _, name := range []string{"courses", "enrollments", "progress"} {
		if _, err := run(t, name); !errors.Is(err, session.ErrNotAuthenticated) {
			t.Errorf("%s error = %v, want ErrNotAuthenticated", name, err)
		}
	}
	if len(srv.Requests()) != 0 {
		t.Errorf("requests sent without session: %d", len(srv.Requests()))
	}
}

func TestCoursesCommand(t *testing.T) {
	srv := setupEnv(t, true)
	srv.SetCompleted(platformtest.StudentID, platformtest.CourseID, platformtest.LessonIntro)

	out, err := run(t, "courses")
	if err != nil {
		t.Fatalf("courses error: %v\n%s", err, out)
	}
	for _, want := range []string{"Go 基础", "33.33%", "继续学习"} {
		if !strings.Contains(out, want) {
			t.Errorf("courses output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "courses", "-o", "yaml")
	if err != nil {
		t.Fatalf("courses -o yaml error: %v", err)
	}
	if !strings.Contains(out, "imageUrl: assets/img/go.png") {
		t.Errorf("yaml output = %s", out)
	}
}

func TestCourseCommand(t *testing.T) {
	setupEnv(t, true)

	out, err := run(t, "course", "1")
	if err != nil {
		t.Fatalf("course error: %v", err)
	}
	intro := strings.Index(out, "你好, Go")
	wrap := strings.Index(out, "回顾")
	if intro < 0 || wrap < 0 || intro > wrap {
		t.Errorf("lessons not in sequence order:\n%s", out)
	}
	if !strings.Contains(out, "共 3 个课时") {
		t.Errorf("course output = %s", out)
	}

	if _, err := run(t, "course", "abc"); err == nil {
		t.Error("course abc should fail")
	}
	if _, err := run(t, "course", "99"); err == nil {
		t.Error("course 99 should fail")
	}
}

func TestEnrollAndProgress(t *testing.T) {
	srv := setupEnv(t, true)

	if out, err := run(t, "enroll", "1"); err != nil || !strings.Contains(out, "已报名课程 1") {
		t.Fatalf("enroll = %q, %v", out, err)
	}
	if len(srv.Enrollments()) != 1 {
		t.Errorf("platform enrollments = %d, want 1", len(srv.Enrollments()))
	}

	out, err := run(t, "enrollments", "--output", "json")
	if err != nil || !strings.Contains(out, `"cursoId": 1`) {
		t.Errorf("enrollments = %q, %v", out, err)
	}

	srv.SetCompleted(platformtest.StudentID, platformtest.CourseID, platformtest.LessonIntro, platformtest.LessonVariables)
	out, err = run(t, "progress")
	if err != nil {
		t.Fatalf("progress error: %v", err)
	}
	if !strings.Contains(out, "66.67%") || !strings.Contains(out, "2/3") {
		t.Errorf("progress output = %s", out)
	}
}

func TestParseCourseID(t *testing.T) {
	for _, raw := range []string{"0", "-1", "x", ""} {
		if _, err := parseCourseID(raw); err == nil {
			t.Errorf("parseCourseID(%q) should fail", raw)
		}
	}
	if id, err := parseCourseID("12"); err != nil || id != 12 {
		t.Errorf("parseCourseID(12) = %d, %v", id, err)
	}
}
