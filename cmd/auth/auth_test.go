package auth

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"devschool-client/internal/platform"
	"devschool-client/internal/platform/platformtest"
	"devschool-client/internal/session"

	"github.com/spf13/cobra"
)

func setupEnv(t *testing.T) *platformtest.Server {
	t.Helper()
	srv := platformtest.NewSeeded()
	t.Cleanup(srv.Close)
	t.Setenv("API_BASE_URL", srv.APIBase())
	t.Setenv("SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("LOG_LEVEL", "error")
	return srv
}

func command(name string) *cobra.Command {
	for _, c := range NewCommands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func run(t *testing.T, name, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := command(name)
	if cmd == nil {
		t.Fatalf("command %q not found", name)
	}
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "login", platformtest.StudentPassword+"\n", "--email", platformtest.StudentEmail, "--password-stdin")
	if err != nil {
		t.Fatalf("login error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "登录成功") {
		t.Errorf("login output = %q", out)
	}

	out, err = run(t, "whoami", "", "--output", "json")
	if err != nil {
		t.Fatalf("whoami error: %v", err)
	}
	if !strings.Contains(out, `"correo": "`+platformtest.StudentEmail+`"`) {
		t.Errorf("whoami output = %s", out)
	}

	if _, err := run(t, "logout", ""); err != nil {
		t.Fatalf("logout error: %v", err)
	}
	if _, err := run(t, "whoami", ""); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("whoami after logout error = %v, want ErrNotAuthenticated", err)
	}
}

func TestLogin_PromptsForEmail(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "login", platformtest.StudentEmail+"\n"+platformtest.StudentPassword+"\n")
	if err != nil {
		t.Fatalf("login error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "邮箱: ") {
		t.Errorf("login should prompt for email, output = %q", out)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "login", "incorrecta\n", "--email", platformtest.StudentEmail, "--password-stdin")
	if !errors.Is(err, session.ErrInvalidCredentials) {
		t.Errorf("login error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegister(t *testing.T) {
	srv := setupEnv(t)

	args := []string{"--name", "Luis", "--mailbox", "luis", "--accept-terms", "--password-stdin"}
	out, err := run(t, "register", "secreto1\n", args...)
	if err != nil {
		t.Fatalf("register error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "luis@devschool.com") {
		t.Errorf("register output = %q", out)
	}

	if _, err := run(t, "register", "secreto1\n", args...); !errors.Is(err, platform.ErrEmailTaken) {
		t.Errorf("duplicate register error = %v, want ErrEmailTaken", err)
	}

	before := len(srv.Requests())
	_, err = run(t, "register", "corto\n", "--name", "Luis", "--mailbox", "luis@x.com", "--password-stdin")
	if err == nil || !strings.Contains(err.Error(), "表单校验失败") {
		t.Errorf("invalid register error = %v", err)
	}
	if len(srv.Requests()) != before {
		t.Error("invalid form must not reach the platform")
	}
}
