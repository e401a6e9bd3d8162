package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"devschool-client/internal/config"
	"devschool-client/internal/logger"
	"devschool-client/internal/platform"
	"devschool-client/internal/platform/platformtest"
	"devschool-client/internal/session"
	"devschool-client/internal/validate"
)

func newTestApp(t *testing.T, srv *platformtest.Server) *App {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = srv.APIBase()
	cfg.Session.File = filepath.Join(t.TempDir(), "session.json")

	a, err := New(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func login(t *testing.T, a *App) {
	t.Helper()
	if _, err := a.Sessions.Login(context.Background(), platformtest.StudentEmail, platformtest.StudentPassword); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("New(nil) should fail")
	}

	cfg := config.Default()
	cfg.Learn.GatePolicy = "half"
	if _, err := New(cfg, logger.Discard()); err == nil {
		t.Error("New() should reject unknown gate policy")
	}

	cfg = config.Default()
	cfg.API.BaseURL = "::"
	if _, err := New(cfg, logger.Discard()); err == nil {
		t.Error("New() should reject invalid base url")
	}
}

func TestApp_RequiresLogin(t *testing.T) {
	srv := platformtest.NewSeeded()
	defer srv.Close()
	a := newTestApp(t, srv)
	ctx := context.Background()

	if _, err := a.Identity(); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("Identity() error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := a.Enroll(ctx, platformtest.CourseID); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("Enroll() error = %v", err)
	}
	if _, err := a.OpenLesson(ctx, platformtest.CourseID); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("OpenLesson() error = %v", err)
	}
	if len(srv.Requests()) != 0 {
		t.Errorf("requests sent without session: %d", len(srv.Requests()))
	}
}

func TestApp_SessionSurvivesRestart(t *testing.T) {
	srv := platformtest.NewSeeded()
	defer srv.Close()
	a := newTestApp(t, srv)
	login(t, a)

	b, err := New(a.Config, logger.Discard())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer b.Close()
	id, err := b.Identity()
	if err != nil {
		t.Fatalf("Identity() after restart error: %v", err)
	}
	if id.ID != platformtest.StudentID {
		t.Errorf("Identity().ID = %d, want %d", id.ID, platformtest.StudentID)
	}
}

func TestApp_Register(t *testing.T) {
	srv := platformtest.NewSeeded()
	defer srv.Close()
	a := newTestApp(t, srv)
	ctx := context.Background()

	form := validate.RegisterForm{
		Name:        "Luis",
		Mailbox:     "  Luis.Gomez ",
		Password:    "secreto1",
		Confirm:     "secreto1",
		AcceptTerms: true,
	}
	resp, err := a.Register(ctx, form)
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if resp.Email != "luis.gomez@devschool.com" {
		t.Errorf("registered email = %q", resp.Email)
	}

	if _, err := a.Register(ctx, form); !errors.Is(err, platform.ErrEmailTaken) {
		t.Errorf("duplicate Register() error = %v, want ErrEmailTaken", err)
	}

	before := len(srv.Requests())
	form.Confirm = "otro"
	if _, err := a.Register(ctx, form); !validate.IsValidationError(err) {
		t.Errorf("Register() error = %v, want validation error", err)
	}
	if len(srv.Requests()) != before {
		t.Error("invalid form must not reach the platform")
	}
}

func TestApp_EnrollAndLearn(t *testing.T) {
	srv := platformtest.NewSeeded()
	defer srv.Close()
	a := newTestApp(t, srv)
	login(t, a)
	ctx := context.Background()

	if _, err := a.Enroll(ctx, platformtest.CourseID); err != nil {
		t.Fatalf("Enroll() error: %v", err)
	}
	enrollments, err := a.Enrollments(ctx)
	if err != nil || len(enrollments) != 1 {
		t.Fatalf("Enrollments() = %+v, %v", enrollments, err)
	}

	seq, err := a.OpenLesson(ctx, platformtest.CourseID)
	if err != nil {
		t.Fatalf("OpenLesson() error: %v", err)
	}
	seq.SelectOption(platformtest.QuestionSyntax, platformtest.OptionSyntaxOK)
	seq.SelectOption(platformtest.QuestionPackage, platformtest.OptionPackageOK)
	res, err := seq.AttemptComplete(ctx, 0)
	if err != nil || !res.Completed {
		t.Fatalf("AttemptComplete() = %+v, %v", res, err)
	}
	if got := a.Tracker.CurrentLocalPercentage(platformtest.CourseID); got != 33.33 {
		t.Errorf("tracker percentage = %v, want 33.33", got)
	}

	list, err := a.RefreshProgress(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("RefreshProgress() = %+v, %v", list, err)
	}

	cards, err := a.Catalog.Cards(ctx)
	if err != nil || len(cards) != 1 || cards[0].Progress != 33.33 {
		t.Errorf("Cards() = %+v, %v", cards, err)
	}

	if err := a.Logout(); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if a.Lessons.Count() != 0 {
		t.Error("Logout() should close the user's sequencers")
	}
	if a.Sessions.IsAuthenticated() {
		t.Error("still authenticated after Logout()")
	}
}
