package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"devschool-client/internal/app"
	"devschool-client/internal/config"
	"devschool-client/internal/logger"
	"devschool-client/internal/platform/platformtest"
	"devschool-client/internal/websocket"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	srv := platformtest.NewSeeded()
	defer srv.Close()

	cfg := config.Default()
	cfg.API.BaseURL = srv.APIBase()
	cfg.Session.File = filepath.Join(t.TempDir(), "session.json")
	a, err := app.New(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("app.New() error: %v", err)
	}
	defer a.Close()

	r := NewRouter(a, websocket.NewProgressHub(a.Tracker))

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/health", http.StatusOK, "DevSchool companion is running"},
		{"/api/unknown", http.StatusNotFound, "API endpoint not found"},
		{"/elsewhere", http.StatusNotFound, "not found"},
		{"/metrics", http.StatusOK, "devschool_http_requests_total"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.wantCode {
			t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.wantCode)
		}
		if !strings.Contains(w.Body.String(), tt.wantBody) {
			t.Errorf("GET %s body = %s, want to contain %q", tt.path, w.Body.String(), tt.wantBody)
		}
	}
}

func TestFilterDaemonFlags(t *testing.T) {
	got := filterDaemonFlags([]string{"serve", "-d", "--port", "5000", "--daemon"})
	want := []string{"serve", "--port", "5000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("filterDaemonFlags() = %v, want %v", got, want)
	}
}

func TestPIDFile(t *testing.T) {
	dir := t.TempDir()
	pidFile := pidFilePath(filepath.Join(dir, "nested", "session.json"))
	if filepath.Base(pidFile) != pidFileName {
		t.Errorf("pidFilePath() = %s", pidFile)
	}

	if _, ok := readPIDFromFile(pidFile); ok {
		t.Error("readPIDFromFile() on missing file should fail")
	}
	if err := writePID(pidFile, 4242); err != nil {
		t.Fatalf("writePID() error: %v", err)
	}
	if pid, ok := readPIDFromFile(pidFile); !ok || pid != 4242 {
		t.Errorf("readPIDFromFile() = %d, %v", pid, ok)
	}

	removePIDFile(pidFile)
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file should be removed")
	}
}

func TestIsProcessRunning_InvalidPID(t *testing.T) {
	if isProcessRunning(0) || isProcessRunning(-1) {
		t.Error("isProcessRunning() should be false for non-positive pid")
	}
}
