package check

import (
	"bytes"
	"encoding/json"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"devschool-client/internal/check"
	"devschool-client/internal/platform/platformtest"
)

// freePort 返回一个当前未被监听的端口
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestCheckCommand_JSON(t *testing.T) {
	srv := platformtest.NewSeeded()
	defer srv.Close()
	t.Setenv("API_BASE_URL", srv.APIBase())
	t.Setenv("SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("SERVER_HOST", "127.0.0.1")

	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--output", "json", "--port", strconv.Itoa(freePort(t))})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error: %v\n%s", err, out.String())
	}

	var summary check.Summary
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if !summary.OK || len(summary.Items) != 6 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCheckCommand_UnreachablePlatform(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://127.0.0.1:"+strconv.Itoa(freePort(t))+"/api/")
	t.Setenv("SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("SERVER_HOST", "127.0.0.1")

	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--port", strconv.Itoa(freePort(t))})
	if err := cmd.Execute(); err == nil {
		t.Error("Execute() should fail when the platform is unreachable")
	}
	if !bytes.Contains(out.Bytes(), []byte("共 1 项检查未通过")) {
		t.Errorf("output = %s", out.String())
	}
}
