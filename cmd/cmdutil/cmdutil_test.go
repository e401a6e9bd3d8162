package cmdutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

type sample struct {
	ID    int64   `json:"id" yaml:"id"`
	Title string  `json:"title" yaml:"title"`
	Pct   float64 `json:"pct" yaml:"pct"`
}

func TestRender(t *testing.T) {
	v := sample{ID: 1, Title: "Go básico", Pct: 33.33}

	tests := []struct {
		format string
		want   string
	}{
		{OutputJSON, `"title": "Go básico"`},
		{OutputYAML, "title: Go básico"},
		{OutputText, "1 Go básico"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := Render(&buf, tt.format, v, func(w io.Writer) {
				fmt.Fprintf(w, "%d %s\n", v.ID, v.Title)
			})
			if err != nil {
				t.Fatalf("Render() error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("Render(%s) = %q, want to contain %q", tt.format, buf.String(), tt.want)
			}
		})
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		value   string
		want    string
		wantErr bool
	}{
		{"", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yml", OutputYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		cmd := &cobra.Command{Use: "x"}
		AddOutputFlag(cmd)
		if tt.value != "" {
			_ = cmd.Flags().Set("output", tt.value)
		}
		got, err := OutputFormat(cmd)
		if (err != nil) != tt.wantErr {
			t.Errorf("OutputFormat(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("OutputFormat(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestFormatPercentage(t *testing.T) {
	tests := map[float64]string{
		0:     "0%",
		33.33: "33.33%",
		10.5:  "10.5%",
		100:   "100%",
	}
	for in, want := range tests {
		if got := FormatPercentage(in); got != want {
			t.Errorf("FormatPercentage(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestBindEnv_OnlyChangedFlags(t *testing.T) {
	t.Setenv("SERVER_PORT", "4300")
	t.Setenv("SERVER_HOST", "127.0.0.1")

	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().Int("port", 0, "")
	cmd.Flags().String("host", "", "")
	_ = cmd.Flags().Set("port", "5000")

	BindEnv(cmd, map[string]string{"port": "SERVER_PORT", "host": "SERVER_HOST", "missing": "NOPE"})

	if got := os.Getenv("SERVER_PORT"); got != "5000" {
		t.Errorf("SERVER_PORT = %q, want 5000", got)
	}
	if got := os.Getenv("SERVER_HOST"); got != "127.0.0.1" {
		t.Errorf("SERVER_HOST = %q, unchanged flag must not override", got)
	}
}

func TestLoadApp_InvalidConfig(t *testing.T) {
	t.Setenv("GATE_POLICY", "half")
	if _, _, err := LoadApp(); err == nil {
		t.Error("LoadApp() should fail with invalid gate policy")
	}
}

func TestLoadApp(t *testing.T) {
	t.Setenv("SESSION_FILE", t.TempDir()+"/session.json")
	t.Setenv("LOG_LEVEL", "error")
	a, cleanup, err := LoadApp()
	if err != nil {
		t.Fatalf("LoadApp() error: %v", err)
	}
	defer cleanup()
	if a.Sessions.IsAuthenticated() {
		t.Error("fresh session file should not be authenticated")
	}
}
