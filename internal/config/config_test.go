package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/madhatter5501/promptflow/internal/errs"
	"github.com/madhatter5501/promptflow/kanban"
	"github.com/madhatter5501/promptflow/pullrequest"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	userDir := t.TempDir()

	cfg, err := load(t.TempDir(), "", userDir, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Board.FileName != kanban.DefaultFileName {
		t.Errorf("board file = %q", cfg.Board.FileName)
	}
	if cfg.Queue.MaxRetries != 2 || cfg.Queue.Timeout != 5*time.Minute {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.PullRequest.AuthMode != pullrequest.AuthModeAuto || cfg.PullRequest.DefaultTarget != "main" {
		t.Errorf("pullRequest = %+v", cfg.PullRequest)
	}
	if cfg.DBPath != filepath.Join(userDir, AppDir, "promptflow.db") {
		t.Errorf("dbPath = %q", cfg.DBPath)
	}
	if cfg.Agent.Command != "claude" {
		t.Errorf("agent command = %q", cfg.Agent.Command)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("level = %v", cfg.Level())
	}
}

func TestLoad_RepoOverlaysUser(t *testing.T) {
	userDir := t.TempDir()
	repoDir := t.TempDir()

	writeFile(t, filepath.Join(userDir, AppDir, FileName), `
queue:
  maxRetries: 4
  timeout: 90s
pullRequest:
  username: jdoe
  workspace: personal
logLevel: debug
`)
	writeFile(t, filepath.Join(repoDir, ProjectDir, FileName), `
pullRequest:
  workspace: acme
  repoSlug: widgets
`)

	cfg, err := load(repoDir, "", userDir, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Queue.MaxRetries != 4 || cfg.Queue.Timeout != 90*time.Second {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.PullRequest.Username != "jdoe" {
		t.Errorf("username = %q, want value kept from user file", cfg.PullRequest.Username)
	}
	if cfg.PullRequest.Workspace != "acme" || cfg.PullRequest.RepoSlug != "widgets" {
		t.Errorf("slug = %s/%s", cfg.PullRequest.Workspace, cfg.PullRequest.RepoSlug)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("level = %v", cfg.Level())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := load(t.TempDir(), "", t.TempDir(), envMap(map[string]string{
		"PROMPTFLOW_MAX_RETRIES":         "0",
		"PROMPTFLOW_TIMEOUT":             "250ms",
		"PROMPTFLOW_AUTH_MODE":           "appPasswordOnly",
		"PROMPTFLOW_BITBUCKET_WORKSPACE": " acme ",
		"PROMPTFLOW_OPEN_BROWSER":        "true",
		"PROMPTFLOW_BOARD_FILE":          "board.json",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Queue.MaxRetries != 0 || cfg.Queue.Timeout != 250*time.Millisecond {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.PullRequest.AuthMode != pullrequest.AuthModeAppPasswordOnly {
		t.Errorf("authMode = %q", cfg.PullRequest.AuthMode)
	}
	if cfg.PullRequest.Workspace != "acme" {
		t.Errorf("workspace = %q", cfg.PullRequest.Workspace)
	}
	if !cfg.PullRequest.OpenInBrowser {
		t.Error("openInBrowser not set")
	}
	if cfg.Board.FileName != "board.json" {
		t.Errorf("board file = %q", cfg.Board.FileName)
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := load(t.TempDir(), filepath.Join(t.TempDir(), "missing.yaml"), t.TempDir(), noEnv)
	if err == nil || !strings.Contains(err.Error(), "missing.yaml") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "negative retries", yaml: "queue:\n  maxRetries: -1\n"},
		{name: "zero timeout", yaml: "queue:\n  timeout: 0s\n"},
		{name: "auth mode", yaml: "pullRequest:\n  authMode: oauth\n"},
		{name: "log level", yaml: "logLevel: loud\n"},
		{name: "board path", yaml: "board:\n  fileName: ../board.json\n"},
		{name: "env retries", env: map[string]string{"PROMPTFLOW_MAX_RETRIES": "many"}},
		{name: "env timeout", env: map[string]string{"PROMPTFLOW_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, path, tt.yaml)

			_, err := load("", path, t.TempDir(), envMap(tt.env))
			if !errs.IsConfig(err) {
				t.Errorf("err = %v, want config error", err)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "queue: [unterminated\n")

	if _, err := load("", path, t.TempDir(), noEnv); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := defaultConfig(t.TempDir())
	cfg.PullRequest.Workspace = "acme"

	data, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}

	var back Config
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.PullRequest.Workspace != "acme" || back.Queue.Timeout != cfg.Queue.Timeout {
		t.Errorf("round trip = %+v", back)
	}
}
