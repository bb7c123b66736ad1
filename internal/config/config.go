// Package config loads promptflow settings from YAML files and PROMPTFLOW_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/madhatter5501/promptflow"
	"github.com/madhatter5501/promptflow/agents"
	"github.com/madhatter5501/promptflow/internal/errs"
	"github.com/madhatter5501/promptflow/kanban"
	"github.com/madhatter5501/promptflow/pullrequest"
)

const (
	// AppDir names the per-user directory under the config home.
	AppDir = "promptflow"
	// ProjectDir is the per-repository directory, shared with recipe templates.
	ProjectDir = ".promptflow"
	// FileName is the config file name in both locations.
	FileName = "config.yaml"
)

// BoardConfig locates the board file.
type BoardConfig struct {
	FileName string `yaml:"fileName"`
}

// RecipesConfig locates user recipe templates.
type RecipesConfig struct {
	TemplatesDir string `yaml:"templatesDir"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the complete configuration.
type Config struct {
	Board       BoardConfig        `yaml:"board"`
	Recipes     RecipesConfig      `yaml:"recipes"`
	Queue       promptflow.Config  `yaml:"queue"`
	Agent       agents.Config      `yaml:"agent"`
	PullRequest pullrequest.Config `yaml:"pullRequest"`
	Server      ServerConfig       `yaml:"server"`
	DBPath      string             `yaml:"dbPath"`
	LogLevel    string             `yaml:"logLevel"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return defaultConfig(userConfigDir())
}

func defaultConfig(userDir string) Config {
	appDir := filepath.Join(userDir, AppDir)
	return Config{
		Board:   BoardConfig{FileName: kanban.DefaultFileName},
		Recipes: RecipesConfig{TemplatesDir: filepath.Join(appDir, "recipes")},
		Queue:   promptflow.DefaultConfig(),
		Agent: agents.Config{
			Command: agents.DefaultAgentCommand,
			Args:    append([]string(nil), agents.DefaultAgentArgs...),
		},
		PullRequest: pullrequest.DefaultConfig(),
		Server:      ServerConfig{Addr: "127.0.0.1:7420"},
		DBPath:      filepath.Join(appDir, "promptflow.db"),
		LogLevel:    "info",
	}
}

// Load builds the configuration for repoDir. When path is set only that
// file is read and it must exist; otherwise the user file and then the
// repository file are overlaid on the defaults, and missing files are skipped.
// Environment variables are applied last.
func Load(repoDir, path string) (*Config, error) {
	return load(repoDir, path, userConfigDir(), os.LookupEnv)
}

func load(repoDir, path, userDir string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := defaultConfig(userDir)

	if path != "" {
		if err := cfg.mergeFile(path, true); err != nil {
			return nil, err
		}
	} else {
		if err := cfg.mergeFile(filepath.Join(userDir, AppDir, FileName), false); err != nil {
			return nil, err
		}
		if repoDir != "" {
			if err := cfg.mergeFile(filepath.Join(repoDir, ProjectDir, FileName), false); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path) // #nosec G304 -- config path chosen by the user
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	str("PROMPTFLOW_BOARD_FILE", &c.Board.FileName)
	str("PROMPTFLOW_TEMPLATES_DIR", &c.Recipes.TemplatesDir)
	str("PROMPTFLOW_DB_PATH", &c.DBPath)
	str("PROMPTFLOW_LOG_LEVEL", &c.LogLevel)
	str("PROMPTFLOW_ADDR", &c.Server.Addr)
	str("PROMPTFLOW_AGENT_COMMAND", &c.Agent.Command)
	str("PROMPTFLOW_BITBUCKET_WORKSPACE", &c.PullRequest.Workspace)
	str("PROMPTFLOW_BITBUCKET_REPO", &c.PullRequest.RepoSlug)
	str("PROMPTFLOW_BITBUCKET_USERNAME", &c.PullRequest.Username)
	str("PROMPTFLOW_BITBUCKET_API_URL", &c.PullRequest.APIBaseURL)
	str("PROMPTFLOW_TARGET_BRANCH", &c.PullRequest.DefaultTarget)

	if v, ok := lookup("PROMPTFLOW_AUTH_MODE"); ok {
		c.PullRequest.AuthMode = pullrequest.AuthMode(strings.TrimSpace(v))
	}
	if v, ok := lookup("PROMPTFLOW_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errs.Config("PROMPTFLOW_MAX_RETRIES: %q is not an integer", v)
		}
		c.Queue.MaxRetries = n
	}
	if v, ok := lookup("PROMPTFLOW_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return errs.Config("PROMPTFLOW_TIMEOUT: %q is not a duration", v)
		}
		c.Queue.Timeout = d
	}
	if v, ok := lookup("PROMPTFLOW_OPEN_BROWSER"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return errs.Config("PROMPTFLOW_OPEN_BROWSER: %q is not a boolean", v)
		}
		c.PullRequest.OpenInBrowser = b
	}
	return nil
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.Board.FileName) == "" {
		c.Board.FileName = kanban.DefaultFileName
	}
	if c.PullRequest.AuthMode == "" {
		c.PullRequest.AuthMode = pullrequest.AuthModeAuto
	}
	if c.PullRequest.DefaultTarget == "" {
		c.PullRequest.DefaultTarget = "main"
	}
	if c.PullRequest.APIBaseURL == "" {
		c.PullRequest.APIBaseURL = pullrequest.DefaultBitbucketURL
	}
	if c.Agent.Command == "" {
		c.Agent.Command = agents.DefaultAgentCommand
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if filepath.Base(c.Board.FileName) != c.Board.FileName {
		return errs.Config("board.fileName must be a file name, got %q", c.Board.FileName)
	}
	if c.Queue.MaxRetries < 0 {
		return errs.Config("queue.maxRetries must be >= 0, got %d", c.Queue.MaxRetries)
	}
	if c.Queue.Timeout <= 0 {
		return errs.Config("queue.timeout must be positive, got %s", c.Queue.Timeout)
	}
	switch c.PullRequest.AuthMode {
	case pullrequest.AuthModeAuto, pullrequest.AuthModeAppPasswordOnly:
	default:
		return errs.Config("pullRequest.authMode must be %q or %q, got %q",
			pullrequest.AuthModeAuto, pullrequest.AuthModeAppPasswordOnly, c.PullRequest.AuthMode)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return errs.Config("logLevel: %v", err)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// userConfigDir honours XDG_CONFIG_HOME and falls back to the platform default.
func userConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}
