// Package pullrequest opens remote pull requests from a description file,
// falling back across stored credentials when the preferred one is rejected.
package pullrequest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/madhatter5501/promptflow/git"
	"github.com/madhatter5501/promptflow/internal/errs"
)

// Credential store keys.
const (
	KeyAccessToken = "bitbucket.accessToken"
	KeyAppPassword = "bitbucket.appPassword"
)

// AuthMode selects which credentials may be used.
type AuthMode string

const (
	// AuthModeAuto tries a stored access token first, then an app password.
	AuthModeAuto AuthMode = "auto"
	// AuthModeAppPasswordOnly never uses the access token.
	AuthModeAppPasswordOnly AuthMode = "appPasswordOnly"
)

// Config holds pull-request settings.
type Config struct {
	Workspace     string   `yaml:"workspace" json:"workspace"`
	RepoSlug      string   `yaml:"repoSlug" json:"repoSlug"`
	Username      string   `yaml:"username" json:"username"` // Account used with an app password
	AuthMode      AuthMode `yaml:"authMode" json:"authMode"`
	DefaultTarget string   `yaml:"defaultTarget" json:"defaultTarget"`
	APIBaseURL    string   `yaml:"apiBaseUrl" json:"apiBaseUrl"`
	OpenInBrowser bool     `yaml:"openInBrowser" json:"openInBrowser"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AuthMode:      AuthModeAuto,
		DefaultTarget: "main",
		APIBaseURL:    DefaultBitbucketURL,
	}
}

// Options describe one pull request to create.
type Options struct {
	CWD               string
	DescriptionFile   string
	SourceBranch      string
	TargetBranch      string
	Title             string
	OpenInBrowser     bool
	CloseSourceBranch bool
}

// Result is the created pull request.
type Result struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	SourceBranch string `json:"sourceBranch"`
	TargetBranch string `json:"targetBranch"`
	Title        string `json:"title"`
}

// API creates pull requests on the remote host.
type API interface {
	CreatePullRequest(ctx context.Context, req CreateRequest) (*Created, error)
}

// CredentialStore persists secrets by key. Get reports false for a missing key.
type CredentialStore interface {
	GetCredential(ctx context.Context, key string) (string, bool, error)
	SetCredential(ctx context.Context, key, value string) error
	DeleteCredential(ctx context.Context, key string) error
}

// Prompter asks the user for an app password. An empty answer means the
// user declined.
type Prompter interface {
	PromptAppPassword(ctx context.Context) (string, error)
}

// Repository answers questions about a local checkout. *git.Repo satisfies it.
type Repository interface {
	RemoteURL(ctx context.Context, remote string) (string, error)
	CurrentBranch(ctx context.Context) (string, error)
}

// RepositoryFunc opens the checkout rooted at dir.
type RepositoryFunc func(dir string) Repository

// Opener shows a URL to the user.
type Opener interface {
	Open(ctx context.Context, url string) error
}

type credentialKind int

const (
	credentialToken credentialKind = iota
	credentialAppPassword
)

type credential struct {
	kind  credentialKind
	value string
}

// Creator creates pull requests.
type Creator struct {
	config  Config
	api     API
	secrets CredentialStore
	prompt  Prompter
	repo    RepositoryFunc
	opener  Opener
	logger  *slog.Logger
}

// CreatorOption configures a Creator.
type CreatorOption func(*Creator)

// WithPrompter sets how the user is asked for an app password.
func WithPrompter(p Prompter) CreatorOption {
	return func(c *Creator) { c.prompt = p }
}

// WithRepository sets how the origin remote and current branch are found.
func WithRepository(fn RepositoryFunc) CreatorOption {
	return func(c *Creator) { c.repo = fn }
}

// WithOpener sets how created pull requests are shown.
func WithOpener(o Opener) CreatorOption {
	return func(c *Creator) { c.opener = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CreatorOption {
	return func(c *Creator) { c.logger = l }
}

// NewCreator creates a pull-request creator.
func NewCreator(cfg Config, api API, secrets CredentialStore, opts ...CreatorOption) *Creator {
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthModeAuto
	}
	if cfg.DefaultTarget == "" {
		cfg.DefaultTarget = "main"
	}
	c := &Creator{
		config:  cfg,
		api:     api,
		secrets: secrets,
		repo:    func(dir string) Repository { return git.NewRepo(dir) },
		opener:  BrowserOpener{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create opens a pull request described by opts.DescriptionFile.
// Configuration problems are returned as errs.ConfigError.
func (c *Creator) Create(ctx context.Context, opts Options) (*Result, error) {
	workspace, slug, err := c.resolveSlug(ctx, opts.CWD)
	if err != nil {
		return nil, err
	}

	source := opts.SourceBranch
	if source == "" && c.repo != nil {
		source, _ = c.repo(opts.CWD).CurrentBranch(ctx)
	}
	if source == "" {
		return nil, errs.Config("source branch is required to create a pull request")
	}
	target := opts.TargetBranch
	if target == "" {
		target = c.config.DefaultTarget
	}
	if source == target {
		return nil, errs.Config("source and target branch are both %q", source)
	}

	title, description, err := c.readDescription(opts)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = source
	}

	creds, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}

	req := CreateRequest{
		Workspace:         workspace,
		RepoSlug:          slug,
		Title:             title,
		Description:       description,
		SourceBranch:      source,
		TargetBranch:      target,
		CloseSourceBranch: opts.CloseSourceBranch,
	}

	created, err := c.createWithFallback(ctx, req, creds)
	if err != nil {
		return nil, err
	}

	if opts.DescriptionFile != "" {
		if err := os.Remove(c.descriptionPath(opts)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("Failed to remove description file", "path", opts.DescriptionFile, "error", err)
		}
	}

	if opts.OpenInBrowser && created.URL != "" && c.opener != nil {
		if err := c.opener.Open(ctx, created.URL); err != nil {
			c.logger.Warn("Failed to open pull request", "url", created.URL, "error", err)
		}
	}

	c.logger.Info("Pull request created",
		"workspace", workspace,
		"repo", slug,
		"id", created.ID,
		"url", created.URL,
	)

	return &Result{
		ID:           created.ID,
		URL:          created.URL,
		SourceBranch: source,
		TargetBranch: target,
		Title:        created.Title,
	}, nil
}

// resolveSlug prefers configuration and falls back to the origin remote.
func (c *Creator) resolveSlug(ctx context.Context, cwd string) (string, string, error) {
	workspace, slug := c.config.Workspace, c.config.RepoSlug
	if workspace != "" && slug != "" {
		return workspace, slug, nil
	}

	if c.repo != nil {
		if remote, err := c.repo(cwd).RemoteURL(ctx, "origin"); err == nil {
			if ws, s, ok := ParseRemote(remote); ok {
				if workspace == "" {
					workspace = ws
				}
				if slug == "" {
					slug = s
				}
			}
		} else {
			c.logger.Debug("No origin remote", "dir", cwd, "error", err)
		}
	}

	if workspace == "" || slug == "" {
		return "", "", errs.Config("cannot determine Bitbucket workspace and repository: set pullRequest.workspace and pullRequest.repoSlug, or use a bitbucket.org origin remote")
	}
	return workspace, slug, nil
}

func (c *Creator) descriptionPath(opts Options) string {
	if filepath.IsAbs(opts.DescriptionFile) || opts.CWD == "" {
		return opts.DescriptionFile
	}
	return filepath.Join(opts.CWD, opts.DescriptionFile)
}

func (c *Creator) readDescription(opts Options) (title, body string, err error) {
	if opts.DescriptionFile == "" {
		return opts.Title, "", nil
	}
	path := c.descriptionPath(opts)
	data, err := os.ReadFile(path) // #nosec G304 -- description file chosen by the user
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", errs.Config("description file %s not found; run the pr-description recipe first", path)
		}
		return "", "", fmt.Errorf("failed to read description file: %w", err)
	}

	heading, body := SplitDescription(data)
	switch {
	case opts.Title != "":
		title = opts.Title
	case heading != "":
		title = heading
	default:
		title = firstLine(body)
	}
	return title, body, nil
}

// credentials builds the ordered list of credentials to try.
func (c *Creator) credentials(ctx context.Context) ([]credential, error) {
	var creds []credential

	if c.config.AuthMode != AuthModeAppPasswordOnly {
		token, ok, err := c.secrets.GetCredential(ctx, KeyAccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to read access token: %w", err)
		}
		if ok && token != "" {
			creds = append(creds, credential{kind: credentialToken, value: token})
		}
	}

	password, ok, err := c.secrets.GetCredential(ctx, KeyAppPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to read app password: %w", err)
	}
	hasPassword := ok && password != ""

	if c.config.AuthMode == AuthModeAppPasswordOnly && !hasPassword {
		password, err = c.promptAppPassword(ctx)
		if err != nil {
			return nil, err
		}
		hasPassword = true
	}
	if hasPassword {
		creds = append(creds, credential{kind: credentialAppPassword, value: password})
	}

	if len(creds) == 0 {
		password, err = c.promptAppPassword(ctx)
		if err != nil {
			return nil, err
		}
		creds = append(creds, credential{kind: credentialAppPassword, value: password})
	}

	return creds, nil
}

// createWithFallback tries each credential in order. A rejected access token
// falls through to an app password, prompting for one if none is queued.
func (c *Creator) createWithFallback(ctx context.Context, req CreateRequest, creds []credential) (*Created, error) {
	for i := 0; i < len(creds); i++ {
		cred := creds[i]
		header, err := c.authHeader(cred)
		if err != nil {
			return nil, err
		}
		req.AuthHeader = header

		created, err := c.api.CreatePullRequest(ctx, req)
		if err == nil {
			return created, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsAuth() || cred.kind != credentialToken {
			return nil, fmt.Errorf("failed to create pull request: %w", err)
		}

		c.logger.Warn("Access token rejected, falling back to app password", "status", apiErr.StatusCode)
		if !hasAppPassword(creds[i+1:]) {
			password, err := c.promptAppPassword(ctx)
			if err != nil {
				return nil, err
			}
			creds = append(creds, credential{kind: credentialAppPassword, value: password})
		}
	}
	return nil, errors.New("failed to create pull request: no credential was accepted")
}

func (c *Creator) promptAppPassword(ctx context.Context) (string, error) {
	if c.prompt == nil {
		return "", errs.Config("no Bitbucket app password stored and no way to ask for one")
	}
	password, err := c.prompt.PromptAppPassword(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read app password: %w", err)
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return "", errs.Config("a Bitbucket app password is required")
	}
	if err := c.secrets.SetCredential(ctx, KeyAppPassword, password); err != nil {
		return "", fmt.Errorf("failed to store app password: %w", err)
	}
	return password, nil
}

func (c *Creator) authHeader(cred credential) (string, error) {
	if cred.kind == credentialToken {
		return "Bearer " + cred.value, nil
	}
	if c.config.Username == "" {
		return "", errs.Config("pullRequest.username is required to use an app password")
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.config.Username + ":" + cred.value))
	return "Basic " + basic, nil
}

func hasAppPassword(creds []credential) bool {
	for _, c := range creds {
		if c.kind == credentialAppPassword {
			return true
		}
	}
	return false
}

// BrowserOpener opens URLs with the platform's default handler.
type BrowserOpener struct{}

// Open launches the browser without waiting for it to exit.
func (BrowserOpener) Open(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	return cmd.Start()
}
