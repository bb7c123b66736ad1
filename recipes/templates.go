package recipes

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/madhatter5501/promptflow/internal/errs"
)

//go:embed templates/*.md
var defaultTemplates embed.FS

// SharedTemplatesDir is the directory, relative to a repository root, that
// holds team-shared templates checked into the repository.
const SharedTemplatesDir = ".promptflow/recipes"

// TemplateSource loads template text for a recipe, optionally scoped to a
// working directory.
type TemplateSource interface {
	Load(ctx context.Context, kind Kind, cwd string) (string, error)
}

// DirSource looks for <kind>.md in the repository's shared template
// directory, then in a user template directory, then in the built-in set.
type DirSource struct {
	UserDir string
	// NoDefaults disables the built-in templates.
	NoDefaults bool
}

// NewDirSource creates a template source rooted at a user template directory.
func NewDirSource(userDir string) *DirSource {
	return &DirSource{UserDir: userDir}
}

// Load returns the first template found for kind.
func (s *DirSource) Load(ctx context.Context, kind Kind, cwd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := string(kind) + ".md"
	var dirs []string
	if cwd != "" {
		dirs = append(dirs, filepath.Join(cwd, SharedTemplatesDir))
	}
	if s.UserDir != "" {
		dirs = append(dirs, s.UserDir)
	}

	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path) // #nosec G304 -- template dirs come from config
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read template %s: %w", path, err)
		}
	}

	if !s.NoDefaults {
		data, err := defaultTemplates.ReadFile("templates/" + name)
		if err == nil {
			return string(data), nil
		}
	}

	return "", errs.Config("no template found for recipe %s", kind)
}

// StaticSource serves templates from memory.
type StaticSource map[Kind]string

// Load returns the stored template, or a configuration error.
func (s StaticSource) Load(_ context.Context, kind Kind, _ string) (string, error) {
	t, ok := s[kind]
	if !ok {
		return "", errs.Config("no template found for recipe %s", kind)
	}
	return t, nil
}

// isBlank reports whether a template has no renderable content.
func isBlank(template string) bool {
	return strings.TrimSpace(template) == ""
}
