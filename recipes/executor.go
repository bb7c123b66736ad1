package recipes

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/madhatter5501/promptflow/internal/errs"
	"github.com/madhatter5501/promptflow/kanban"
)

// Dispatcher hands a rendered prompt to the external agent.
type Dispatcher interface {
	Dispatch(ctx context.Context, cwd, prompt string, mode kanban.DispatchMode) error
}

// Request is a single recipe execution.
type Request struct {
	Kind  Kind
	CWD   string
	Input Input
	// DispatchMode overrides the recipe default when set.
	DispatchMode kanban.DispatchMode
	// DispatchToAgent sends the prompt to the Dispatcher after rendering.
	DispatchToAgent bool
}

// Result is the outcome of a successful execution.
type Result struct {
	Prompt       string              `json:"prompt"`
	DispatchMode kanban.DispatchMode `json:"dispatchMode"`
	LintWarnings []string            `json:"lintWarnings"`
}

// Executor loads, renders, lints and optionally dispatches recipes.
type Executor struct {
	templates  TemplateSource
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewExecutor creates an executor. dispatcher may be nil when prompts are
// only rendered.
func NewExecutor(templates TemplateSource, dispatcher Dispatcher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{
		templates:  templates,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Execute renders the recipe for req and dispatches it when asked.
// Lint warnings never block dispatch.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	recipe, err := Lookup(req.Kind)
	if err != nil {
		return nil, err
	}
	if !recipe.Prompt {
		return nil, errs.Config("recipe %s does not render a prompt", req.Kind)
	}

	template, err := e.templates.Load(ctx, req.Kind, req.CWD)
	if err != nil {
		return nil, err
	}
	if isBlank(template) {
		return nil, errs.Config("template for recipe %s is empty", req.Kind)
	}

	vars, err := recipe.BuildContext(ctx, req.CWD, req.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to build context for %s: %w", req.Kind, err)
	}

	prompt := Render(template, vars)
	warnings := Lint(template, recipe.Placeholders)
	if warnings == nil {
		warnings = []string{}
	}
	if len(warnings) > 0 {
		e.logger.Warn("Template uses unknown placeholders",
			"recipe", req.Kind,
			"placeholders", warnings,
		)
	}

	mode := req.DispatchMode
	if !mode.Valid() {
		mode = recipe.DefaultMode
	}

	if req.DispatchToAgent {
		if e.dispatcher == nil {
			return nil, errs.Config("agent dispatch is not configured")
		}
		if err := e.dispatcher.Dispatch(ctx, req.CWD, prompt, mode); err != nil {
			return nil, fmt.Errorf("failed to dispatch %s: %w", req.Kind, err)
		}
		e.logger.Info("Prompt dispatched", "recipe", req.Kind, "mode", mode, "chars", len(prompt))
	}

	return &Result{
		Prompt:       prompt,
		DispatchMode: mode,
		LintWarnings: warnings,
	}, nil
}
