// Package agents hands rendered prompts to the external coding agent.
package agents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/madhatter5501/promptflow/kanban"

	"github.com/atotto/clipboard"
)

// DefaultAgentCommand is the CLI used for autoSubmit dispatch.
const DefaultAgentCommand = "claude"

// DefaultAgentArgs make the agent read the prompt from stdin and print its answer.
var DefaultAgentArgs = []string{"--print"}

// AgentResult is the outcome of a direct submission.
type AgentResult struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output"`
	Error    string        `json:"error,omitempty"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Config configures a Dispatcher.
type Config struct {
	Command      string   `yaml:"command" json:"command"`
	Args         []string `yaml:"args" json:"args"`
	PasteCommand []string `yaml:"pasteCommand" json:"pasteCommand"` // Optional; run after copying in pasteOnly mode
	Verbose      bool     `yaml:"verbose" json:"verbose"`
}

// Dispatcher submits prompts to an agent CLI or stages them on the clipboard.
type Dispatcher struct {
	agentPath    string
	args         []string
	pasteCommand []string
	verbose      bool
	logger       *slog.Logger

	// Replaced in tests.
	writeClipboard func(string) error
}

// NewDispatcher creates a dispatcher from config.
func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	command := cfg.Command
	if command == "" {
		command = DefaultAgentCommand
	}
	agentPath := command
	if path, err := exec.LookPath(command); err == nil {
		agentPath = path
	}
	args := cfg.Args
	if args == nil {
		args = DefaultAgentArgs
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Dispatcher{
		agentPath:      agentPath,
		args:           args,
		pasteCommand:   cfg.PasteCommand,
		verbose:        cfg.Verbose,
		logger:         logger,
		writeClipboard: clipboard.WriteAll,
	}
}

// Dispatch delivers prompt according to mode. Cancelling ctx kills a
// running agent process.
func (d *Dispatcher) Dispatch(ctx context.Context, cwd, prompt string, mode kanban.DispatchMode) error {
	switch mode {
	case kanban.DispatchAutoSubmit:
		result, err := d.Submit(ctx, cwd, prompt)
		if err != nil {
			if ctx.Err() == nil && result != nil && result.Error != "" {
				return fmt.Errorf("agent exited with code %d: %s", result.ExitCode, strings.TrimSpace(result.Error))
			}
			return err
		}
		return nil
	case kanban.DispatchPasteOnly, "":
		return d.Stage(ctx, cwd, prompt)
	default:
		return fmt.Errorf("unknown dispatch mode %q", mode)
	}
}

// Submit runs the agent CLI with the prompt on stdin.
func (d *Dispatcher) Submit(ctx context.Context, cwd, prompt string) (*AgentResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, d.agentPath, d.args...) // #nosec G204 -- agent command comes from user config
	cmd.Dir = cwd
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	if d.verbose {
		cmd.Stdout = io.MultiWriter(&stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()

	result := &AgentResult{
		Success:  err == nil,
		Output:   stdout.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		result.Error = stderr.String()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, fmt.Errorf("failed to run agent: %w", err)
	}

	d.logger.Info("Agent finished", "dir", cwd, "duration", result.Duration, "output_bytes", len(result.Output))
	return result, nil
}

// Stage copies the prompt to the clipboard and runs the paste command, if any.
func (d *Dispatcher) Stage(ctx context.Context, cwd, prompt string) error {
	if err := d.writeClipboard(prompt); err != nil {
		return fmt.Errorf("failed to copy prompt to clipboard: %w", err)
	}

	if len(d.pasteCommand) == 0 {
		d.logger.Info("Prompt copied to clipboard", "chars", len(prompt))
		return nil
	}

	cmd := exec.CommandContext(ctx, d.pasteCommand[0], d.pasteCommand[1:]...) // #nosec G204 -- paste command comes from user config
	cmd.Dir = cwd
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to run paste command: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ValidateEnvironment reports problems that would make dispatch fail.
func (d *Dispatcher) ValidateEnvironment() []string {
	var problems []string

	if _, err := exec.LookPath(d.agentPath); err != nil {
		problems = append(problems, fmt.Sprintf("agent CLI not found at %s", d.agentPath))
	}
	if clipboard.Unsupported {
		problems = append(problems, "clipboard is not available on this system")
	}
	if len(d.pasteCommand) > 0 {
		if _, err := exec.LookPath(d.pasteCommand[0]); err != nil {
			problems = append(problems, fmt.Sprintf("paste command not found: %s", d.pasteCommand[0]))
		}
	}

	return problems
}
