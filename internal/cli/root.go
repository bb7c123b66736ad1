// Package cli implements the promptflow command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/promptflow/internal/config"
	"github.com/madhatter5501/promptflow/kanban"
)

// app is the per-invocation state built by the root command.
type app struct {
	repo   string
	cfg    *config.Config
	logger *slog.Logger
	// store is shared by every board reader and writer in the process,
	// so its mutex serializes the queue worker and the HTTP handlers.
	store *kanban.Store
}

func newApp(repo string, cfg *config.Config, logger *slog.Logger) *app {
	return &app{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		store: kanban.NewStore(
			kanban.WithFileName(cfg.Board.FileName),
			kanban.WithLogger(logger),
		),
	}
}

type appKey struct{}

func withApp(ctx context.Context, a *app) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

func appFrom(ctx context.Context) *app {
	a, _ := ctx.Value(appKey{}).(*app)
	if a == nil {
		panic("cli: command context has no app; PersistentPreRunE did not run")
	}
	return a
}

// board returns the board store for this invocation.
func (a *app) board() *kanban.Store {
	return a.store
}

// NewRootCmd builds the root command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	var (
		repoDir    string
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:           "promptflow",
		Short:         "promptflow - recipe prompts, a repository kanban board and Bitbucket pull requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			repo, err := filepath.Abs(repoDir)
			if err != nil {
				return fmt.Errorf("failed to resolve repository: %w", err)
			}
			cfg, err := config.Load(repo, configPath)
			if err != nil {
				return err
			}
			level := cfg.Level()
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(withApp(cmd.Context(), newApp(repo, cfg, logger)))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&repoDir, "repo", ".", "Repository root holding the board file")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user then repository config.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newBoardCmd())
	cmd.AddCommand(newCardCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newRecipesCmd())
	cmd.AddCommand(newPRCmd())
	cmd.AddCommand(newSecretsCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}

// Run executes the command tree and returns the process exit code.
func Run(ctx context.Context, version string, args []string) int {
	root := NewRootCmd(version)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}
