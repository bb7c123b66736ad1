package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/promptflow"
	"github.com/madhatter5501/promptflow/kanban"
	"github.com/madhatter5501/promptflow/recipes"
)

func newRunCmd() *cobra.Command {
	var (
		recipe      string
		mode        string
		inputPath   string
		renderOnly  bool
		recoverRuns bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <cardID>",
		Short: "Run a recipe for a card through the queue and wait for the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			cardID := args[0]

			card, ok := a.board().Card(a.repo, cardID)
			if !ok {
				return fmt.Errorf("%w: %s", kanban.ErrCardNotFound, cardID)
			}
			if recipe == "" {
				recipe = card.RecipeID
			}
			kind, err := recipes.ParseKind(recipe)
			if err != nil {
				return err
			}
			input, err := readInput(cmd.InOrStdin(), kind, inputPath)
			if err != nil {
				return err
			}
			dispatch := kanban.DispatchMode(mode)
			if mode != "" && !dispatch.Valid() {
				return fmt.Errorf("unknown dispatch mode %q", mode)
			}

			svc, err := a.newServices(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer svc.close()

			if recoverRuns {
				if err := svc.recoverStale(cmd.Context(), a.repo); err != nil {
					return err
				}
			}
			if !renderOnly {
				svc.warnEnvironment(a.logger)
			}

			runID, err := svc.queue.Enqueue(cmd.Context(), promptflow.Job{
				CardID:       cardID,
				CWD:          a.repo,
				Kind:         kind,
				Input:        input,
				DispatchMode: dispatch,
				RenderOnly:   renderOnly,
				Timeout:      timeout,
			})
			if err != nil {
				return activeRunHint(err)
			}
			if err := svc.queue.WaitIdle(cmd.Context()); err != nil {
				return err
			}

			run, _ := a.board().Run(a.repo, runID)
			return printRun(cmd.OutOrStdout(), run)
		},
	}
	cmd.Flags().StringVar(&recipe, "recipe", "", "Recipe to run (default: the card's recipe)")
	cmd.Flags().StringVar(&mode, "mode", "", "Dispatch mode: autoSubmit or pasteOnly (default: the recipe's)")
	cmd.Flags().StringVar(&inputPath, "input", "", "JSON file with the recipe input, or - for stdin")
	cmd.Flags().BoolVar(&renderOnly, "render-only", false, "Render and record the prompt without dispatching it")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-attempt timeout (default: queue.timeout)")
	cmd.Flags().BoolVar(&recoverRuns, "recover", false, "First settle runs left active by a process that died")
	return cmd
}

// activeRunHint points at --recover when a card is blocked by an active run.
func activeRunHint(err error) error {
	if errors.Is(err, kanban.ErrActiveRun) {
		return fmt.Errorf("%w (if no other promptflow process owns this repository, retry with --recover)", err)
	}
	return err
}

func printRun(w io.Writer, run kanban.RunRecord) error {
	_, _ = fmt.Fprintf(w, "Run %s %s after %d attempt(s) in %s\n",
		run.ID, run.Status, run.Attempts, run.Duration().Round(time.Millisecond))
	if run.OutputSummary != "" {
		_, _ = fmt.Fprintf(w, "  %s\n", run.OutputSummary)
	}
	if run.Status != kanban.RunSucceeded {
		return fmt.Errorf("run %s %s: %s", run.ID, run.Status, run.Error)
	}
	return nil
}

func newRenderCmd() *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "render <recipe>",
		Short: "Render a recipe prompt without dispatching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			kind, err := recipes.ParseKind(args[0])
			if err != nil {
				return err
			}
			input, err := readInput(cmd.InOrStdin(), kind, inputPath)
			if err != nil {
				return err
			}

			executor := recipes.NewExecutor(recipes.NewDirSource(a.cfg.Recipes.TemplatesDir), nil, a.logger)
			res, err := executor.Execute(cmd.Context(), recipes.Request{
				Kind:  kind,
				CWD:   a.repo,
				Input: input,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Prompt)
			for _, w := range res.LintWarnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: unknown placeholder {{%s}}\n", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "JSON file with the recipe input, or - for stdin")
	return cmd
}

func newRecipesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List the available recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, r := range recipes.All() {
				_, _ = fmt.Fprintf(out, "%-28s %s\n", r.Kind, r.Label())
				if !r.Prompt {
					_, _ = fmt.Fprintln(out, "  creates a pull request, no prompt")
					continue
				}
				_, _ = fmt.Fprintf(out, "  mode: %s\n", r.DefaultMode)
				_, _ = fmt.Fprintf(out, "  placeholders: %s\n", strings.Join(r.Placeholders, ", "))
			}
			return nil
		},
	}
}

// readInput decodes the recipe input from a file, stdin ("-") or nothing.
func readInput(stdin io.Reader, kind recipes.Kind, path string) (recipes.Input, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(path) // #nosec G304 -- input path chosen by the user
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return recipes.DecodeInput(kind, data)
}
