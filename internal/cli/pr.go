package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/promptflow"
	"github.com/madhatter5501/promptflow/kanban"
	"github.com/madhatter5501/promptflow/pullrequest"
	"github.com/madhatter5501/promptflow/recipes"
)

func newPRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pr",
		Short: "Work with Bitbucket pull requests",
	}
	cmd.AddCommand(newPRCreateCmd())
	return cmd
}

func newPRCreateCmd() *cobra.Command {
	var (
		cardID      string
		description string
		source      string
		target      string
		title       string
		open        bool
		closeSource bool
		recoverRuns bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pull request from a description file",
		Long: `Create a pull request from a description file.

With --card the request runs through the queue as a pr-create-remote run and
the pull request is recorded on the card, which moves to Done.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			if !cmd.Flags().Changed("open") {
				open = a.cfg.PullRequest.OpenInBrowser
			}

			if cardID != "" {
				return createPRForCard(cmd, a, cardID, recoverRuns, recipes.PRCreate{
					DescriptionFile:   description,
					SourceBranch:      source,
					TargetBranch:      target,
					Title:             title,
					OpenInBrowser:     open,
					CloseSourceBranch: closeSource,
				})
			}

			database, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			creator := a.newCreator(store, cmd.InOrStdin(), cmd.ErrOrStderr())
			res, err := creator.Create(cmd.Context(), pullrequest.Options{
				CWD:               a.repo,
				DescriptionFile:   description,
				SourceBranch:      source,
				TargetBranch:      target,
				Title:             title,
				OpenInBrowser:     open,
				CloseSourceBranch: closeSource,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created PR #%s %s -> %s\n%s\n",
				res.ID, res.SourceBranch, res.TargetBranch, res.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&cardID, "card", "", "Record the pull request on this card")
	cmd.Flags().StringVar(&description, "description", "", "Markdown description file; removed after success")
	cmd.Flags().StringVar(&source, "source", "", "Source branch (default: current branch)")
	cmd.Flags().StringVar(&target, "target", "", "Target branch (default: pullRequest.defaultTarget)")
	cmd.Flags().StringVar(&title, "title", "", "Title (default: the description heading)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the pull request in a browser")
	cmd.Flags().BoolVar(&closeSource, "close-source", false, "Close the source branch on merge")
	cmd.Flags().BoolVar(&recoverRuns, "recover", false, "With --card, first settle runs left active by a process that died")
	return cmd
}

func createPRForCard(cmd *cobra.Command, a *app, cardID string, recoverRuns bool, in recipes.PRCreate) error {
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
	runID, err := svc.queue.Enqueue(cmd.Context(), promptflow.Job{
		CardID: cardID,
		CWD:    a.repo,
		Kind:   recipes.KindPRCreateRemote,
		Input:  in,
	})
	if err != nil {
		return activeRunHint(err)
	}
	if err := svc.queue.WaitIdle(cmd.Context()); err != nil {
		return err
	}

	run, _ := a.board().Run(a.repo, runID)
	if err := printRun(cmd.OutOrStdout(), run); err != nil {
		return err
	}
	if card, ok := a.board().Card(a.repo, cardID); ok && card.Column == kanban.ColumnDone {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), card.PRURL)
	}
	return nil
}
