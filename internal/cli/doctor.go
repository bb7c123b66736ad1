package cli

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/promptflow/agents"
	"github.com/madhatter5501/promptflow/git"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify git, the repository and the agent dispatch environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())

			var problems []string

			// git supplies branch, commit and diff context to recipes.
			if _, err := exec.LookPath("git"); err != nil {
				problems = append(problems, "missing dependency: git (not found on PATH)")
			} else if root, err := git.NewRepo(a.repo).Root(cmd.Context()); err != nil {
				problems = append(problems, fmt.Sprintf("%s is not inside a git repository", a.repo))
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "repository: %s\n", root)
			}

			dispatcher := agents.NewDispatcher(a.cfg.Agent, a.logger)
			problems = append(problems, dispatcher.ValidateEnvironment()...)

			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	return cmd
}
