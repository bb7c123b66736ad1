package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/madhatter5501/promptflow/kanban"
	"github.com/madhatter5501/promptflow/recipes"
)

func newCardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Manage board cards",
	}
	cmd.AddCommand(newCardAddCmd())
	cmd.AddCommand(newCardMoveCmd())
	cmd.AddCommand(newCardDeleteCmd())
	return cmd
}

func newCardAddCmd() *cobra.Command {
	var id, title, recipe, agent, jiraKey string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a card to the Backlog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			title = strings.TrimSpace(title)
			if title == "" {
				return fmt.Errorf("--title is required")
			}
			if recipe != "" {
				if _, err := recipes.ParseKind(recipe); err != nil {
					return err
				}
			}

			a := appFrom(cmd.Context())
			store := a.board()
			if id == "" {
				id = uuid.NewString()
			} else if _, exists := store.Card(a.repo, id); exists {
				return fmt.Errorf("card %s already exists", id)
			}

			card, err := store.UpsertCard(a.repo, kanban.BoardCard{
				ID:       id,
				Title:    title,
				RecipeID: recipe,
				AgentID:  agent,
				JiraKey:  jiraKey,
				Column:   kanban.ColumnFor(kanban.EventCardCreated),
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added card %s to %s\n", card.ID, card.Column)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Card ID (default: generated)")
	cmd.Flags().StringVar(&title, "title", "", "Card title")
	cmd.Flags().StringVar(&recipe, "recipe", "", "Default recipe for runs of this card")
	cmd.Flags().StringVar(&agent, "agent", "", "Agent identifier")
	cmd.Flags().StringVar(&jiraKey, "jira", "", "Jira issue key")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newCardMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <cardID> <column>",
		Short: "Move a card to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := parseColumn(args[1])
			if err != nil {
				return err
			}
			a := appFrom(cmd.Context())
			card, err := a.board().MoveCard(a.repo, args[0], col)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Moved card %s to %s\n", card.ID, card.Column)
			return nil
		},
	}
}

func newCardDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <cardID>",
		Short: "Delete a card; its runs are kept as history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			removed, err := a.board().DeleteCard(a.repo, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%w: %s", kanban.ErrCardNotFound, args[0])
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted card %s\n", args[0])
			return nil
		},
	}
}
