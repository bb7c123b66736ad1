package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/madhatter5501/promptflow/kanban"
)

const columnWidth = 30

var upperCaser = cases.Upper(language.English)

var columnHeader = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#5B8DEF"))

var idStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#AAAAAA"))

var columnBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#444444")).
	Padding(0, 1).
	Width(columnWidth)

func newBoardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Inspect the repository board",
	}
	cmd.AddCommand(newBoardShowCmd())
	return cmd
}

func newBoardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Render the board columns and their cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			board := a.board().Load(a.repo)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderBoard(board))
			return nil
		},
	}
}

// renderBoard lays the columns out side by side.
func renderBoard(board *kanban.BoardState) string {
	stats := board.Stats()
	boxes := make([]string, 0, len(kanban.Columns))
	for _, col := range kanban.Columns {
		lines := []string{columnHeader.Render(fmt.Sprintf("%s (%d)", upperCaser.String(string(col)), stats[col]))}
		for _, card := range board.CardsInColumn(col) {
			lines = append(lines, cardLine(board, card))
		}
		boxes = append(boxes, columnBox.Render(strings.Join(lines, "\n")))
	}

	title := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%s · %d cards · %d runs",
		board.Repository, len(board.Cards), len(board.Runs)))
	return lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
}

func cardLine(board *kanban.BoardState, card kanban.BoardCard) string {
	line := idStyle.Render(shortID(card.ID)) + " " + card.Title
	if card.RecipeID != "" {
		line += " [" + card.RecipeID + "]"
	}
	if run, ok := board.ActiveRun(card.ID); ok {
		line += " (" + string(run.Status) + ")"
	}
	if card.PRURL != "" {
		line += "\n  " + card.PRURL
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// parseColumn matches a column name case-insensitively.
func parseColumn(s string) (kanban.Column, error) {
	for _, col := range kanban.Columns {
		if strings.EqualFold(s, string(col)) {
			return col, nil
		}
	}
	return "", fmt.Errorf("%w: %q", kanban.ErrInvalidColumn, s)
}
