// Package kanban provides the persisted board for promptflow.
// It tracks cards through fixed columns and records every run made for them
// in a JSON file at the repository root.
package kanban

import (
	"time"
)

// CurrentSchemaVersion is the board file version written by Save.
const CurrentSchemaVersion = 2

// DefaultFileName is the board file created in each repository root.
const DefaultFileName = ".promptflow-board.json"

// Column is the stage of a card on the board.
type Column string

const (
	ColumnBacklog Column = "Backlog" // Created, never run
	ColumnReady   Column = "Ready"   // A run is queued, or the last run failed
	ColumnDoing   Column = "Doing"   // A run is executing
	ColumnReview  Column = "Review"  // A prompt run succeeded
	ColumnDone    Column = "Done"    // A pull request was created
)

// Columns is the fixed column list, in board order.
var Columns = []Column{ColumnBacklog, ColumnReady, ColumnDoing, ColumnReview, ColumnDone}

// Valid reports whether c is one of the five board columns.
func (c Column) Valid() bool {
	for _, col := range Columns {
		if c == col {
			return true
		}
	}
	return false
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled" // Set only on pending runs abandoned by a previous process
)

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunRunning, RunSucceeded, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Active reports whether a run in this status blocks a new enqueue for its card.
func (s RunStatus) Active() bool {
	return s == RunPending || s == RunRunning
}

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

// DispatchMode controls how a rendered prompt reaches the agent.
type DispatchMode string

const (
	DispatchAutoSubmit DispatchMode = "autoSubmit" // Submitted directly
	DispatchPasteOnly  DispatchMode = "pasteOnly"  // Staged on the clipboard for manual review
)

// Valid reports whether m is a known dispatch mode.
func (m DispatchMode) Valid() bool {
	return m == DispatchAutoSubmit || m == DispatchPasteOnly
}

// BoardCard is a unit of work on the board.
type BoardCard struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	RecipeID     string    `json:"recipeId"`
	AgentID      string    `json:"agentId"`
	JiraKey      string    `json:"jiraKey,omitempty"`
	PRURL        string    `json:"prUrl,omitempty"`
	PRID         string    `json:"prId,omitempty"`
	SourceBranch string    `json:"sourceBranch,omitempty"`
	TargetBranch string    `json:"targetBranch,omitempty"`
	Column       Column    `json:"column"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	LastRunID    string    `json:"lastRunId,omitempty"`
}

// RunRecord is one execution of a card against a recipe, including its retries.
type RunRecord struct {
	ID            string       `json:"id"`
	CardID        string       `json:"cardId"`
	RecipeID      string       `json:"recipeId"`
	Status        RunStatus    `json:"status"`
	DispatchMode  DispatchMode `json:"dispatchMode"`
	StartedAt     time.Time    `json:"startedAt"`
	EndedAt       *time.Time   `json:"endedAt,omitempty"`
	Attempts      int          `json:"attempts"`
	Error         string       `json:"error,omitempty"`
	OutputSummary string       `json:"outputSummary,omitempty"`
	PromptHash    string       `json:"promptHash"`
}

// Duration returns how long the run took, or how long it has been running.
func (r RunRecord) Duration() time.Duration {
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// BoardState is the persisted root of a board file.
type BoardState struct {
	Version    int         `json:"version"`
	Repository string      `json:"repository"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Columns    []Column    `json:"columns"`
	Cards      []BoardCard `json:"cards"`
	Runs       []RunRecord `json:"runs"`
}

// NewBoard creates an empty board for the named repository.
func NewBoard(repository string, now time.Time) *BoardState {
	return &BoardState{
		Version:    CurrentSchemaVersion,
		Repository: repository,
		UpdatedAt:  now,
		Columns:    append([]Column(nil), Columns...),
		Cards:      []BoardCard{},
		Runs:       []RunRecord{},
	}
}

// Card returns the card with the given id.
func (b *BoardState) Card(id string) (*BoardCard, bool) {
	for i := range b.Cards {
		if b.Cards[i].ID == id {
			return &b.Cards[i], true
		}
	}
	return nil, false
}

// Run returns the run with the given id.
func (b *BoardState) Run(id string) (*RunRecord, bool) {
	for i := range b.Runs {
		if b.Runs[i].ID == id {
			return &b.Runs[i], true
		}
	}
	return nil, false
}

// RunsForCard returns the runs recorded for a card, oldest first.
func (b *BoardState) RunsForCard(cardID string) []RunRecord {
	var result []RunRecord
	for _, r := range b.Runs {
		if r.CardID == cardID {
			result = append(result, r)
		}
	}
	return result
}

// CardsInColumn returns the cards currently in a column.
func (b *BoardState) CardsInColumn(col Column) []BoardCard {
	var result []BoardCard
	for _, c := range b.Cards {
		if c.Column == col {
			result = append(result, c)
		}
	}
	return result
}

// Stats counts cards per column.
func (b *BoardState) Stats() map[Column]int {
	stats := make(map[Column]int, len(Columns))
	for _, col := range Columns {
		stats[col] = 0
	}
	for _, c := range b.Cards {
		stats[c.Column]++
	}
	return stats
}
