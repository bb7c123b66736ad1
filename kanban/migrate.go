package kanban

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrCorruptBoard is returned by Migrate when the input is not a JSON object.
var ErrCorruptBoard = errors.New("board file is not a JSON object")

// legacyColumns maps column spellings written by older boards or by hand.
var legacyColumns = map[string]Column{
	"todo":        ColumnBacklog,
	"in progress": ColumnDoing,
	"in-progress": ColumnDoing,
	"inprogress":  ColumnDoing,
	"in review":   ColumnReview,
	"complete":    ColumnDone,
	"completed":   ColumnDone,
}

// Migrate parses a board file of any schema version and coerces every field
// to the current shape. Unknown fields are dropped. Running Migrate on its own
// output yields the same board apart from UpdatedAt.
func Migrate(raw []byte, repository string, now time.Time) (*BoardState, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBoard, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after the object", ErrCorruptBoard)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrCorruptBoard
	}

	board := NewBoard(repository, now)
	if name, ok := asString(obj["repository"]); ok && strings.TrimSpace(name) != "" {
		board.Repository = name
	}
	board.UpdatedAt = asTime(obj["updatedAt"], now)

	seenCards := make(map[string]bool)
	for i, item := range asSlice(obj["cards"]) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		card := migrateCard(m, i, board.UpdatedAt)
		if seenCards[card.ID] {
			continue
		}
		seenCards[card.ID] = true
		board.Cards = append(board.Cards, card)
	}

	seenRuns := make(map[string]bool)
	for i, item := range asSlice(obj["runs"]) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		run := migrateRun(m, i, board.UpdatedAt)
		if seenRuns[run.ID] {
			continue
		}
		seenRuns[run.ID] = true
		board.Runs = append(board.Runs, run)
	}

	return board, nil
}

func migrateCard(m map[string]any, index int, fallback time.Time) BoardCard {
	card := BoardCard{
		ID:     fmt.Sprintf("card-%d", index+1),
		Column: ColumnBacklog,
	}
	if id, ok := asString(m["id"]); ok && id != "" {
		card.ID = id
	}
	card.Title, _ = asString(m["title"])
	card.RecipeID, _ = asString(m["recipeId"])
	card.AgentID, _ = asString(m["agentId"])
	card.JiraKey, _ = asString(m["jiraKey"])
	card.PRURL, _ = asString(m["prUrl"])
	card.PRID, _ = asString(m["prId"])
	card.SourceBranch, _ = asString(m["sourceBranch"])
	card.TargetBranch, _ = asString(m["targetBranch"])
	card.LastRunID, _ = asString(m["lastRunId"])

	if col, ok := asString(m["column"]); ok {
		card.Column = parseColumn(col)
	}

	card.CreatedAt = asTime(m["createdAt"], fallback)
	card.UpdatedAt = asTime(m["updatedAt"], card.CreatedAt)
	if card.UpdatedAt.Before(card.CreatedAt) {
		card.UpdatedAt = card.CreatedAt
	}
	return card
}

func migrateRun(m map[string]any, index int, fallback time.Time) RunRecord {
	run := RunRecord{
		ID:           fmt.Sprintf("run-%d", index+1),
		Status:       RunPending,
		DispatchMode: DispatchPasteOnly,
	}
	if id, ok := asString(m["id"]); ok && id != "" {
		run.ID = id
	}
	run.CardID, _ = asString(m["cardId"])
	run.RecipeID, _ = asString(m["recipeId"])
	run.Error, _ = asString(m["error"])
	run.OutputSummary, _ = asString(m["outputSummary"])
	run.PromptHash, _ = asString(m["promptHash"])

	if s, ok := asString(m["status"]); ok {
		if st := RunStatus(strings.ToLower(strings.TrimSpace(s))); st.Valid() {
			run.Status = st
		}
	}
	if s, ok := asString(m["dispatchMode"]); ok {
		run.DispatchMode = parseDispatchMode(s)
	}

	run.StartedAt = asTime(m["startedAt"], fallback)
	if v, ok := m["endedAt"]; ok && v != nil {
		if t, ok := parseTime(v); ok {
			run.EndedAt = &t
		}
	}
	run.Attempts = asInt(m["attempts"])
	return run
}

func parseColumn(s string) Column {
	s = strings.TrimSpace(s)
	for _, col := range Columns {
		if strings.EqualFold(s, string(col)) {
			return col
		}
	}
	if col, ok := legacyColumns[strings.ToLower(s)]; ok {
		return col
	}
	return ColumnBacklog
}

func parseDispatchMode(s string) DispatchMode {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(DispatchAutoSubmit)) {
		return DispatchAutoSubmit
	}
	return DispatchPasteOnly
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

func asInt(v any) int {
	var n float64
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		n = f
	default:
		return 0
	}
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

func asTime(v any, fallback time.Time) time.Time {
	if t, ok := parseTime(v); ok {
		return t
	}
	return fallback
}

// parseTime accepts RFC 3339 strings and Unix epoch milliseconds.
func parseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	default:
		return time.Time{}, false
	}
}
