package kanban

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

var migrateNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

const legacyBoard = `{
	"version": 1,
	"repository": "legacy",
	"theme": "dark",
	"cards": [
		{"id": 42, "title": "Numeric id", "column": "in progress", "createdAt": "2025-12-01T10:00:00Z"},
		{"title": "No id", "column": "Archived"},
		{"id": "42", "title": "Duplicate id"},
		"not-a-card",
		{"id": "c3", "column": "review", "updatedAt": 1735689600000, "prId": 17}
	],
	"runs": [
		{"id": "r1", "cardId": 42, "attempts": "3", "status": "SUCCEEDED", "dispatchMode": "AUTOSUBMIT"},
		{"cardId": "c3", "attempts": -4, "status": "exploded"},
		{"id": "r3", "cardId": "c3", "endedAt": "not a date", "promptHash": "abc"}
	]
}`

func TestMigrate_CoercesLegacyFields(t *testing.T) {
	board, err := Migrate([]byte(legacyBoard), "fallback", migrateNow)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if board.Version != CurrentSchemaVersion {
		t.Errorf("version = %d", board.Version)
	}
	if board.Repository != "legacy" {
		t.Errorf("repository = %q", board.Repository)
	}
	if !board.UpdatedAt.Equal(migrateNow) {
		t.Errorf("updatedAt = %v, want %v", board.UpdatedAt, migrateNow)
	}

	if len(board.Cards) != 3 {
		t.Fatalf("cards = %d, want 3: %+v", len(board.Cards), board.Cards)
	}

	c := board.Cards[0]
	if c.ID != "42" || c.Column != ColumnDoing {
		t.Errorf("card 0 = %+v", c)
	}
	if !c.UpdatedAt.Equal(c.CreatedAt) {
		t.Errorf("missing updatedAt should default to createdAt")
	}

	c = board.Cards[1]
	if c.ID != "card-2" || c.Column != ColumnBacklog {
		t.Errorf("card 1 = %+v", c)
	}
	if !c.CreatedAt.Equal(migrateNow) {
		t.Errorf("missing createdAt should default to board time, got %v", c.CreatedAt)
	}

	c = board.Cards[2]
	if c.ID != "c3" || c.Column != ColumnReview || c.PRID != "17" {
		t.Errorf("card 2 = %+v", c)
	}

	if len(board.Runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(board.Runs))
	}
	r := board.Runs[0]
	if r.CardID != "42" || r.Attempts != 3 || r.Status != RunSucceeded || r.DispatchMode != DispatchAutoSubmit {
		t.Errorf("run 0 = %+v", r)
	}
	r = board.Runs[1]
	if r.ID != "run-2" || r.Attempts != 0 || r.Status != RunPending || r.DispatchMode != DispatchPasteOnly {
		t.Errorf("run 1 = %+v", r)
	}
	r = board.Runs[2]
	if r.EndedAt != nil || r.PromptHash != "abc" {
		t.Errorf("run 2 = %+v", r)
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	first, err := Migrate([]byte(legacyBoard), "fallback", migrateNow)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	data, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	second, err := Migrate(data, "fallback", migrateNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	second.UpdatedAt = first.UpdatedAt
	if !reflect.DeepEqual(first, second) {
		t.Errorf("migration not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestMigrate_EmptyObjectUsesDefaults(t *testing.T) {
	board, err := Migrate([]byte(`{}`), "repo", migrateNow)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if board.Repository != "repo" || len(board.Cards) != 0 || len(board.Runs) != 0 {
		t.Errorf("unexpected board: %+v", board)
	}
	if !reflect.DeepEqual(board.Columns, Columns) {
		t.Errorf("columns = %v", board.Columns)
	}
}

func TestMigrate_RejectsNonObjects(t *testing.T) {
	for _, input := range []string{``, `null`, `"board"`, `[]`, `{"cards": [}`} {
		if _, err := Migrate([]byte(input), "repo", migrateNow); !errors.Is(err, ErrCorruptBoard) {
			t.Errorf("Migrate(%q) err = %v, want ErrCorruptBoard", input, err)
		}
	}
}

func TestMigrate_RejectsTrailingData(t *testing.T) {
	for _, input := range []string{`{} {}`, `{"cards": []} garbage{{`, `{"version": 2}]`} {
		if _, err := Migrate([]byte(input), "repo", migrateNow); !errors.Is(err, ErrCorruptBoard) {
			t.Errorf("Migrate(%q) err = %v, want ErrCorruptBoard", input, err)
		}
	}
	if _, err := Migrate([]byte("{\"version\": 2}\n\n"), "repo", migrateNow); err != nil {
		t.Errorf("trailing whitespace: %v", err)
	}
}
