package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/madhatter5501/promptflow/kanban"
)

type mockAuditStore struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockAuditStore) AddAuditEntry(ctx context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return m.err
}

type funcDispatcher func(ctx context.Context, cwd, prompt string, mode kanban.DispatchMode) error

func (f funcDispatcher) Dispatch(ctx context.Context, cwd, prompt string, mode kanban.DispatchMode) error {
	return f(ctx, cwd, prompt, mode)
}

func TestAuditingDispatcher_RecordsSuccess(t *testing.T) {
	store := &mockAuditStore{}
	called := false
	inner := funcDispatcher(func(ctx context.Context, cwd, prompt string, mode kanban.DispatchMode) error {
		called = true
		return nil
	})
	d := NewAuditingDispatcher(inner, store, nil)

	ctx := WithRun(context.Background(), "run-1", "card-1")
	if err := d.Dispatch(ctx, "/repo", "render me", kanban.DispatchAutoSubmit); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !called {
		t.Fatal("inner dispatcher not called")
	}

	if len(store.entries) != 1 {
		t.Fatalf("entries = %d", len(store.entries))
	}
	e := store.entries[0]
	if e.RunID != "run-1" || e.CardID != "card-1" || e.Dir != "/repo" {
		t.Errorf("correlation fields = %+v", e)
	}
	if e.EventType != AuditEventPromptDispatched || e.EventData != "render me" {
		t.Errorf("event = %s %q", e.EventType, e.EventData)
	}
	if e.PromptHash != HashText("render me") || len(e.PromptHash) != 64 {
		t.Errorf("hash = %s", e.PromptHash)
	}
}

func TestAuditingDispatcher_RecordsErrorsAndIgnoresAuditFailure(t *testing.T) {
	store := &mockAuditStore{err: errors.New("disk full")}
	inner := funcDispatcher(func(ctx context.Context, cwd, prompt string, mode kanban.DispatchMode) error {
		return errors.New("agent offline")
	})
	d := NewAuditingDispatcher(inner, store, nil)

	err := d.Dispatch(context.Background(), "/repo", "x", kanban.DispatchPasteOnly)
	if err == nil || err.Error() != "agent offline" {
		t.Errorf("err = %v, want inner error", err)
	}
	if len(store.entries) != 1 || store.entries[0].EventType != AuditEventDispatchError {
		t.Errorf("entries = %+v", store.entries)
	}
}

func TestRunFromContext_Empty(t *testing.T) {
	runID, cardID := RunFromContext(context.Background())
	if runID != "" || cardID != "" {
		t.Errorf("got %q %q", runID, cardID)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", maxAuditPrompt+10)
	got := truncate(long, maxAuditPrompt)
	if !strings.HasSuffix(got, "...[truncated]") || len(got) > maxAuditPrompt+20 {
		t.Errorf("truncate length %d", len(got))
	}
	if truncate("short", 10) != "short" {
		t.Error("short strings should be unchanged")
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	// "é" is two bytes and "界" three, so most cut points land mid-rune.
	s := strings.Repeat("é界", 20)
	for maxLen := 1; maxLen < len(s); maxLen++ {
		got := truncate(s, maxLen)
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%d) = %q is not valid UTF-8", maxLen, got)
		}
		if kept := strings.TrimSuffix(got, "\n...[truncated]"); len(kept) > maxLen || !strings.HasPrefix(s, kept) {
			t.Fatalf("truncate(%d) kept %q", maxLen, kept)
		}
	}
}
