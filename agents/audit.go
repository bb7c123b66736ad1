package agents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/madhatter5501/promptflow/kanban"
)

// AuditEventType is the kind of audit record.
type AuditEventType string

const (
	AuditEventPromptDispatched AuditEventType = "prompt_dispatched"
	AuditEventDispatchError    AuditEventType = "dispatch_error"
)

// maxAuditPrompt bounds how much of a prompt is stored with an audit entry.
const maxAuditPrompt = 50000

// AuditEntry records one dispatch to the agent.
type AuditEntry struct {
	ID           string              `json:"id"`
	RunID        string              `json:"runId,omitempty"`
	CardID       string              `json:"cardId,omitempty"`
	Dir          string              `json:"dir"`
	DispatchMode kanban.DispatchMode `json:"dispatchMode"`
	EventType    AuditEventType      `json:"eventType"`
	PromptHash   string              `json:"promptHash"`
	EventData    string              `json:"eventData,omitempty"` // Prompt text, or the error message
	DurationMs   int                 `json:"durationMs"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// AuditStore is the interface that a store must implement for audit logging.
type AuditStore interface {
	AddAuditEntry(ctx context.Context, entry *AuditEntry) error
}

// PromptDispatcher is anything that can deliver a prompt.
type PromptDispatcher interface {
	Dispatch(ctx context.Context, cwd, prompt string, mode kanban.DispatchMode) error
}

type runContextKey struct{}

type runContext struct {
	runID  string
	cardID string
}

// WithRun attaches the run and card being executed to ctx so audit entries
// can be correlated with the board.
func WithRun(ctx context.Context, runID, cardID string) context.Context {
	return context.WithValue(ctx, runContextKey{}, runContext{runID: runID, cardID: cardID})
}

// RunFromContext returns the run and card ids set by WithRun.
func RunFromContext(ctx context.Context) (runID, cardID string) {
	rc, _ := ctx.Value(runContextKey{}).(runContext)
	return rc.runID, rc.cardID
}

// AuditingDispatcher wraps a dispatcher and records every dispatch.
type AuditingDispatcher struct {
	inner  PromptDispatcher
	store  AuditStore
	logger *slog.Logger
}

// NewAuditingDispatcher creates a dispatcher wrapper that logs all dispatches.
func NewAuditingDispatcher(inner PromptDispatcher, store AuditStore, logger *slog.Logger) *AuditingDispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AuditingDispatcher{
		inner:  inner,
		store:  store,
		logger: logger,
	}
}

// Dispatch delivers the prompt and records the outcome. Audit failures are
// logged and never fail the dispatch.
func (a *AuditingDispatcher) Dispatch(ctx context.Context, cwd, prompt string, mode kanban.DispatchMode) error {
	start := time.Now()
	err := a.inner.Dispatch(ctx, cwd, prompt, mode)

	runID, cardID := RunFromContext(ctx)
	entry := &AuditEntry{
		ID:           uuid.NewString(),
		RunID:        runID,
		CardID:       cardID,
		Dir:          cwd,
		DispatchMode: mode,
		EventType:    AuditEventPromptDispatched,
		PromptHash:   HashText(prompt),
		EventData:    truncate(prompt, maxAuditPrompt),
		DurationMs:   int(time.Since(start).Milliseconds()),
		CreatedAt:    start.UTC(),
	}
	if err != nil {
		entry.EventType = AuditEventDispatchError
		entry.EventData = err.Error()
	}

	// The audit write must not be cut short by the dispatch deadline.
	if auditErr := a.store.AddAuditEntry(context.WithoutCancel(ctx), entry); auditErr != nil {
		a.logger.Warn("Failed to record audit entry", "run", runID, "error", auditErr)
	}

	return err
}

// HashText returns the hex SHA-256 of s.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n...[truncated]"
}
