package kanban

import (
	"errors"
	"fmt"
)

// ErrActiveRun is returned when a card already has a pending or running run.
var ErrActiveRun = errors.New("card already has an active run")

// ValidRunTransitions defines the allowed run status transitions.
// Same-status writes are always allowed so attempts and errors can be recorded.
var ValidRunTransitions = map[RunStatus][]RunStatus{
	RunPending: {RunRunning, RunCancelled},
	RunRunning: {RunSucceeded, RunFailed, RunCancelled},
}

// CanTransition reports whether a run may move from s to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	if s == next {
		return !s.Terminal()
	}
	for _, allowed := range ValidRunTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected run update.
type TransitionError struct {
	RunID string
	From  RunStatus
	To    RunStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid run transition for %s: %s -> %s", e.RunID, e.From, e.To)
}

// Event is something that happens to a card's current run.
type Event string

const (
	EventCardCreated        Event = "card-created"
	EventRunEnqueued        Event = "run-enqueued"
	EventRunStarted         Event = "run-started"
	EventRunSucceeded       Event = "run-succeeded"
	EventPullRequestCreated Event = "pull-request-created"
	EventRunFailed          Event = "run-failed"
)

// ColumnFor returns the column a card moves to after an event.
func ColumnFor(ev Event) Column {
	switch ev {
	case EventRunEnqueued, EventRunFailed:
		return ColumnReady
	case EventRunStarted:
		return ColumnDoing
	case EventRunSucceeded:
		return ColumnReview
	case EventPullRequestCreated:
		return ColumnDone
	default:
		return ColumnBacklog
	}
}

// ActiveRun returns the pending or running run for a card, if any.
func (b *BoardState) ActiveRun(cardID string) (*RunRecord, bool) {
	for i := range b.Runs {
		if b.Runs[i].CardID == cardID && b.Runs[i].Status.Active() {
			return &b.Runs[i], true
		}
	}
	return nil, false
}

// EnsureNoActiveRun returns ErrActiveRun if the card has a run in flight.
func (b *BoardState) EnsureNoActiveRun(cardID string) error {
	if r, ok := b.ActiveRun(cardID); ok {
		return fmt.Errorf("%w: run %s is %s", ErrActiveRun, r.ID, r.Status)
	}
	return nil
}
