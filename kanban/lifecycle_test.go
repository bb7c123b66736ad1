package kanban

import (
	"errors"
	"testing"
)

func TestRunStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{RunPending, RunRunning, true},
		{RunPending, RunCancelled, true},
		{RunPending, RunSucceeded, false},
		{RunPending, RunFailed, false},
		{RunPending, RunPending, true},
		{RunRunning, RunRunning, true},
		{RunRunning, RunSucceeded, true},
		{RunRunning, RunFailed, true},
		{RunRunning, RunPending, false},
		{RunSucceeded, RunSucceeded, false},
		{RunSucceeded, RunRunning, false},
		{RunFailed, RunPending, false},
		{RunCancelled, RunRunning, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestColumnFor(t *testing.T) {
	tests := map[Event]Column{
		EventCardCreated:        ColumnBacklog,
		EventRunEnqueued:        ColumnReady,
		EventRunStarted:         ColumnDoing,
		EventRunSucceeded:       ColumnReview,
		EventPullRequestCreated: ColumnDone,
		EventRunFailed:          ColumnReady,
	}
	for ev, want := range tests {
		if got := ColumnFor(ev); got != want {
			t.Errorf("ColumnFor(%s) = %s, want %s", ev, got, want)
		}
	}
}

func TestBoardState_ActiveRun(t *testing.T) {
	board := &BoardState{Runs: []RunRecord{
		{ID: "r1", CardID: "c1", Status: RunSucceeded},
		{ID: "r2", CardID: "c1", Status: RunRunning},
		{ID: "r3", CardID: "c2", Status: RunFailed},
	}}

	run, ok := board.ActiveRun("c1")
	if !ok || run.ID != "r2" {
		t.Errorf("ActiveRun(c1) = %v, %v", run, ok)
	}
	if _, ok := board.ActiveRun("c2"); ok {
		t.Error("c2 has no active run")
	}

	if err := board.EnsureNoActiveRun("c1"); !errors.Is(err, ErrActiveRun) {
		t.Errorf("err = %v, want ErrActiveRun", err)
	}
	if err := board.EnsureNoActiveRun("c2"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBoardState_Stats(t *testing.T) {
	board := NewBoard("repo", migrateNow)
	board.Cards = append(board.Cards,
		BoardCard{ID: "a", Column: ColumnReady},
		BoardCard{ID: "b", Column: ColumnReady},
		BoardCard{ID: "c", Column: ColumnDone},
	)
	stats := board.Stats()
	if stats[ColumnReady] != 2 || stats[ColumnDone] != 1 || stats[ColumnBacklog] != 0 {
		t.Errorf("stats = %v", stats)
	}
	if len(stats) != len(Columns) {
		t.Errorf("stats should cover every column: %v", stats)
	}
}
