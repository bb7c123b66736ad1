package recipes

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/madhatter5501/promptflow/internal/errs"
	"github.com/madhatter5501/promptflow/kanban"
)

// mockDispatcher records dispatched prompts.
type mockDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

type dispatchCall struct {
	CWD    string
	Prompt string
	Mode   kanban.DispatchMode
}

func (m *mockDispatcher) Dispatch(ctx context.Context, cwd, prompt string, mode kanban.DispatchMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, dispatchCall{CWD: cwd, Prompt: prompt, Mode: mode})
	return m.err
}

func (m *mockDispatcher) Calls() []dispatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dispatchCall{}, m.calls...)
}

func TestExecute_RendersAndDispatches(t *testing.T) {
	templates := StaticSource{
		KindTaskIntake: "Do {{JIRA_KEY}} in {{REPO_NAME}} {{UNKNOWN}}",
	}
	dispatcher := &mockDispatcher{}
	exec := NewExecutor(templates, dispatcher, nil)

	res, err := exec.Execute(context.Background(), Request{
		Kind:            KindTaskIntake,
		CWD:             "/src/app",
		Input:           TaskIntake{Issue: JiraIssue{Key: "ABC-1"}},
		DispatchToAgent: true,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Prompt != "Do ABC-1 in app {{UNKNOWN}}" {
		t.Errorf("prompt = %q", res.Prompt)
	}
	if res.DispatchMode != kanban.DispatchPasteOnly {
		t.Errorf("mode = %s, want recipe default pasteOnly", res.DispatchMode)
	}
	if !reflect.DeepEqual(res.LintWarnings, []string{"UNKNOWN"}) {
		t.Errorf("warnings = %v", res.LintWarnings)
	}

	calls := dispatcher.Calls()
	if len(calls) != 1 || calls[0].Prompt != res.Prompt || calls[0].Mode != kanban.DispatchPasteOnly || calls[0].CWD != "/src/app" {
		t.Errorf("unexpected dispatch calls: %+v", calls)
	}
}

func TestExecute_NoDispatchUnlessAsked(t *testing.T) {
	dispatcher := &mockDispatcher{}
	exec := NewExecutor(StaticSource{KindTestCoverage: "cover {{REPO_NAME}}"}, dispatcher, nil)

	res, err := exec.Execute(context.Background(), Request{
		Kind:         KindTestCoverage,
		CWD:          "/src/app",
		DispatchMode: kanban.DispatchPasteOnly,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.DispatchMode != kanban.DispatchPasteOnly {
		t.Errorf("explicit mode not honoured: %s", res.DispatchMode)
	}
	if res.LintWarnings == nil || len(res.LintWarnings) != 0 {
		t.Errorf("warnings = %#v, want empty slice", res.LintWarnings)
	}
	if len(dispatcher.Calls()) != 0 {
		t.Error("dispatcher should not be called")
	}
}

func TestExecute_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name      string
		templates StaticSource
		req       Request
		dispatch  Dispatcher
	}{
		{
			name:      "missing template",
			templates: StaticSource{},
			req:       Request{Kind: KindTestCoverage},
		},
		{
			name:      "blank template",
			templates: StaticSource{KindTestCoverage: "  \n\t"},
			req:       Request{Kind: KindTestCoverage},
		},
		{
			name:      "pull request recipe",
			templates: StaticSource{KindPRCreateRemote: "x"},
			req:       Request{Kind: KindPRCreateRemote, Input: PRCreate{}},
		},
		{
			name:      "wrong input",
			templates: StaticSource{KindTaskIntake: "x"},
			req:       Request{Kind: KindTaskIntake, Input: TestCoverage{}},
		},
		{
			name:      "dispatch not configured",
			templates: StaticSource{KindTestCoverage: "x"},
			req:       Request{Kind: KindTestCoverage, DispatchToAgent: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := NewExecutor(tt.templates, tt.dispatch, nil)
			_, err := exec.Execute(context.Background(), tt.req)
			if !errs.IsConfig(err) {
				t.Errorf("err = %v, want config error", err)
			}
		})
	}
}

func TestExecute_DispatchFailureIsRetryable(t *testing.T) {
	dispatcher := &mockDispatcher{err: errors.New("agent offline")}
	exec := NewExecutor(StaticSource{KindTestCoverage: "x"}, dispatcher, nil)

	_, err := exec.Execute(context.Background(), Request{Kind: KindTestCoverage, DispatchToAgent: true})
	if err == nil || !errs.Retryable(err) {
		t.Errorf("err = %v, want retryable error", err)
	}
}
