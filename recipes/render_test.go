package recipes

import (
	"reflect"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{
			name:     "substitutes known names",
			template: "Fix {{JIRA_KEY}}: {{JIRA_SUMMARY}}",
			vars:     map[string]string{"JIRA_KEY": "ABC-1", "JIRA_SUMMARY": "crash"},
			want:     "Fix ABC-1: crash",
		},
		{
			name:     "leaves unknown names untouched",
			template: "{{JIRA_KEY}} {{MYSTERY}}",
			vars:     map[string]string{"JIRA_KEY": "ABC-1"},
			want:     "ABC-1 {{MYSTERY}}",
		},
		{
			name:     "tolerates inner whitespace",
			template: "{{ REPO_NAME }}",
			vars:     map[string]string{"REPO_NAME": "promptflow"},
			want:     "promptflow",
		},
		{
			name:     "inserts values literally",
			template: "{{A}}",
			vars:     map[string]string{"A": "{{B}} $1 \\n"},
			want:     "{{B}} $1 \\n",
		},
		{
			name:     "empty value",
			template: "[{{A}}]",
			vars:     map[string]string{"A": ""},
			want:     "[]",
		},
		{
			name:     "repeated token",
			template: "{{A}}-{{A}}",
			vars:     map[string]string{"A": "x"},
			want:     "x-x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.template, tt.vars); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLint(t *testing.T) {
	template := "{{JIRA_KEY}} {{ZETA}} {{ALPHA}} {{ZETA}} {{REPO_NAME}}"
	got := Lint(template, []string{"JIRA_KEY", "REPO_NAME"})
	want := []string{"ALPHA", "ZETA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Lint() = %v, want %v", got, want)
	}

	if got := Lint("no tokens here", nil); len(got) != 0 {
		t.Errorf("Lint() on plain text = %v", got)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{B}} {{ A }} {{B}} {not} {{}}")
	want := []string{"A", "B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}
}
