package recipes

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/madhatter5501/promptflow/internal/errs"
	"github.com/madhatter5501/promptflow/kanban"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Recipe describes how one kind is rendered.
type Recipe struct {
	Kind         Kind
	Title        string
	Placeholders []string
	DefaultMode  kanban.DispatchMode
	// Prompt is false for recipes that do not render a template.
	Prompt bool
}

var titleCaser = cases.Title(language.English)

// Label returns the display name of the recipe.
func (r Recipe) Label() string {
	if r.Title != "" {
		return r.Title
	}
	return titleCaser.String(strings.ReplaceAll(string(r.Kind), "-", " "))
}

var jiraPlaceholders = []string{
	"JIRA_KEY",
	"JIRA_SUMMARY",
	"JIRA_DESCRIPTION",
	"JIRA_TYPE",
	"JIRA_PRIORITY",
	"JIRA_STATUS",
	"JIRA_LABELS",
	"JIRA_ACCEPTANCE_CRITERIA",
	"JIRA_URL",
	"REPO_NAME",
}

// Lookup returns the recipe for a kind.
func Lookup(kind Kind) (Recipe, error) {
	switch kind {
	case KindTaskIntake:
		return Recipe{
			Kind:         kind,
			Placeholders: jiraPlaceholders,
			DefaultMode:  kanban.DispatchPasteOnly,
			Prompt:       true,
		}, nil
	case KindBugIntake:
		return Recipe{
			Kind:         kind,
			Placeholders: append(append([]string(nil), jiraPlaceholders...), "JIRA_STEPS_TO_REPRODUCE", "JIRA_REPORTER"),
			DefaultMode:  kanban.DispatchPasteOnly,
			Prompt:       true,
		}, nil
	case KindSecurityReview:
		return Recipe{
			Kind: kind,
			Placeholders: []string{
				"SCAN_TARGET",
				"SCAN_BRANCH",
				"SCAN_BASE_BRANCH",
				"SCAN_CHANGED_FILES",
				"SCAN_DIFF",
				"SCAN_FOCUS",
				"REPO_NAME",
			},
			DefaultMode: kanban.DispatchAutoSubmit,
			Prompt:      true,
		}, nil
	case KindTestCoverage:
		return Recipe{
			Kind:         kind,
			Placeholders: []string{"REPO_NAME", "REPO_PATH"},
			DefaultMode:  kanban.DispatchAutoSubmit,
			Prompt:       true,
		}, nil
	case KindPRDescription:
		return Recipe{
			Kind:  kind,
			Title: "PR Description",
			Placeholders: []string{
				"PR_SOURCE_BRANCH",
				"PR_TARGET_BRANCH",
				"PR_COMMITS",
				"PR_DIFF_STAT",
				"PR_JIRA_KEY",
				"PR_DESCRIPTION_FILE",
				"REPO_NAME",
			},
			DefaultMode: kanban.DispatchAutoSubmit,
			Prompt:      true,
		}, nil
	case KindPRCreateRemote:
		return Recipe{
			Kind:        kind,
			Title:       "Create Remote PR",
			DefaultMode: kanban.DispatchPasteOnly,
		}, nil
	default:
		_, err := ParseKind(string(kind))
		return Recipe{}, err
	}
}

// All returns every recipe in registry order.
func All() []Recipe {
	result := make([]Recipe, 0, len(Kinds))
	for _, k := range Kinds {
		r, _ := Lookup(k)
		result = append(result, r)
	}
	return result
}

// BuildContext turns a typed input into the flat placeholder map.
// An input built for another recipe is a configuration error.
func (r Recipe) BuildContext(ctx context.Context, cwd string, in Input) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in == nil && r.Kind == KindTestCoverage {
		in = TestCoverage{}
	}

	vars := map[string]string{
		"REPO_NAME": filepath.Base(filepath.Clean(cwd)),
	}

	switch r.Kind {
	case KindTaskIntake:
		v, ok := in.(TaskIntake)
		if !ok {
			return nil, mismatch(r.Kind, in)
		}
		addIssue(vars, v.Issue)
	case KindBugIntake:
		v, ok := in.(BugIntake)
		if !ok {
			return nil, mismatch(r.Kind, in)
		}
		addIssue(vars, v.Issue)
		vars["JIRA_STEPS_TO_REPRODUCE"] = v.Issue.StepsToReproduce
		vars["JIRA_REPORTER"] = v.Issue.Reporter
	case KindSecurityReview:
		v, ok := in.(SecurityReview)
		if !ok {
			return nil, mismatch(r.Kind, in)
		}
		v.Scan = fillScan(ctx, cwd, v.Scan)
		vars["SCAN_TARGET"] = v.Scan.Target
		vars["SCAN_BRANCH"] = v.Scan.Branch
		vars["SCAN_BASE_BRANCH"] = v.Scan.BaseBranch
		vars["SCAN_CHANGED_FILES"] = bulletList(v.Scan.ChangedFiles)
		vars["SCAN_DIFF"] = v.Scan.Diff
		vars["SCAN_FOCUS"] = v.Scan.Focus
	case KindTestCoverage:
		if _, ok := in.(TestCoverage); !ok {
			return nil, mismatch(r.Kind, in)
		}
		vars["REPO_PATH"] = cwd
	case KindPRDescription:
		v, ok := in.(PRDescription)
		if !ok {
			return nil, mismatch(r.Kind, in)
		}
		v.PR = fillPRContext(ctx, cwd, v.PR)
		vars["PR_SOURCE_BRANCH"] = v.PR.SourceBranch
		vars["PR_TARGET_BRANCH"] = v.PR.TargetBranch
		vars["PR_COMMITS"] = bulletList(v.PR.Commits)
		vars["PR_DIFF_STAT"] = v.PR.DiffStat
		vars["PR_JIRA_KEY"] = v.PR.JiraKey
		vars["PR_DESCRIPTION_FILE"] = v.PR.DescriptionFile
	case KindPRCreateRemote:
		return nil, errs.Config("recipe %s does not render a prompt", r.Kind)
	}

	return vars, nil
}

func addIssue(vars map[string]string, issue JiraIssue) {
	vars["JIRA_KEY"] = issue.Key
	vars["JIRA_SUMMARY"] = issue.Summary
	vars["JIRA_DESCRIPTION"] = issue.Description
	vars["JIRA_TYPE"] = issue.IssueType
	vars["JIRA_PRIORITY"] = issue.Priority
	vars["JIRA_STATUS"] = issue.Status
	vars["JIRA_LABELS"] = strings.Join(issue.Labels, ", ")
	vars["JIRA_ACCEPTANCE_CRITERIA"] = issue.AcceptanceCriteria
	vars["JIRA_URL"] = issue.URL
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}
