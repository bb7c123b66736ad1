// Package recipes turns a unit of work into a rendered prompt.
// Each recipe kind pairs a template with a typed input, a context builder,
// the placeholders its template may use, and a default dispatch mode.
package recipes

import (
	"strings"

	"github.com/madhatter5501/promptflow/internal/errs"
)

// Kind identifies a recipe. The values are persisted on cards and runs.
type Kind string

const (
	KindTaskIntake     Kind = "task-intake"
	KindBugIntake      Kind = "bug-intake"
	KindSecurityReview Kind = "security-review"
	KindTestCoverage   Kind = "test-coverage-enforcement"
	KindPRDescription  Kind = "pr-description"
	KindPRCreateRemote Kind = "pr-create-remote"
)

// Kinds lists every recipe kind in registry order.
var Kinds = []Kind{
	KindTaskIntake,
	KindBugIntake,
	KindSecurityReview,
	KindTestCoverage,
	KindPRDescription,
	KindPRCreateRemote,
}

// ParseKind returns the kind named by s.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errs.Config("unknown recipe %q", s)
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// IsPullRequest reports whether the kind creates a remote pull request
// instead of rendering a prompt.
func (k Kind) IsPullRequest() bool {
	return k == KindPRCreateRemote
}

// mismatch reports an input that was built for a different recipe.
func mismatch(want Kind, in Input) error {
	if in == nil {
		return errs.Config("recipe %s requires an input", want)
	}
	return errs.Config("recipe %s cannot use %s input", want, in.Kind())
}
