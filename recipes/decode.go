package recipes

import (
	"bytes"

	"github.com/bytedance/sonic"

	"github.com/madhatter5501/promptflow/internal/errs"
)

// DecodeInput parses JSON into the input type of kind. Empty data yields the
// zero input, which is valid only for kinds whose context builder accepts it.
func DecodeInput(kind Kind, data []byte) (Input, error) {
	var in Input
	switch kind {
	case KindTaskIntake:
		in = &TaskIntake{}
	case KindBugIntake:
		in = &BugIntake{}
	case KindSecurityReview:
		in = &SecurityReview{}
	case KindTestCoverage:
		in = &TestCoverage{}
	case KindPRDescription:
		in = &PRDescription{}
	case KindPRCreateRemote:
		in = &PRCreate{}
	default:
		return nil, errs.Config("unknown recipe %q", kind)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := sonic.ConfigStd.Unmarshal(data, in); err != nil {
			return nil, errs.Config("invalid input for %s: %v", kind, err)
		}
	}
	return deref(in), nil
}

// deref returns the value form so callers can type-switch on plain structs.
func deref(in Input) Input {
	switch v := in.(type) {
	case *TaskIntake:
		return *v
	case *BugIntake:
		return *v
	case *SecurityReview:
		return *v
	case *TestCoverage:
		return *v
	case *PRDescription:
		return *v
	case *PRCreate:
		return *v
	}
	return in
}
