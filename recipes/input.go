package recipes

// Input is the typed build input for one recipe kind.
// The set of implementations is closed: only this package can add one.
type Input interface {
	Kind() Kind
	isInput()
}

// JiraIssue is the subset of a JIRA issue that intake recipes render.
type JiraIssue struct {
	Key                string   `json:"key"`
	Summary            string   `json:"summary"`
	Description        string   `json:"description"`
	IssueType          string   `json:"issueType"`
	Priority           string   `json:"priority"`
	Status             string   `json:"status"`
	Labels             []string `json:"labels,omitempty"`
	AcceptanceCriteria string   `json:"acceptanceCriteria,omitempty"`
	StepsToReproduce   string   `json:"stepsToReproduce,omitempty"`
	Reporter           string   `json:"reporter,omitempty"`
	URL                string   `json:"url,omitempty"`
}

// SecurityScan describes the change a security review should inspect.
type SecurityScan struct {
	Target       string   `json:"target"`
	Branch       string   `json:"branch"`
	BaseBranch   string   `json:"baseBranch"`
	ChangedFiles []string `json:"changedFiles,omitempty"`
	Diff         string   `json:"diff,omitempty"`
	Focus        string   `json:"focus,omitempty"`
}

// PRContext describes the branch a pull-request description is written for.
type PRContext struct {
	SourceBranch    string   `json:"sourceBranch"`
	TargetBranch    string   `json:"targetBranch"`
	Commits         []string `json:"commits,omitempty"`
	DiffStat        string   `json:"diffStat,omitempty"`
	JiraKey         string   `json:"jiraKey,omitempty"`
	DescriptionFile string   `json:"descriptionFile"`
}

// TaskIntake turns a JIRA story or task into an implementation prompt.
type TaskIntake struct {
	Issue JiraIssue `json:"issue"`
}

// BugIntake turns a JIRA bug into a reproduce-and-fix prompt.
type BugIntake struct {
	Issue JiraIssue `json:"issue"`
}

// SecurityReview asks the agent to review a change for vulnerabilities.
type SecurityReview struct {
	Scan SecurityScan `json:"scan"`
}

// TestCoverage asks the agent to raise test coverage. It takes no input.
type TestCoverage struct{}

// PRDescription asks the agent to write a pull-request description file.
type PRDescription struct {
	PR PRContext `json:"pr"`
}

// PRCreate opens a remote pull request from a description file.
type PRCreate struct {
	DescriptionFile   string `json:"descriptionFile"`
	SourceBranch      string `json:"sourceBranch,omitempty"`
	TargetBranch      string `json:"targetBranch,omitempty"`
	Title             string `json:"title,omitempty"`
	OpenInBrowser     bool   `json:"openInBrowser,omitempty"`
	CloseSourceBranch bool   `json:"closeSourceBranch,omitempty"`
}

func (TaskIntake) Kind() Kind     { return KindTaskIntake }
func (BugIntake) Kind() Kind      { return KindBugIntake }
func (SecurityReview) Kind() Kind { return KindSecurityReview }
func (TestCoverage) Kind() Kind   { return KindTestCoverage }
func (PRDescription) Kind() Kind  { return KindPRDescription }
func (PRCreate) Kind() Kind       { return KindPRCreateRemote }

func (TaskIntake) isInput()     {}
func (BugIntake) isInput()      {}
func (SecurityReview) isInput() {}
func (TestCoverage) isInput()   {}
func (PRDescription) isInput()  {}
func (PRCreate) isInput()       {}
