package kanban

// BoardStore is the interface for board persistence.
// Store implements it; tests substitute in-memory fakes.
type BoardStore interface {
	// Lifecycle
	Resolve(cwd string) string
	Load(cwd string) *BoardState
	Save(cwd string, board *BoardState) error

	// Card mutations
	UpsertCard(cwd string, card BoardCard) (BoardCard, error)
	UpdateCard(cwd, id string, patch func(*BoardCard)) (BoardCard, error)
	MoveCard(cwd, id string, col Column) (BoardCard, error)
	DeleteCard(cwd, id string) (bool, error)

	// Run mutations
	AppendRun(cwd string, run RunRecord) error
	UpdateRun(cwd, id string, patch func(*RunRecord)) (RunRecord, error)

	// Snapshots
	Card(cwd, id string) (BoardCard, bool)
	Run(cwd, id string) (RunRecord, bool)
}

var _ BoardStore = (*Store)(nil)
