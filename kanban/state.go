package kanban

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	// ErrCardNotFound is returned when a card id is not on the board.
	ErrCardNotFound = errors.New("card not found")
	// ErrRunNotFound is returned when a run id is not on the board.
	ErrRunNotFound = errors.New("run not found")
	// ErrDuplicateRun is returned when appending a run whose id already exists.
	ErrDuplicateRun = errors.New("run already exists")
	// ErrInvalidColumn is returned when a card would leave the fixed column set.
	ErrInvalidColumn = errors.New("invalid column")
	// ErrAttemptsDecreased is returned when an update lowers a run's attempt count.
	ErrAttemptsDecreased = errors.New("run attempts cannot decrease")
)

// Store persists one board file per repository root.
// Every mutation loads, patches and saves the whole board while holding the
// store mutex, so writers in this process never lose each other's updates.
type Store struct {
	mu       sync.Mutex
	fileName string
	now      func() time.Time
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithFileName overrides the board file name created in each repository.
func WithFileName(name string) StoreOption {
	return func(s *Store) {
		if name != "" {
			s.fileName = name
		}
	}
}

// WithClock sets the time source used for timestamps and backup names.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for recovery warnings.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a board store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		fileName: DefaultFileName,
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the board file path for a repository root.
func (s *Store) Resolve(cwd string) string {
	return filepath.Join(cwd, s.fileName)
}

// Load reads the board for a repository. A missing file yields an empty
// board. A file that cannot be read or parsed is copied aside and replaced by
// an empty board in memory; Load never fails.
func (s *Store) Load(cwd string) *BoardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(cwd)
}

// Save writes the board atomically, stamping UpdatedAt.
func (s *Store) Save(cwd string, board *BoardState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cwd, board)
}

func (s *Store) load(cwd string) *BoardState {
	path := s.Resolve(cwd)
	now := s.timestamp()
	repo := repositoryName(cwd)

	data, err := os.ReadFile(path) // #nosec G304 -- path is derived from the repository root
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Board file unreadable, starting empty",
				"path", path,
				"backup", s.moveAside(path, now),
				"error", err,
			)
		}
		return NewBoard(repo, now)
	}

	board, err := Migrate(data, repo, now)
	if err != nil {
		backup := s.backup(path, data, now)
		s.logger.Warn("Board file corrupt, starting empty",
			"path", path,
			"backup", backup,
			"error", err,
		)
		return NewBoard(repo, now)
	}
	return board
}

func (s *Store) save(cwd string, board *BoardState) error {
	path := s.Resolve(cwd)

	board.Version = CurrentSchemaVersion
	board.Columns = append([]Column(nil), Columns...)
	board.UpdatedAt = s.timestamp()
	if board.Cards == nil {
		board.Cards = []BoardCard{}
	}
	if board.Runs == nil {
		board.Runs = []RunRecord{}
	}

	data, err := json.MarshalIndent(board, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize board: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create board directory: %w", err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write board file: %w", err)
	}

	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename board file: %w", err)
	}

	return nil
}

// backup copies unparseable bytes next to the board file. Failures are logged
// and otherwise ignored.
func (s *Store) backup(path string, data []byte, now time.Time) string {
	backupPath := path + ".corrupt-" + now.UTC().Format("20060102T150405Z")
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		s.logger.Warn("Failed to back up corrupt board", "path", backupPath, "error", err)
		return ""
	}
	return backupPath
}

// moveAside renames an unreadable board file out of the way so the next save
// cannot overwrite it. Failures are logged and otherwise ignored.
func (s *Store) moveAside(path string, now time.Time) string {
	backupPath := path + ".corrupt-" + now.UTC().Format("20060102T150405Z")
	if err := os.Rename(path, backupPath); err != nil {
		s.logger.Warn("Failed to move unreadable board aside", "path", path, "error", err)
		return ""
	}
	return backupPath
}

// mutate runs fn against a freshly loaded board and saves it if fn succeeds.
func (s *Store) mutate(cwd string, fn func(b *BoardState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board := s.load(cwd)
	if err := fn(board); err != nil {
		return err
	}
	return s.save(cwd, board)
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// --- Card mutations ---

// UpsertCard inserts a card or replaces the card with the same id.
// CreatedAt of an existing card is preserved.
func (s *Store) UpsertCard(cwd string, card BoardCard) (BoardCard, error) {
	if card.ID == "" {
		return BoardCard{}, errors.New("card id is required")
	}
	if card.Column == "" {
		card.Column = ColumnFor(EventCardCreated)
	}
	if !card.Column.Valid() {
		return BoardCard{}, fmt.Errorf("%w: %q", ErrInvalidColumn, card.Column)
	}

	var result BoardCard
	err := s.mutate(cwd, func(b *BoardState) error {
		now := s.timestamp()
		if existing, ok := b.Card(card.ID); ok {
			card.CreatedAt = existing.CreatedAt
			card.UpdatedAt = laterOf(now, existing.UpdatedAt)
			*existing = card
		} else {
			if card.CreatedAt.IsZero() {
				card.CreatedAt = now
			}
			card.UpdatedAt = laterOf(now, card.CreatedAt)
			b.Cards = append(b.Cards, card)
		}
		result = card
		return nil
	})
	if err != nil {
		return BoardCard{}, err
	}
	return result, nil
}

// UpdateCard applies patch to an existing card. The id cannot be changed and
// UpdatedAt never moves backwards.
func (s *Store) UpdateCard(cwd, id string, patch func(*BoardCard)) (BoardCard, error) {
	var result BoardCard
	err := s.mutate(cwd, func(b *BoardState) error {
		card, ok := b.Card(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrCardNotFound, id)
		}
		updated := *card
		patch(&updated)
		updated.ID = card.ID
		updated.CreatedAt = card.CreatedAt
		if !updated.Column.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidColumn, updated.Column)
		}
		updated.UpdatedAt = laterOf(s.timestamp(), card.UpdatedAt)
		*card = updated
		result = updated
		return nil
	})
	if err != nil {
		return BoardCard{}, err
	}
	return result, nil
}

// MoveCard sets a card's column.
func (s *Store) MoveCard(cwd, id string, col Column) (BoardCard, error) {
	return s.UpdateCard(cwd, id, func(c *BoardCard) {
		c.Column = col
	})
}

// DeleteCard removes a card. Runs that reference it are kept as history.
// It reports whether a card was removed.
func (s *Store) DeleteCard(cwd, id string) (bool, error) {
	removed := false
	err := s.mutate(cwd, func(b *BoardState) error {
		kept := b.Cards[:0]
		for _, c := range b.Cards {
			if c.ID == id {
				removed = true
				continue
			}
			kept = append(kept, c)
		}
		b.Cards = kept
		return nil
	})
	return removed, err
}

// Card returns a snapshot of one card.
func (s *Store) Card(cwd, id string) (BoardCard, bool) {
	board := s.Load(cwd)
	card, ok := board.Card(id)
	if !ok {
		return BoardCard{}, false
	}
	return *card, true
}

// --- Run mutations ---

// AppendRun records a new run.
func (s *Store) AppendRun(cwd string, run RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.Status == "" {
		run.Status = RunPending
	}
	if !run.DispatchMode.Valid() {
		run.DispatchMode = DispatchPasteOnly
	}
	return s.mutate(cwd, func(b *BoardState) error {
		if _, exists := b.Run(run.ID); exists {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
		}
		if run.StartedAt.IsZero() {
			run.StartedAt = s.timestamp()
		}
		b.Runs = append(b.Runs, run)
		return nil
	})
}

// UpdateRun applies patch to an existing run. The patch is rejected if it
// breaks the run status state machine or lowers the attempt count.
func (s *Store) UpdateRun(cwd, id string, patch func(*RunRecord)) (RunRecord, error) {
	var result RunRecord
	err := s.mutate(cwd, func(b *BoardState) error {
		run, ok := b.Run(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		updated := *run
		patch(&updated)
		updated.ID = run.ID
		updated.CardID = run.CardID
		if !run.Status.CanTransition(updated.Status) {
			return &TransitionError{RunID: id, From: run.Status, To: updated.Status}
		}
		if updated.Attempts < run.Attempts {
			return fmt.Errorf("%w: %d -> %d", ErrAttemptsDecreased, run.Attempts, updated.Attempts)
		}
		*run = updated
		result = updated
		return nil
	})
	if err != nil {
		return RunRecord{}, err
	}
	return result, nil
}

// Run returns a snapshot of one run.
func (s *Store) Run(cwd, id string) (RunRecord, bool) {
	board := s.Load(cwd)
	run, ok := board.Run(id)
	if !ok {
		return RunRecord{}, false
	}
	return *run, true
}

func repositoryName(cwd string) string {
	name := filepath.Base(filepath.Clean(cwd))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "repository"
	}
	return name
}

func laterOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
