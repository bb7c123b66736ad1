// Package promptflow runs recipe jobs for board cards, one at a time, with
// bounded retries and per-attempt timeouts.
package promptflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/madhatter5501/promptflow/agents"
	"github.com/madhatter5501/promptflow/internal/errs"
	"github.com/madhatter5501/promptflow/internal/telemetry"
	"github.com/madhatter5501/promptflow/kanban"
	"github.com/madhatter5501/promptflow/pullrequest"
	"github.com/madhatter5501/promptflow/recipes"

	"github.com/google/uuid"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrTimedOut is wrapped by attempts that exceed the job timeout.
	ErrTimedOut = errors.New("timed out")
)

// InterruptedError is recorded on runs that a previous process left unfinished.
const InterruptedError = "interrupted"

// Config holds queue settings.
type Config struct {
	MaxRetries int           `yaml:"maxRetries" json:"maxRetries"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		Timeout:    5 * time.Minute,
	}
}

// Job is one request to run a card against a recipe.
type Job struct {
	CardID string
	CWD    string
	Kind   recipes.Kind
	Input  recipes.Input
	// DispatchMode overrides the recipe default when valid.
	DispatchMode kanban.DispatchMode
	// RenderOnly skips handing the prompt to the agent.
	RenderOnly bool
	// Timeout overrides the queue timeout when positive.
	Timeout time.Duration
}

// RecipeExecutor renders and dispatches recipes.
type RecipeExecutor interface {
	Execute(ctx context.Context, req recipes.Request) (*recipes.Result, error)
}

// PullRequestCreator opens remote pull requests.
type PullRequestCreator interface {
	Create(ctx context.Context, opts pullrequest.Options) (*pullrequest.Result, error)
}

type queuedJob struct {
	Job
	runID string
	mode  kanban.DispatchMode
}

type outcome struct {
	hash    string
	summary string
	pr      *pullrequest.Result
}

// Queue executes jobs in FIFO order, at most one at a time.
type Queue struct {
	store    kanban.BoardStore
	executor RecipeExecutor
	creator  PullRequestCreator
	config   Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	enqueueMu sync.Mutex // guards the active-run check and keeps run order on disk equal to FIFO order

	mu     sync.Mutex
	jobs   []*queuedJob
	active bool
	idle   chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithConfig sets retry and timeout policy.
func WithConfig(cfg Config) Option {
	return func(q *Queue) {
		if cfg.MaxRetries < 0 {
			cfg.MaxRetries = 0
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = DefaultConfig().Timeout
		}
		q.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a queue. creator may be nil when pull requests are not
// configured; pr-create-remote jobs then fail with a configuration error.
func NewQueue(store kanban.BoardStore, executor RecipeExecutor, creator PullRequestCreator, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:    store,
		executor: executor,
		creator:  creator,
		config:   DefaultConfig(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue records a pending run for job and schedules it. It returns the run
// id without waiting for execution; the outcome is recorded on the run.
// A card with a pending or running run is refused with kanban.ErrActiveRun;
// the check and the append happen under one lock.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	if q.ctx.Err() != nil {
		return "", ErrQueueClosed
	}

	recipe, err := recipes.Lookup(job.Kind)
	if err != nil {
		return "", err
	}
	if job.Input != nil && job.Input.Kind() != job.Kind {
		return "", errs.Config("input for %s cannot be used with recipe %s", job.Input.Kind(), job.Kind)
	}
	if _, ok := q.store.Card(job.CWD, job.CardID); !ok {
		return "", fmt.Errorf("%w: %s", kanban.ErrCardNotFound, job.CardID)
	}

	mode := job.DispatchMode
	if !mode.Valid() {
		mode = recipe.DefaultMode
	}

	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	if err := q.store.Load(job.CWD).EnsureNoActiveRun(job.CardID); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	run := kanban.RunRecord{
		ID:           runID,
		CardID:       job.CardID,
		RecipeID:     string(job.Kind),
		Status:       kanban.RunPending,
		DispatchMode: mode,
		StartedAt:    q.now().UTC(),
	}
	if err := q.store.AppendRun(job.CWD, run); err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	if _, err := q.store.UpdateCard(job.CWD, job.CardID, func(c *kanban.BoardCard) {
		c.Column = kanban.ColumnFor(kanban.EventRunEnqueued)
		c.LastRunID = runID
	}); err != nil {
		return "", fmt.Errorf("failed to update card: %w", err)
	}

	q.metrics.RecordEnqueued(ctx, string(job.Kind))
	q.logger.Info("Run enqueued", "run", runID, "card", job.CardID, "recipe", job.Kind, "mode", mode)

	q.mu.Lock()
	q.jobs = append(q.jobs, &queuedJob{Job: job, runID: runID, mode: mode})
	q.mu.Unlock()
	q.kick()

	return runID, nil
}

// Len returns the number of jobs waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// WaitIdle blocks until the worker has drained the queue.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	if !q.active {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker after cancelling the current attempt. Jobs that
// have not started stay pending on the board.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
}

// RecoverStale fails runs left active by a previous process and moves their
// cards back to Ready. Only the process that owns the repository's queue may
// call it, before enqueueing; a live owner's runs would be failed too.
func (q *Queue) RecoverStale(ctx context.Context, cwd string) (int, error) {
	board := q.store.Load(cwd)
	recovered := 0
	for _, run := range board.Runs {
		if !run.Status.Active() {
			continue
		}
		// Pending runs never started; cancelled is their only terminal state.
		next := kanban.RunFailed
		if run.Status == kanban.RunPending {
			next = kanban.RunCancelled
		}
		ended := q.now().UTC()
		if _, err := q.store.UpdateRun(cwd, run.ID, func(r *kanban.RunRecord) {
			r.Status = next
			r.EndedAt = &ended
			r.Error = InterruptedError
		}); err != nil {
			return recovered, fmt.Errorf("failed to recover run %s: %w", run.ID, err)
		}
		q.moveCard(cwd, run.CardID, run.ID, kanban.ColumnFor(kanban.EventRunFailed), nil)
		q.metrics.RecordFinished(ctx, run.RecipeID, string(next), ended.Sub(run.StartedAt))
		recovered++
	}
	if recovered > 0 {
		q.logger.Warn("Recovered interrupted runs", "count", recovered, "dir", cwd)
	}
	return recovered, nil
}

// kick starts the drain loop unless it is already running.
func (q *Queue) kick() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active {
		return
	}
	q.active = true
	q.idle = make(chan struct{})
	q.wg.Add(1)
	go q.drain()
}

func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 || q.ctx.Err() != nil {
			q.active = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		q.process(job)
	}
}

func (q *Queue) process(job *queuedJob) {
	logger := q.logger.With("run", job.runID, "card", job.CardID, "recipe", job.Kind)

	started := q.now().UTC()
	if _, err := q.store.UpdateRun(job.CWD, job.runID, func(r *kanban.RunRecord) {
		r.Status = kanban.RunRunning
		r.StartedAt = started
	}); err != nil {
		logger.Error("Failed to start run", "error", err)
		return
	}
	q.moveCard(job.CWD, job.CardID, job.runID, kanban.ColumnFor(kanban.EventRunStarted), nil)
	logger.Info("Run started")

	maxAttempts := q.config.MaxRetries + 1
	if job.Kind.IsPullRequest() {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		q.metrics.RecordAttempt(q.ctx, string(job.Kind))

		out, err := q.attempt(job)
		if err == nil {
			q.succeed(job, attempt, started, out, logger)
			return
		}

		lastErr = err
		logger.Warn("Attempt failed", "attempt", attempt, "of", maxAttempts, "error", err)
		if _, uerr := q.store.UpdateRun(job.CWD, job.runID, func(r *kanban.RunRecord) {
			r.Attempts = attempt
			r.Error = err.Error()
		}); uerr != nil {
			logger.Error("Failed to record attempt", "error", uerr)
		}

		if !errs.Retryable(err) || q.ctx.Err() != nil {
			break
		}
	}

	q.fail(job, started, lastErr, logger)
}

func (q *Queue) attempt(job *queuedJob) (outcome, error) {
	ctx := agents.WithRun(q.ctx, job.runID, job.CardID)
	if job.Kind.IsPullRequest() {
		return q.createPullRequest(ctx, job)
	}
	return q.executeRecipe(ctx, job)
}

// executeRecipe runs the executor under the job timeout. The executor sees
// the cancellation; the attempt returns at the deadline either way.
func (q *Queue) executeRecipe(ctx context.Context, job *queuedJob) (outcome, error) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = q.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type response struct {
		result *recipes.Result
		err    error
	}
	done := make(chan response, 1)
	go func() {
		res, err := q.executor.Execute(ctx, recipes.Request{
			Kind:            job.Kind,
			CWD:             job.CWD,
			Input:           job.Input,
			DispatchMode:    job.mode,
			DispatchToAgent: !job.RenderOnly,
		})
		done <- response{result: res, err: err}
	}()

	timedOut := func() error {
		return fmt.Errorf("%w after %dms", ErrTimedOut, timeout.Milliseconds())
	}

	select {
	case resp := <-done:
		if resp.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return outcome{}, timedOut()
			}
			return outcome{}, resp.err
		}
		return outcome{
			hash:    agents.HashText(resp.result.Prompt),
			summary: renderSummary(resp.result),
		}, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return outcome{}, timedOut()
		}
		return outcome{}, ctx.Err()
	}
}

func (q *Queue) createPullRequest(ctx context.Context, job *queuedJob) (outcome, error) {
	if q.creator == nil {
		return outcome{}, errs.Config("pull request creation is not configured")
	}

	var in recipes.PRCreate
	switch v := job.Input.(type) {
	case recipes.PRCreate:
		in = v
	case *recipes.PRCreate:
		if v != nil {
			in = *v
		}
	case nil:
	default:
		return outcome{}, errs.Config("input for %s cannot be used with recipe %s", v.Kind(), job.Kind)
	}

	res, err := q.creator.Create(ctx, pullrequest.Options{
		CWD:               job.CWD,
		DescriptionFile:   in.DescriptionFile,
		SourceBranch:      in.SourceBranch,
		TargetBranch:      in.TargetBranch,
		Title:             in.Title,
		OpenInBrowser:     in.OpenInBrowser,
		CloseSourceBranch: in.CloseSourceBranch,
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		hash:    agents.HashText(res.URL),
		summary: fmt.Sprintf("created PR #%s", res.ID),
		pr:      res,
	}, nil
}

func (q *Queue) succeed(job *queuedJob, attempt int, started time.Time, out outcome, logger *slog.Logger) {
	ended := q.now().UTC()
	if _, err := q.store.UpdateRun(job.CWD, job.runID, func(r *kanban.RunRecord) {
		r.Status = kanban.RunSucceeded
		r.Attempts = attempt
		r.EndedAt = &ended
		r.Error = ""
		r.OutputSummary = out.summary
		r.PromptHash = out.hash
	}); err != nil {
		logger.Error("Failed to record success", "error", err)
	}

	if out.pr != nil {
		pr := out.pr
		q.moveCard(job.CWD, job.CardID, job.runID, kanban.ColumnFor(kanban.EventPullRequestCreated), func(c *kanban.BoardCard) {
			c.PRURL = pr.URL
			c.PRID = pr.ID
			c.SourceBranch = pr.SourceBranch
			c.TargetBranch = pr.TargetBranch
		})
	} else {
		q.moveCard(job.CWD, job.CardID, job.runID, kanban.ColumnFor(kanban.EventRunSucceeded), nil)
	}

	q.metrics.RecordFinished(q.ctx, string(job.Kind), string(kanban.RunSucceeded), ended.Sub(started))
	logger.Info("Run succeeded", "attempts", attempt, "summary", out.summary)
}

func (q *Queue) fail(job *queuedJob, started time.Time, cause error, logger *slog.Logger) {
	ended := q.now().UTC()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := q.store.UpdateRun(job.CWD, job.runID, func(r *kanban.RunRecord) {
		r.Status = kanban.RunFailed
		r.EndedAt = &ended
		r.Error = msg
	}); err != nil {
		logger.Error("Failed to record failure", "error", err)
	}
	q.moveCard(job.CWD, job.CardID, job.runID, kanban.ColumnFor(kanban.EventRunFailed), nil)

	q.metrics.RecordFinished(q.ctx, string(job.Kind), string(kanban.RunFailed), ended.Sub(started))
	logger.Error("Run failed", "error", cause)
}

// moveCard moves the card unless it was deleted or has moved on to a newer run.
func (q *Queue) moveCard(cwd, cardID, runID string, col kanban.Column, patch func(*kanban.BoardCard)) {
	card, ok := q.store.Card(cwd, cardID)
	if !ok || (card.LastRunID != "" && card.LastRunID != runID) {
		return
	}
	if _, err := q.store.UpdateCard(cwd, cardID, func(c *kanban.BoardCard) {
		c.Column = col
		if patch != nil {
			patch(c)
		}
	}); err != nil && !errors.Is(err, kanban.ErrCardNotFound) {
		q.logger.Error("Failed to move card", "card", cardID, "column", col, "error", err)
	}
}

func renderSummary(res *recipes.Result) string {
	warnings := "lint warnings"
	if len(res.LintWarnings) == 1 {
		warnings = "lint warning"
	}
	return fmt.Sprintf("rendered %d chars, %d %s", len(res.Prompt), len(res.LintWarnings), warnings)
}
