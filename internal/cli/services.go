package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/madhatter5501/promptflow"
	"github.com/madhatter5501/promptflow/agents"
	"github.com/madhatter5501/promptflow/internal/db"
	"github.com/madhatter5501/promptflow/internal/telemetry"
	"github.com/madhatter5501/promptflow/kanban"
	"github.com/madhatter5501/promptflow/pullrequest"
	"github.com/madhatter5501/promptflow/recipes"
)

// services holds the collaborators shared by run and serve.
type services struct {
	db         *db.DB
	store      *db.Store
	board      *kanban.Store
	dispatcher *agents.Dispatcher
	queue      *promptflow.Queue
}

// openStore opens the credential and audit database.
func (a *app) openStore() (*db.DB, *db.Store, error) {
	database, err := db.Open(a.cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return database, db.NewStore(database), nil
}

// newCreator builds the pull request creator. Prompts for an app password
// are read from in and written to out.
func (a *app) newCreator(secrets pullrequest.CredentialStore, in io.Reader, out io.Writer) *pullrequest.Creator {
	client := pullrequest.NewBitbucketClient(pullrequest.WithBaseURL(a.cfg.PullRequest.APIBaseURL))
	return pullrequest.NewCreator(a.cfg.PullRequest, client, secrets,
		pullrequest.WithPrompter(&linePrompter{in: in, out: out}),
		pullrequest.WithLogger(a.logger),
	)
}

// newServices wires the queue with audited dispatch and the PR creator.
// The queue writes through the app's board store. The caller must call close.
func (a *app) newServices(in io.Reader, out io.Writer) (*services, error) {
	database, store, err := a.openStore()
	if err != nil {
		return nil, err
	}

	dispatcher := agents.NewDispatcher(a.cfg.Agent, a.logger)
	audited := agents.NewAuditingDispatcher(dispatcher, store, a.logger)
	executor := recipes.NewExecutor(recipes.NewDirSource(a.cfg.Recipes.TemplatesDir), audited, a.logger)
	creator := a.newCreator(store, in, out)

	metrics, err := telemetry.NewGlobal()
	if err != nil {
		a.logger.Warn("Failed to create metrics", "error", err)
	}

	queue := promptflow.NewQueue(a.board(), executor, creator,
		promptflow.WithConfig(a.cfg.Queue),
		promptflow.WithLogger(a.logger),
		promptflow.WithMetrics(metrics),
	)

	return &services{
		db:         database,
		store:      store,
		board:      a.board(),
		dispatcher: dispatcher,
		queue:      queue,
	}, nil
}

// recoverStale settles runs a dead process left active. Only one process
// may own a repository's queue when this runs.
func (s *services) recoverStale(ctx context.Context, repo string) error {
	_, err := s.queue.RecoverStale(ctx, repo)
	return err
}

// warnEnvironment logs dispatch problems without failing the command.
func (s *services) warnEnvironment(logger *slog.Logger) {
	for _, problem := range s.dispatcher.ValidateEnvironment() {
		logger.Warn("Dispatch environment problem", "problem", problem)
	}
}

func (s *services) close() {
	s.queue.Close()
	_ = s.db.Close()
}

// linePrompter asks for the Bitbucket app password on the terminal.
type linePrompter struct {
	in  io.Reader
	out io.Writer
}

func (p *linePrompter) PromptAppPassword(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, _ = fmt.Fprint(p.out, "Bitbucket app password: ")
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read app password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
