package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/madhatter5501/promptflow"
	"github.com/madhatter5501/promptflow/internal/errs"
	"github.com/madhatter5501/promptflow/kanban"
	"github.com/madhatter5501/promptflow/recipes"
)

const maxBodySize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, cwd string, board kanban.BoardStore, queue Enqueuer, logger *slog.Logger) {
	e.GET("/healthz", healthz())
	e.GET("/api/board", getBoard(cwd, board))
	e.POST("/api/cards", postCard(cwd, board))
	e.PATCH("/api/cards/:id", patchCard(cwd, board))
	e.DELETE("/api/cards/:id", deleteCard(cwd, board))
	e.POST("/api/cards/:id/runs", postRun(cwd, board, queue, logger))
	e.GET("/api/cards/:id/runs", getCardRuns(cwd, board))
	e.GET("/api/runs/:id", getRun(cwd, board))
}

type errorResponse struct {
	Error string `json:"error"`
}

type boardResponse struct {
	Board *kanban.BoardState    `json:"board"`
	Stats map[kanban.Column]int `json:"stats"`
}

type createCardRequest struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	RecipeID string `json:"recipeId"`
	AgentID  string `json:"agentId"`
	JiraKey  string `json:"jiraKey"`
}

type patchCardRequest struct {
	Title    *string `json:"title"`
	RecipeID *string `json:"recipeId"`
	AgentID  *string `json:"agentId"`
	JiraKey  *string `json:"jiraKey"`
	Column   *string `json:"column"`
}

type runRequest struct {
	Recipe       string          `json:"recipe"`
	DispatchMode string          `json:"dispatchMode"`
	RenderOnly   bool            `json:"renderOnly"`
	Input        json.RawMessage `json:"input"`
}

type runResponse struct {
	RunID string `json:"runId"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(cwd string, board kanban.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := board.Load(cwd)
		return c.JSON(http.StatusOK, boardResponse{Board: state, Stats: state.Stats()})
	}
}

func postCard(cwd string, board kanban.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createCardRequest
		if err := decode(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "title is required"})
		}
		if req.RecipeID != "" {
			if _, err := recipes.ParseKind(req.RecipeID); err != nil {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			}
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		} else if _, exists := board.Card(cwd, req.ID); exists {
			return c.JSON(http.StatusConflict, errorResponse{Error: "card already exists"})
		}

		card, err := board.UpsertCard(cwd, kanban.BoardCard{
			ID:       req.ID,
			Title:    req.Title,
			RecipeID: req.RecipeID,
			AgentID:  req.AgentID,
			JiraKey:  req.JiraKey,
			Column:   kanban.ColumnFor(kanban.EventCardCreated),
		})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, card)
	}
}

func patchCard(cwd string, board kanban.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req patchCardRequest
		if err := decode(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.RecipeID != nil && *req.RecipeID != "" {
			if _, err := recipes.ParseKind(*req.RecipeID); err != nil {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			}
		}

		card, err := board.UpdateCard(cwd, c.Param("id"), func(card *kanban.BoardCard) {
			if req.Title != nil {
				card.Title = strings.TrimSpace(*req.Title)
			}
			if req.RecipeID != nil {
				card.RecipeID = *req.RecipeID
			}
			if req.AgentID != nil {
				card.AgentID = *req.AgentID
			}
			if req.JiraKey != nil {
				card.JiraKey = *req.JiraKey
			}
			if req.Column != nil {
				card.Column = kanban.Column(*req.Column)
			}
		})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, card)
	}
}

func deleteCard(cwd string, board kanban.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		removed, err := board.DeleteCard(cwd, c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		if !removed {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "card not found"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postRun(cwd string, board kanban.BoardStore, queue Enqueuer, logger *slog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		cardID := c.Param("id")

		var req runRequest
		if err := decode(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		card, ok := board.Card(cwd, cardID)
		if !ok {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "card not found"})
		}

		recipe := req.Recipe
		if recipe == "" {
			recipe = card.RecipeID
		}
		kind, err := recipes.ParseKind(recipe)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		input, err := recipes.DecodeInput(kind, req.Input)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		// The queue refuses a second active run for the card atomically.
		runID, err := queue.Enqueue(c.Request().Context(), promptflow.Job{
			CardID:       cardID,
			CWD:          cwd,
			Kind:         kind,
			Input:        input,
			DispatchMode: kanban.DispatchMode(req.DispatchMode),
			RenderOnly:   req.RenderOnly,
		})
		if err != nil {
			if !errors.Is(err, kanban.ErrActiveRun) {
				logger.Error("Failed to enqueue run", "card", cardID, "error", err)
			}
			return writeError(c, err)
		}
		return c.JSON(http.StatusAccepted, runResponse{RunID: runID})
	}
}

// getCardRuns lists a card's runs, oldest first.
func getCardRuns(cwd string, board kanban.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := board.Load(cwd)
		cardID := c.Param("id")
		if _, ok := state.Card(cardID); !ok {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "card not found"})
		}
		runs := state.RunsForCard(cardID)
		if runs == nil {
			runs = []kanban.RunRecord{}
		}
		return c.JSON(http.StatusOK, runs)
	}
}

func getRun(cwd string, board kanban.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		run, ok := board.Run(cwd, c.Param("id"))
		if !ok {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "run not found"})
		}
		return c.JSON(http.StatusOK, run)
	}
}

// decode reads a size-limited JSON body. An empty body leaves v unchanged.
func decode(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, kanban.ErrCardNotFound), errors.Is(err, kanban.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, kanban.ErrActiveRun):
		status = http.StatusConflict
	case errors.Is(err, kanban.ErrInvalidColumn), errs.IsConfig(err):
		status = http.StatusBadRequest
	case errors.Is(err, promptflow.ErrQueueClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}
