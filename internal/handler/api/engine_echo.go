package api

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	"AutoTrade/internal/usecase"
	xhttp "AutoTrade/pkg/http"
	xlogger "AutoTrade/pkg/logger"
)

// SessionStarter launches a background session and returns its run id.
type SessionStarter interface {
	Start(ctx context.Context, market models.Country, dryRun bool) (string, error)
}

// EngineEchoHandler exposes the engine's state and a session trigger over HTTP.
type EngineEchoHandler struct {
	logger      *xlogger.Logger
	ladders     domrepo.SellQueueStore
	assignments domrepo.AssignmentStore
	sessions    SessionStarter
	// background sessions run under base, not the request context
	base context.Context
}

func NewEngineEchoHandler(base context.Context, logger *xlogger.Logger, ladders domrepo.SellQueueStore, assignments domrepo.AssignmentStore, sessions SessionStarter) *EngineEchoHandler {
	return &EngineEchoHandler{base: base, logger: logger, ladders: ladders, assignments: assignments, sessions: sessions}
}

func (h *EngineEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/ladders/:symbol", h.Ladder)
	g.GET("/assignments", h.Assignments)
	g.POST("/sizing/preview", h.SizingPreview)
	g.POST("/sessions/:market", h.StartSession)
}

func (h *EngineEchoHandler) Ladder(c echo.Context) error {
	symbol := strings.TrimSpace(c.Param("symbol"))
	l, err := h.ladders.Ladder(c.Request().Context(), symbol)
	if err != nil {
		h.logger.Error("ladder lookup error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("ladder lookup failed").WithError(err))
	}
	if l == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no sell ladder for %s", symbol))
	}
	return xhttp.SuccessResponse(c, l)
}

type assignmentRow struct {
	Symbol   string          `json:"symbol"`
	Category models.Category `json:"category"`
}

func (h *EngineEchoHandler) Assignments(c echo.Context) error {
	a, err := h.assignments.Assignments(c.Request().Context())
	if err != nil {
		h.logger.Error("assignments lookup error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("assignments lookup failed").WithError(err))
	}
	rows := make([]assignmentRow, 0, len(a))
	for sym, cat := range a {
		rows = append(rows, assignmentRow{Symbol: sym, Category: cat})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

type sizingPreview struct {
	Input  usecase.SizingInput `json:"input"`
	Shares int64               `json:"shares"`
}

func (h *EngineEchoHandler) SizingPreview(c echo.Context) error {
	req := &usecase.SizingInput{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, sizingPreview{Input: *req, Shares: usecase.Size(*req)})
}

type startSessionRequest struct {
	DryRun bool `json:"dry_run"`
}

type startSessionResponse struct {
	RunID  string         `json:"run_id"`
	Market models.Country `json:"market"`
	DryRun bool           `json:"dry_run"`
}

func (h *EngineEchoHandler) StartSession(c echo.Context) error {
	market, err := models.ParseCountry(strings.ToUpper(c.Param("market")))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err).WithParam("market", c.Param("market")))
	}
	req := &startSessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	runID, err := h.sessions.Start(h.base, market, req.DryRun)
	switch {
	case errors.Is(err, usecase.ErrSessionBusy):
		return xhttp.AppErrorResponse(c, xhttp.ConflictErrorf("%s session already running", market).WithError(err))
	case err != nil:
		h.logger.Error("session start error", xlogger.String("market", string(market)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("session start failed").WithError(err))
	}
	h.logger.Info("session triggered", xlogger.String("run_id", runID), xlogger.String("market", string(market)))
	return xhttp.AcceptedResponse(c, startSessionResponse{RunID: runID, Market: market, DryRun: req.DryRun})
}
