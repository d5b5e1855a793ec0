// Package api is the operator-facing HTTP surface over sessions, quotes,
// orders, withdrawals, transfer tracking and the transaction ledger.
package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"custody-workbench/internal/clock"
	"custody-workbench/internal/collections"
	"custody-workbench/internal/ledger"
	"custody-workbench/internal/notify"
	"custody-workbench/internal/observability"
	"custody-workbench/internal/ordering"
	"custody-workbench/internal/quote"
	"custody-workbench/internal/session"
	"custody-workbench/internal/storage"
	"custody-workbench/internal/tracking"
	"custody-workbench/internal/upstream"
	"custody-workbench/internal/withdrawal"
)

// Upstream is the custody API surface the per-session components use.
type Upstream interface {
	quote.Fetcher
	ordering.API
}

// Deps are the shared components behind the API.
type Deps struct {
	Sessions    *session.Registry
	Upstream    Upstream
	Withdrawals *withdrawal.Service
	Tracker     *tracking.Tracker
	Cache       collections.Invalidator
	Book        *ledger.Book
	Notices     *notify.Recorder
	Notifier    notify.Notifier
	Journal     *storage.Journal
	Prices      ordering.PriceSource
	Clock       clock.Clock
	QuoteTick   time.Duration
	PageSize    int
	Logger      zerolog.Logger
}

// Server routes requests to per-session workspaces and the shared ledger.
type Server struct {
	deps   Deps
	logger zerolog.Logger

	mu         sync.Mutex
	workspaces map[string]*workspace
}

// NewServer creates a server. Missing optional deps get defaults.
func NewServer(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop
	}
	if deps.QuoteTick <= 0 {
		deps.QuoteTick = quote.DefaultTick
	}
	if deps.PageSize <= 0 {
		deps.PageSize = ledger.DefaultPageSize
	}
	return &Server{
		deps:       deps,
		logger:     deps.Logger.With().Str("component", "api").Logger(),
		workspaces: make(map[string]*workspace),
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	registerSessionRoutes(router.Group("/sessions"), s)
	registerLedgerRoutes(router.Group("/ledger"), s)

	return router
}

// Close tears down every open session.
func (s *Server) Close() {
	s.deps.Sessions.CloseAll()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// errorStatus maps domain errors to HTTP status codes. Upstream rejections
// become 422 and upstream outages 502; the message is kept either way.
func errorStatus(err error) int {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= http.StatusInternalServerError {
			return http.StatusBadGateway
		}
		return http.StatusUnprocessableEntity
	}
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, errWorkspaceNotFound), errors.Is(err, errNotTracked):
		return http.StatusNotFound
	case errors.Is(err, ordering.ErrSubmitInFlight), errors.Is(err, quote.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, ordering.ErrInvalidOrder),
		errors.Is(err, ordering.ErrNoActiveQuote),
		errors.Is(err, quote.ErrInvalidAmount),
		errors.Is(err, quote.ErrInvalidInput),
		errors.Is(err, withdrawal.ErrInvalidWithdrawal),
		errors.Is(err, ledger.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrEmptyExport):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quote.ErrQuoteUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": upstream.Message(err)})
}
