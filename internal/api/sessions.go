package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/notify"
	"custody-workbench/internal/ordering"
	"custody-workbench/internal/tracking"
	"custody-workbench/internal/withdrawal"
)

func registerSessionRoutes(router *gin.RouterGroup, s *Server) {
	router.POST("", s.OpenSession)
	sessions := router.Group("/:id")
	{
		sessions.DELETE("", s.CloseSession)
		sessions.PUT("/quote", s.RequestQuote)
		sessions.GET("/quote", s.GetQuote)
		sessions.GET("/orders/check", s.CheckOrder)
		sessions.POST("/orders", s.SubmitOrder)
		sessions.DELETE("/orders/:orderId", s.CancelOrder)
		sessions.POST("/withdrawals", s.SubmitWithdrawal)
		sessions.GET("/transfers/:transferId", s.GetTransfer)
		sessions.GET("/notices", s.ListNotices)
	}
}

type openSessionRequest struct {
	Profile string `json:"profile"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Profile   string    `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenSession creates a session with its attached components.
func (s *Server) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ws := s.openWorkspace(strings.TrimSpace(req.Profile))
	c.JSON(http.StatusCreated, sessionResponse{
		ID:        ws.session.ID(),
		Profile:   ws.session.Profile(),
		CreatedAt: ws.session.CreatedAt(),
	})
}

// CloseSession tears a session down: the quote countdown stops, trackings
// end and in-flight results are discarded.
func (s *Server) CloseSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Sessions.Close(id); err != nil {
		respondError(c, err)
		return
	}
	s.logger.Info().Str("session_id", id).Msg("session closed")
	c.Status(http.StatusNoContent)
}

type quoteRequest struct {
	Market string `json:"market"`
	Side   string `json:"side"`
	Amount string `json:"amount"`
}

// RequestQuote sets the quote inputs and fetches a quote for them.
func (s *Server) RequestQuote(c *gin.Context) {
	ws, err := s.workspace(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := ws.quotes.RequestQuote(c.Request.Context(), req.Market, domain.Side(req.Side), req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.quotes.State())
}

// GetQuote returns the held quote and its countdown.
func (s *Server) GetQuote(c *gin.Context) {
	ws, err := s.workspace(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.quotes.State())
}

type orderRequest struct {
	Mode string `json:"mode" form:"mode"`
	ordering.Fields
}

func (r orderRequest) mode() domain.OrderType {
	if strings.TrimSpace(r.Mode) == "" {
		return domain.OrderTypeMarket
	}
	return domain.OrderType(strings.ToUpper(strings.TrimSpace(r.Mode)))
}

// CheckOrder reports whether the fields may be submitted and the estimated total.
func (s *Server) CheckOrder(c *gin.Context) {
	ws, err := s.workspace(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req orderRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode := req.mode()
	ws.orders.SetDraft(mode, req.Fields)
	c.JSON(http.StatusOK, ws.orders.Check(mode, req.Fields))
}

// SubmitOrder submits the order in the given mode.
func (s *Server) SubmitOrder(c *gin.Context) {
	ws, err := s.workspace(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := ws.orders.Submit(c.Request.Context(), req.mode(), req.Fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// CancelOrder cancels an open order.
func (s *Server) CancelOrder(c *gin.Context) {
	ws, err := s.workspace(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := ws.orders.Cancel(c.Request.Context(), c.Param("orderId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

type withdrawalRequest struct {
	Kind          string `json:"kind"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	Destination   string `json:"destination,omitempty"`
	Network       string `json:"network,omitempty"`
	FiatAccountID string `json:"fiat_account_id,omitempty"`
}

type trackingResponse struct {
	TransferID string                `json:"transfer_id"`
	Status     domain.TransferStatus `json:"status"`
	Polls      int                   `json:"polls"`
	Done       bool                  `json:"done"`
	Progress   tracking.Progress     `json:"progress"`
}

func newTrackingResponse(tr *tracking.Tracking) trackingResponse {
	return trackingResponse{
		TransferID: tr.TransferID(),
		Status:     tr.Status(),
		Polls:      tr.Polls(),
		Done:       tr.Done(),
		Progress:   tr.Progress(),
	}
}

// SubmitWithdrawal submits a crypto or fiat withdrawal and starts tracking
// the created transfer.
func (s *Server) SubmitWithdrawal(c *gin.Context) {
	ws, err := s.workspace(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	sessionID := ws.session.ID()

	var t *domain.Transfer
	switch strings.ToLower(strings.TrimSpace(req.Kind)) {
	case "", "crypto":
		t, err = s.deps.Withdrawals.Crypto(ctx, sessionID, withdrawal.CryptoForm{
			Asset:       req.Asset,
			Amount:      req.Amount,
			Destination: req.Destination,
			Network:     req.Network,
		})
	case "fiat":
		t, err = s.deps.Withdrawals.Fiat(ctx, sessionID, withdrawal.FiatForm{
			Asset:         req.Asset,
			Amount:        req.Amount,
			FiatAccountID: req.FiatAccountID,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be crypto or fiat"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	tr, err := s.deps.Tracker.Track(sessionID, t.ID, t.Status)
	if err != nil {
		s.logger.Error().Err(err).Str("transfer_id", t.ID).Msg("tracking not started")
		c.JSON(http.StatusCreated, gin.H{"transfer": t})
		return
	}
	if err := ws.addTracking(tr); err != nil {
		s.logger.Warn().Err(err).Str("transfer_id", t.ID).Msg("session closed during withdrawal, tracking dropped")
		c.JSON(http.StatusCreated, gin.H{"transfer": t})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"transfer": t,
		"tracking": newTrackingResponse(tr),
	})
}

// GetTransfer returns the observed status of a tracked transfer.
func (s *Server) GetTransfer(c *gin.Context) {
	ws, err := s.workspace(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	tr, err := ws.tracking(c.Param("transferId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTrackingResponse(tr))
}

// ListNotices returns the session's most recent notices.
func (s *Server) ListNotices(c *gin.Context) {
	ws, err := s.workspace(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	notices := []notify.Notice{}
	if s.deps.Notices != nil {
		notices = append(notices, s.deps.Notices.Notices(ws.session.ID())...)
	}
	c.JSON(http.StatusOK, notices)
}
