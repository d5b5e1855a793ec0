package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/ledger"
	"custody-workbench/internal/upstream"
)

func registerLedgerRoutes(router *gin.RouterGroup, s *Server) {
	router.GET("", s.ListTransactions)
	router.GET("/export", s.ExportTransactions)
}

type ledgerResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
	HasMore      bool                 `json:"has_more"`
	Warning      string               `json:"warning,omitempty"`
}

func parseFilter(c *gin.Context) (ledger.Filter, error) {
	tab, err := ledger.ParseTab(c.Query("tab"))
	if err != nil {
		return ledger.Filter{}, err
	}
	from, err := ledger.ParseDate(c.Query("from"), false)
	if err != nil {
		return ledger.Filter{}, err
	}
	to, err := ledger.ParseDate(c.Query("to"), true)
	if err != nil {
		return ledger.Filter{}, err
	}
	return ledger.Filter{Tab: tab, From: from, To: to, Query: c.Query("q")}, nil
}

// ListTransactions returns the filtered ledger. pages selects how many pages
// of the prefix are visible. A refresh failure keeps the previous view, which
// may be empty, and reports the message as a warning.
func (s *Server) ListTransactions(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	pages := 1
	if v := c.Query("pages"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(c, fmt.Errorf("%w: pages must be a positive integer", ledger.ErrInvalidFilter))
			return
		}
		pages = n
	}

	txs, err := s.deps.Book.Query(c.Request.Context(), f)
	resp := ledgerResponse{Total: len(txs)}
	if err != nil {
		s.logger.Warn().Err(err).Msg("ledger refresh failed, serving previous view")
		resp.Warning = upstream.Message(err)
	}

	visible := ledger.Prefix(txs, pages*s.deps.PageSize)
	resp.Transactions = visible
	resp.HasMore = len(visible) < len(txs)
	if resp.Transactions == nil {
		resp.Transactions = []domain.Transaction{}
	}
	c.JSON(http.StatusOK, resp)
}

// ExportTransactions downloads the filtered ledger as CSV.
func (s *Server) ExportTransactions(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	name, data, err := s.deps.Book.Export(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(data))
}
