package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	analyticsdomain "github.com/smallbiznis/subsight/internal/analytics/domain"
)

type syncRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) SyncAnalytics(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, newValidationError("body", "invalid_request", "invalid request body"))
			return
		}
	}
	if (req.Year == 0) != (req.Month == 0) || req.Month < 0 || req.Month > 12 {
		AbortWithError(c, newValidationError("period", "invalid_period", "year and month must be provided together"))
		return
	}

	result, err := s.analyticsSvc.Sync(c.Request.Context(), analyticsdomain.SyncRequest{
		UserID: userID,
		Filter: analyticsdomain.PeriodFilter{Year: req.Year, Month: req.Month},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// A recoverable result means Stripe was unreachable; the snapshot
	// was left untouched and the caller should retry.
	if result.Recoverable {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) MonthlyBreakdown(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	out, err := s.analyticsSvc.MonthlyBreakdown(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) SnapshotOverview(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, err := s.analyticsSvc.SnapshotOverview(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) SnapshotRows(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	pageSize := 0
	if raw := c.Query("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a positive integer"))
			return
		}
		pageSize = parsed
	}

	page, err := s.analyticsSvc.Snapshot(c.Request.Context(), userID, c.Query("page_token"), pageSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}
