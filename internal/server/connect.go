package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	connectiondomain "github.com/smallbiznis/subsight/internal/connection/domain"
)

type connectRequest struct {
	APIKey string `json:"api_key"`
}

type connectResponse struct {
	Connected       bool   `json:"connected"`
	StripeAccountID string `json:"stripe_account_id"`
}

func (s *Server) ConnectStripe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", "invalid request body"))
		return
	}

	conn, err := s.connectionSvc.Connect(c.Request.Context(), connectiondomain.ConnectRequest{
		UserID: userID,
		APIKey: req.APIKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, connectResponse{
		Connected:       true,
		StripeAccountID: conn.StripeAccountID,
	})
}

func (s *Server) ConnectionStatus(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	status, err := s.connectionSvc.Status(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) DisconnectStripe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := s.connectionSvc.Disconnect(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}
