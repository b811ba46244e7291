package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidUser   = errors.New("user id is required")
	ErrInvalidAPIKey = errors.New("stripe api key is required")
)

type ConnectRequest struct {
	UserID string
	APIKey string
}

type ConnectionStatus struct {
	Connected       bool       `json:"connected"`
	StripeAccountID string     `json:"stripe_account_id,omitempty"`
	IsValid         bool       `json:"is_valid"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	LastSynced      *time.Time `json:"last_synced,omitempty"`
	LastAttempted   *time.Time `json:"last_attempted,omitempty"`
}

type Service interface {
	// Connect validates the key against Stripe, encrypts it and stores
	// the connection. An existing connection for the user is replaced.
	Connect(ctx context.Context, req ConnectRequest) (*StripeConnection, error)
	// Disconnect removes the stored connection and its snapshot data.
	Disconnect(ctx context.Context, userID string) error
	// Status reports connection health without exposing the key.
	Status(ctx context.Context, userID string) (*ConnectionStatus, error)
}
