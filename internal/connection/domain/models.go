package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	// ErrNotConnected is returned when a tenant has no Stripe connection.
	ErrNotConnected = errors.New("stripe connection not found")
	// ErrNeedsReconnect is returned when the stored key no longer works.
	ErrNeedsReconnect = errors.New("stripe connection requires reconnection")
)

// StripeConnection stores one tenant's encrypted Stripe credentials
// and the health of the last sync against them.
type StripeConnection struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID          string       `gorm:"not null;uniqueIndex" json:"user_id"`
	StripeAccountID string       `gorm:"not null;default:''" json:"stripe_account_id"`
	EncryptedAPIKey string       `gorm:"not null" json:"-"`
	IsValid         bool         `gorm:"not null;default:true" json:"is_valid"`
	ErrorMessage    string       `gorm:"not null;default:''" json:"error_message,omitempty"`
	LastSynced      *time.Time   `json:"last_synced,omitempty"`
	LastAttempted   *time.Time   `json:"last_attempted,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (StripeConnection) TableName() string {
	return "stripe_connections"
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, conn *StripeConnection) error
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*StripeConnection, error)
	MarkSynced(ctx context.Context, db *gorm.DB, userID string, at time.Time) error
	// MarkAttempt stamps a sync attempt without touching last_synced,
	// so failed runs stay visible on the health record.
	MarkAttempt(ctx context.Context, db *gorm.DB, userID string, at time.Time) error
	MarkInvalid(ctx context.Context, db *gorm.DB, userID, message string) error
	Delete(ctx context.Context, db *gorm.DB, userID string) error
}
