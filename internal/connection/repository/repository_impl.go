package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/subsight/internal/connection/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, conn *domain.StripeConnection) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"stripe_account_id",
				"encrypted_api_key",
				"is_valid",
				"error_message",
				"updated_at",
			}),
		}).
		Create(conn).Error
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.StripeConnection, error) {
	var conn domain.StripeConnection
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&conn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotConnected
		}
		return nil, err
	}
	return &conn, nil
}

func (r *repo) MarkSynced(ctx context.Context, db *gorm.DB, userID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.StripeConnection{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_valid":       true,
			"error_message":  "",
			"last_synced":    at,
			"last_attempted": at,
			"updated_at":     at,
		}).Error
}

func (r *repo) MarkAttempt(ctx context.Context, db *gorm.DB, userID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.StripeConnection{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"last_attempted": at,
			"updated_at":     at,
		}).Error
}

func (r *repo) MarkInvalid(ctx context.Context, db *gorm.DB, userID, message string) error {
	return db.WithContext(ctx).
		Model(&domain.StripeConnection{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_valid":      false,
			"error_message": message,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.StripeConnection{}).Error
}
