package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subsight/internal/connection/domain"
	"github.com/smallbiznis/subsight/internal/observability/logger"
	"github.com/smallbiznis/subsight/internal/vault"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Codec     *vault.Codec
	Validator domain.KeyValidator
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	codec     *vault.Codec
	validator domain.KeyValidator
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("connection.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		codec:     p.Codec,
		validator: p.Validator,
	}
}

func (s *Service) Connect(ctx context.Context, req domain.ConnectRequest) (*domain.StripeConnection, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" || !strings.HasPrefix(apiKey, "sk_") {
		return nil, domain.ErrInvalidAPIKey
	}

	accountID, err := s.validator.ValidateKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("validate stripe key: %w", err)
	}

	encrypted, err := s.codec.Encrypt(apiKey)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conn := &domain.StripeConnection{
		ID:              s.genID.Generate(),
		UserID:          userID,
		StripeAccountID: accountID,
		EncryptedAPIKey: encrypted,
		IsValid:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Upsert(ctx, s.db, conn); err != nil {
		return nil, err
	}

	logger.WithUser(logger.WithContext(ctx, s.log), userID).Info("stripe connected",
		zap.String("stripe_account_id", accountID),
	)
	return conn, nil
}

func (s *Service) Disconnect(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUser
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Delete(ctx, tx, userID); err != nil {
			return err
		}
		// Snapshot rows are meaningless without a connection.
		return tx.Exec(`DELETE FROM analytics_data WHERE user_id = ?`, userID).Error
	})
	if err != nil {
		return err
	}

	logger.WithUser(logger.WithContext(ctx, s.log), userID).Info("stripe disconnected")
	return nil
}

func (s *Service) Status(ctx context.Context, userID string) (*domain.ConnectionStatus, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	conn, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		if err == domain.ErrNotConnected {
			return &domain.ConnectionStatus{Connected: false}, nil
		}
		return nil, err
	}

	return &domain.ConnectionStatus{
		Connected:       true,
		StripeAccountID: conn.StripeAccountID,
		IsValid:         conn.IsValid,
		ErrorMessage:    conn.ErrorMessage,
		LastSynced:      conn.LastSynced,
		LastAttempted:   conn.LastAttempted,
	}, nil
}
