package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subsight/internal/connection/domain"
	connectionrepo "github.com/smallbiznis/subsight/internal/connection/repository"
	"github.com/smallbiznis/subsight/internal/vault"
	"github.com/smallbiznis/subsight/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeValidator struct {
	accountID string
	err       error
	lastKey   string
}

func (f *fakeValidator) ValidateKey(_ context.Context, apiKey string) (string, error) {
	f.lastKey = apiKey
	return f.accountID, f.err
}

type analyticsRow struct {
	ID     int64  `gorm:"primaryKey"`
	UserID string `gorm:"column:user_id"`
}

func (analyticsRow) TableName() string { return "analytics_data" }

func newTestService(t *testing.T, validator domain.KeyValidator) (domain.Service, *gorm.DB) {
	t.Helper()

	gdb := db.NewTest(t)
	require.NoError(t, gdb.AutoMigrate(&domain.StripeConnection{}, &analyticsRow{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	codec, err := vault.NewCodecFromKey([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	svc := New(Params{
		DB:        gdb,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      connectionrepo.Provide(),
		Codec:     codec,
		Validator: validator,
	})
	return svc, gdb
}

func TestConnectStoresEncryptedKey(t *testing.T) {
	validator := &fakeValidator{accountID: "acct_123"}
	svc, gdb := newTestService(t, validator)
	ctx := context.Background()

	conn, err := svc.Connect(ctx, domain.ConnectRequest{
		UserID: "user_1",
		APIKey: "sk_test_abc",
	})
	require.NoError(t, err)
	require.Equal(t, "acct_123", conn.StripeAccountID)
	require.Equal(t, "sk_test_abc", validator.lastKey)

	var stored domain.StripeConnection
	require.NoError(t, gdb.Where("user_id = ?", "user_1").First(&stored).Error)
	require.NotEqual(t, "sk_test_abc", stored.EncryptedAPIKey)
	require.True(t, stored.IsValid)
}

func TestConnectReplacesExisting(t *testing.T) {
	validator := &fakeValidator{accountID: "acct_a"}
	svc, gdb := newTestService(t, validator)
	ctx := context.Background()

	_, err := svc.Connect(ctx, domain.ConnectRequest{UserID: "user_1", APIKey: "sk_test_one"})
	require.NoError(t, err)

	validator.accountID = "acct_b"
	_, err = svc.Connect(ctx, domain.ConnectRequest{UserID: "user_1", APIKey: "sk_test_two"})
	require.NoError(t, err)

	var count int64
	require.NoError(t, gdb.Model(&domain.StripeConnection{}).Where("user_id = ?", "user_1").Count(&count).Error)
	require.EqualValues(t, 1, count)

	var stored domain.StripeConnection
	require.NoError(t, gdb.Where("user_id = ?", "user_1").First(&stored).Error)
	require.Equal(t, "acct_b", stored.StripeAccountID)
}

func TestConnectRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t, &fakeValidator{accountID: "acct_x"})
	ctx := context.Background()

	_, err := svc.Connect(ctx, domain.ConnectRequest{UserID: "", APIKey: "sk_test_x"})
	require.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = svc.Connect(ctx, domain.ConnectRequest{UserID: "user_1", APIKey: ""})
	require.ErrorIs(t, err, domain.ErrInvalidAPIKey)

	_, err = svc.Connect(ctx, domain.ConnectRequest{UserID: "user_1", APIKey: "pk_test_public"})
	require.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestConnectPropagatesValidatorError(t *testing.T) {
	svc, _ := newTestService(t, &fakeValidator{err: errors.New("invalid key")})

	_, err := svc.Connect(context.Background(), domain.ConnectRequest{
		UserID: "user_1",
		APIKey: "sk_test_bad",
	})
	require.Error(t, err)
}

func TestDisconnectRemovesConnectionAndSnapshot(t *testing.T) {
	svc, gdb := newTestService(t, &fakeValidator{accountID: "acct_1"})
	ctx := context.Background()

	_, err := svc.Connect(ctx, domain.ConnectRequest{UserID: "user_1", APIKey: "sk_test_abc"})
	require.NoError(t, err)
	require.NoError(t, gdb.Create(&analyticsRow{ID: 1, UserID: "user_1"}).Error)
	require.NoError(t, gdb.Create(&analyticsRow{ID: 2, UserID: "user_2"}).Error)

	require.NoError(t, svc.Disconnect(ctx, "user_1"))

	status, err := svc.Status(ctx, "user_1")
	require.NoError(t, err)
	require.False(t, status.Connected)

	var count int64
	require.NoError(t, gdb.Model(&analyticsRow{}).Where("user_id = ?", "user_1").Count(&count).Error)
	require.EqualValues(t, 0, count)
	require.NoError(t, gdb.Model(&analyticsRow{}).Where("user_id = ?", "user_2").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestStatusReportsHealth(t *testing.T) {
	svc, gdb := newTestService(t, &fakeValidator{accountID: "acct_1"})
	ctx := context.Background()

	status, err := svc.Status(ctx, "user_1")
	require.NoError(t, err)
	require.False(t, status.Connected)

	_, err = svc.Connect(ctx, domain.ConnectRequest{UserID: "user_1", APIKey: "sk_test_abc"})
	require.NoError(t, err)

	repo := connectionrepo.Provide()
	require.NoError(t, repo.MarkInvalid(ctx, gdb, "user_1", "Stripe authorization failed"))

	status, err = svc.Status(ctx, "user_1")
	require.NoError(t, err)
	require.True(t, status.Connected)
	require.False(t, status.IsValid)
	require.Equal(t, "Stripe authorization failed", status.ErrorMessage)
}

func TestStatusReportsFailedAttempts(t *testing.T) {
	svc, gdb := newTestService(t, &fakeValidator{accountID: "acct_1"})
	ctx := context.Background()

	_, err := svc.Connect(ctx, domain.ConnectRequest{UserID: "user_1", APIKey: "sk_test_abc"})
	require.NoError(t, err)

	repo := connectionrepo.Provide()
	attempted := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkAttempt(ctx, gdb, "user_1", attempted))

	status, err := svc.Status(ctx, "user_1")
	require.NoError(t, err)
	require.Nil(t, status.LastSynced)
	require.NotNil(t, status.LastAttempted)
	require.True(t, status.LastAttempted.Equal(attempted))
}
