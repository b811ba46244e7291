package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/smallbiznis/subsight/internal/analytics/aggregate"
	"github.com/smallbiznis/subsight/internal/analytics/country"
	"github.com/smallbiznis/subsight/internal/analytics/domain"
	"github.com/smallbiznis/subsight/internal/analytics/normalize"
	"github.com/smallbiznis/subsight/internal/clock"
	"github.com/smallbiznis/subsight/internal/config"
	connectiondomain "github.com/smallbiznis/subsight/internal/connection/domain"
	obscontext "github.com/smallbiznis/subsight/internal/observability/context"
	"github.com/smallbiznis/subsight/internal/observability/logger"
	"github.com/smallbiznis/subsight/internal/observability/metrics"
	"github.com/smallbiznis/subsight/internal/ratelimit"
	"github.com/smallbiznis/subsight/internal/stripedata"
	"github.com/smallbiznis/subsight/internal/vault"
	"github.com/smallbiznis/subsight/pkg/db/pagination"
)

const syncLockTTL = 10 * time.Minute

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Repo     domain.Repository
	ConnRepo connectiondomain.Repository
	Codec    *vault.Codec
	Factory  *stripedata.Factory
	Limiter  *ratelimit.StripeLimiter
	Locker   ratelimit.SyncLocker
	Holder   *config.AnalyticsConfigHolder
	Metrics  *metrics.SyncMetrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clk      clock.Clock
	genID    *snowflake.Node
	repo     domain.Repository
	connRepo connectiondomain.Repository
	codec    *vault.Codec
	factory  *stripedata.Factory
	limiter  *ratelimit.StripeLimiter
	locker   ratelimit.SyncLocker
	holder   *config.AnalyticsConfigHolder
	metrics  *metrics.SyncMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("analytics.service"),
		clk:      p.Clock,
		genID:    p.GenID,
		repo:     p.Repo,
		connRepo: p.ConnRepo,
		codec:    p.Codec,
		factory:  p.Factory,
		limiter:  p.Limiter,
		locker:   p.Locker,
		holder:   p.Holder,
		metrics:  p.Metrics,
	}
}

func (s *Service) Sync(ctx context.Context, req domain.SyncRequest) (*domain.SyncResult, error) {
	if req.UserID == "" {
		return nil, domain.ErrInvalidUser
	}

	runID := ulid.Make().String()
	ctx = obscontext.WithSyncRunID(ctx, runID)
	log := logger.WithSyncRun(logger.WithUser(s.log, req.UserID), runID)

	lockKey := "sync:" + req.UserID
	token, acquired, err := s.locker.TryLock(ctx, lockKey, syncLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, domain.ErrSyncInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			log.Warn("release sync lock failed", zap.Error(err))
		}
	}()

	start := s.clk.Now()
	result, err := s.run(ctx, log, runID, req)
	elapsed := s.clk.Now().Sub(start)

	switch {
	case err != nil:
		s.metrics.ObserveSyncRun(metrics.SyncResultFailed, elapsed)
		s.recordAttempt(ctx, log, req.UserID, start)
		return nil, err
	case result.Recoverable:
		s.metrics.ObserveSyncRun(metrics.SyncResultRecoverable, elapsed)
		s.recordAttempt(ctx, log, req.UserID, start)
	default:
		s.metrics.ObserveSyncRun(metrics.SyncResultSuccess, elapsed)
	}
	return result, nil
}

// recordAttempt stamps the connection row after a failed run so a
// stale snapshot is distinguishable from one that was never retried.
// A successful run stamps it through MarkSynced instead.
func (s *Service) recordAttempt(ctx context.Context, log *zap.Logger, userID string, at time.Time) {
	if err := s.connRepo.MarkAttempt(context.WithoutCancel(ctx), s.db, userID, at); err != nil {
		log.Warn("record sync attempt failed", zap.Error(err))
	}
}

func (s *Service) run(ctx context.Context, log *zap.Logger, runID string, req domain.SyncRequest) (*domain.SyncResult, error) {
	conn, err := s.connRepo.FindByUserID(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}

	cfg := s.holder.Get()
	fetcher, err := s.fetcherFor(ctx, log, conn, cfg)
	if err != nil {
		return nil, err
	}

	subs, err := fetcher.Subscriptions(ctx)
	if err != nil {
		return s.fetchFailure(ctx, log, runID, conn, err)
	}
	customers, err := fetcher.Customers(ctx)
	if err != nil {
		return s.fetchFailure(ctx, log, runID, conn, err)
	}
	prices, err := fetcher.Prices(ctx)
	if err != nil {
		return s.fetchFailure(ctx, log, runID, conn, err)
	}

	s.metrics.AddSubscriptions(len(subs))
	if !req.Filter.IsZero() {
		subs = filterByPeriod(subs, req.Filter)
	}

	priceMap := make(map[string]*stripe.Price, len(prices))
	for _, price := range prices {
		priceMap[price.ID] = price
	}

	countries := s.resolveCountries(ctx, fetcher, subs, customers, cfg)

	records := make([]domain.SubscriptionRecord, 0, len(subs))
	billable := 0
	for _, sub := range subs {
		countryName := country.Unknown
		if sub.Customer != nil {
			if name, ok := countries[sub.Customer.ID]; ok {
				countryName = name
			}
		}
		rec := normalize.Record(sub, countryName, priceMap)
		if rec.MissingPrice {
			s.metrics.RecordDataWarning("missing_price")
			log.Warn("subscription has no price, excluded from metrics", zap.String("subscription_id", rec.ID))
		} else if rec.Counted() {
			billable++
		}
		records = append(records, rec)
	}

	prior, err := s.repo.TotalsByType(ctx, s.db, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load previous totals: %w", err)
	}

	rows := aggregate.Build(req.UserID, records, cfg.CustomerLifespanMonths)
	for _, row := range rows {
		row.ID = s.genID.Generate()
	}

	syncedAt := s.clk.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.ReplaceSnapshot(ctx, tx, req.UserID, rows); err != nil {
			return err
		}
		return s.connRepo.MarkSynced(ctx, tx, req.UserID, syncedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	s.metrics.SetSnapshotRows(len(rows))
	log.Info("sync completed",
		zap.Int("subscriptions", len(subs)),
		zap.Int("billable", billable),
		zap.Int("rows", len(rows)),
	)

	return &domain.SyncResult{
		SyncRunID:         runID,
		SyncedAt:          syncedAt,
		SubscriptionsSeen: len(subs),
		BillableCount:     billable,
		RowsWritten:       len(rows),
		Totals:            buildTotals(rows, prior),
		Currency:          domain.SnapshotCurrency,
	}, nil
}

// fetcherFor decrypts the stored key and builds a per-tenant Stripe
// fetcher. An undecryptable key invalidates the connection because
// retrying can never succeed.
func (s *Service) fetcherFor(ctx context.Context, log *zap.Logger, conn *connectiondomain.StripeConnection, cfg config.AnalyticsConfig) (*stripedata.Fetcher, error) {
	apiKey, err := s.codec.Decrypt(conn.EncryptedAPIKey)
	if err != nil {
		if errors.Is(err, vault.ErrCredential) {
			log.Error("stored key cannot be decrypted", zap.Error(err))
			if markErr := s.connRepo.MarkInvalid(ctx, s.db, conn.UserID, "stored credential unreadable"); markErr != nil {
				log.Warn("mark connection invalid failed", zap.Error(markErr))
			}
			return nil, fmt.Errorf("%w: %v", connectiondomain.ErrNeedsReconnect, err)
		}
		return nil, err
	}
	api := s.factory.NewClient(apiKey)
	return stripedata.NewFetcher(api, s.limiter, s.metrics, conn.StripeAccountID, cfg), nil
}

// fetchFailure classifies a Stripe fetch error. Authorization failures
// invalidate the connection; transient failures surface as a
// recoverable result so the caller can retry later.
func (s *Service) fetchFailure(ctx context.Context, log *zap.Logger, runID string, conn *connectiondomain.StripeConnection, err error) (*domain.SyncResult, error) {
	if stripedata.IsAuthorization(err) {
		log.Warn("stripe rejected the stored key", zap.Error(err))
		if markErr := s.connRepo.MarkInvalid(ctx, s.db, conn.UserID, err.Error()); markErr != nil {
			log.Warn("mark connection invalid failed", zap.Error(markErr))
		}
		return nil, fmt.Errorf("%w: %v", connectiondomain.ErrNeedsReconnect, err)
	}
	if stripedata.IsTransient(err) {
		log.Warn("stripe fetch failed transiently", zap.Error(err))
		return &domain.SyncResult{
			SyncRunID:   runID,
			Recoverable: true,
			Error:       err.Error(),
		}, nil
	}
	return nil, err
}

// resolveCountries resolves the country for every distinct customer on
// the subscription list. Resolution probes secondary Stripe resources,
// so the work is fanned out over a bounded worker pool.
func (s *Service) resolveCountries(ctx context.Context, fetcher *stripedata.Fetcher, subs []*stripe.Subscription, customers []*stripe.Customer, cfg config.AnalyticsConfig) map[string]string {
	byID := make(map[string]*stripe.Customer, len(customers))
	for _, c := range customers {
		byID[c.ID] = c
	}

	pending := make([]*stripe.Customer, 0, len(subs))
	seen := map[string]struct{}{}
	for _, sub := range subs {
		if sub.Customer == nil {
			continue
		}
		if _, dup := seen[sub.Customer.ID]; dup {
			continue
		}
		seen[sub.Customer.ID] = struct{}{}
		customer := byID[sub.Customer.ID]
		if customer == nil {
			customer = sub.Customer
		}
		pending = append(pending, customer)
	}

	resolver := country.NewResolver(fetcher)
	out := make(map[string]string, len(pending))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	workers := cfg.ResolverWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for _, customer := range pending {
		g.Go(func() error {
			name, source := resolver.Resolve(gctx, customer)
			s.metrics.RecordCountryResolution(source)
			if name == country.Unknown {
				s.metrics.RecordDataWarning("unknown_country")
			}
			mu.Lock()
			out[customer.ID] = name
			mu.Unlock()
			return nil
		})
	}
	// Resolution swallows probe errors, so Wait only reflects ctx
	// cancellation.
	_ = g.Wait()
	return out
}

func filterByPeriod(subs []*stripe.Subscription, filter domain.PeriodFilter) []*stripe.Subscription {
	kept := subs[:0]
	for _, sub := range subs {
		if filter.Contains(time.Unix(sub.Created, 0)) {
			kept = append(kept, sub)
		}
	}
	return kept
}

// buildTotals pairs each new unsegmented value with the previous
// snapshot's value for trend reporting.
func buildTotals(rows []*domain.MetricRow, prior map[string]float64) map[string]domain.MetricTotal {
	totals := make(map[string]domain.MetricTotal, 4)
	for _, row := range rows {
		if row.SegmentType != domain.SegmentNone {
			continue
		}
		previous := prior[row.DataType]
		totals[row.DataType] = domain.MetricTotal{
			Value:     row.Value,
			Previous:  previous,
			ChangePct: changePct(row.Value, previous),
			Direction: direction(row.Value, previous),
		}
	}
	return totals
}

func changePct(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

func direction(current, previous float64) string {
	switch {
	case current > previous:
		return domain.TrendUp
	case current < previous:
		return domain.TrendDown
	default:
		return domain.TrendFlat
	}
}

func (s *Service) MonthlyBreakdown(ctx context.Context, userID string) (*domain.MonthlyBreakdown, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	log := logger.WithUser(s.log, userID)

	conn, err := s.connRepo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	cfg := s.holder.Get()
	fetcher, err := s.fetcherFor(ctx, log, conn, cfg)
	if err != nil {
		return nil, err
	}

	subs, err := fetcher.Subscriptions(ctx)
	if err != nil {
		if _, ferr := s.fetchFailure(ctx, log, "", conn, err); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}
	customers, err := fetcher.Customers(ctx)
	if err != nil {
		if _, ferr := s.fetchFailure(ctx, log, "", conn, err); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}

	countries := s.resolveCountries(ctx, fetcher, subs, customers, cfg)
	records := make([]domain.SubscriptionRecord, 0, len(subs))
	for _, sub := range subs {
		countryName := country.Unknown
		if sub.Customer != nil {
			if name, ok := countries[sub.Customer.ID]; ok {
				countryName = name
			}
		}
		records = append(records, normalize.Record(sub, countryName, nil))
	}

	return aggregate.BucketByMonth(records, s.clk.Now()), nil
}

func (s *Service) Snapshot(ctx context.Context, userID string, pageToken string, pageSize int) (*domain.SnapshotPage, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	rows, err := s.repo.ListSnapshot(ctx, s.db, userID, pagination.Pagination{
		PageToken: pageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, int32(pageSize), func(row *domain.MetricRow) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        row.ID.String(),
			CreatedAt: row.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(rows) > pageSize {
		rows = rows[:pageSize]
	}

	return &domain.SnapshotPage{Rows: rows, PageInfo: pageInfo}, nil
}

func (s *Service) SnapshotOverview(ctx context.Context, userID string) (*domain.SnapshotView, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	rows, err := s.repo.AllRows(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	view := &domain.SnapshotView{
		Totals:    map[string]float64{},
		ByCountry: map[string]map[string]float64{},
		ByPlan:    map[string]map[string]float64{},
		Currency:  domain.SnapshotCurrency,
	}
	for _, row := range rows {
		switch row.SegmentType {
		case domain.SegmentNone:
			view.Totals[row.DataType] = row.Value
		case domain.SegmentCountry:
			addSegment(view.ByCountry, row.DataType, row.SegmentValue, row.Value)
		case domain.SegmentPlan:
			addSegment(view.ByPlan, row.DataType, row.SegmentValue, row.Value)
		}
	}
	return view, nil
}

func addSegment(m map[string]map[string]float64, dataType, segmentValue string, value float64) {
	inner, ok := m[dataType]
	if !ok {
		inner = map[string]float64{}
		m[dataType] = inner
	}
	inner[segmentValue] = value
}
