package service

import (
	"context"
	"strings"

	"github.com/zerocost/portal/internal/account/domain"
	"github.com/zerocost/portal/internal/cache"
	"github.com/zerocost/portal/internal/clock"
	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
	"github.com/zerocost/portal/internal/observability/logger"
	"github.com/zerocost/portal/internal/observability/metrics"
	routerdomain "github.com/zerocost/portal/internal/providers/router/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    entitlementdomain.Repository
	Router  routerdomain.Client
	Usage   *cache.UsageCache
	Metrics *metrics.Metrics
}

type accountService struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    entitlementdomain.Repository
	router  routerdomain.Client
	usage   *cache.UsageCache
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &accountService{
		db:      p.DB,
		log:     p.Log.Named("account.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		router:  p.Router,
		usage:   p.Usage,
		metrics: p.Metrics,
	}
}

func (s *accountService) KeyInfo(ctx context.Context, email, userID string) (*domain.KeyInfo, error) {
	record, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}

	// Auth identity is linked lazily on first dashboard visit. Losing the
	// backfill is harmless; the next visit retries it.
	if userID != "" && record.UserID == nil {
		if err := s.repo.AttachUser(ctx, s.db, record.Email, userID, s.clock.Now()); err != nil {
			logger.WithContext(ctx, s.log).Warn("user id backfill failed",
				zap.String("email", record.Email),
				zap.Error(err),
			)
		}
	}

	return &domain.KeyInfo{
		Email:  record.Email,
		ZCKey:  record.ZCKey,
		Plan:   record.Plan,
		Status: record.Status,
	}, nil
}

func (s *accountService) Usage(ctx context.Context, email string) (*routerdomain.Usage, error) {
	record, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.usage.Get(ctx, record.ZCKey); ok {
		return cached, nil
	}

	usage, err := s.router.FetchUsage(ctx, record.ZCKey)
	if err != nil {
		s.metrics.RecordRouterRequest(ctx, "fetch_usage", "error")
		return nil, err
	}
	s.metrics.RecordRouterRequest(ctx, "fetch_usage", "ok")

	s.usage.Set(ctx, record.ZCKey, usage)
	return usage, nil
}

func (s *accountService) Providers(ctx context.Context, email string) ([]routerdomain.ProviderKey, error) {
	record, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}

	keys, err := s.router.ListProviderKeys(ctx, record.ZCKey)
	if err != nil {
		s.metrics.RecordRouterRequest(ctx, "list_providers", "error")
		return nil, err
	}
	s.metrics.RecordRouterRequest(ctx, "list_providers", "ok")
	return keys, nil
}

func (s *accountService) AddProvider(ctx context.Context, email, provider, apiKey string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || strings.TrimSpace(apiKey) == "" {
		return domain.ErrInvalidProvider
	}

	record, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}

	if err := s.router.AddProviderKey(ctx, record.ZCKey, provider, apiKey); err != nil {
		s.metrics.RecordRouterRequest(ctx, "add_provider", "error")
		return err
	}
	s.metrics.RecordRouterRequest(ctx, "add_provider", "ok")
	return nil
}

func (s *accountService) RemoveProvider(ctx context.Context, email, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.ErrInvalidProvider
	}

	record, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}

	if err := s.router.DeleteProviderKey(ctx, record.ZCKey, provider); err != nil {
		s.metrics.RecordRouterRequest(ctx, "delete_provider", "error")
		return err
	}
	s.metrics.RecordRouterRequest(ctx, "delete_provider", "ok")
	return nil
}

func (s *accountService) lookup(ctx context.Context, email string) (*entitlementdomain.Record, error) {
	email = entitlementdomain.NormalizeEmail(email)

	record, err := s.repo.FindActiveByEmail(ctx, s.db, email)
	if err != nil {
		logger.WithContext(ctx, s.log).Error("entitlement lookup failed",
			zap.String("email", email),
			zap.Error(err),
		)
		return nil, err
	}
	if record == nil || record.ZCKey == "" {
		return nil, domain.ErrNotRegistered
	}
	return record, nil
}
