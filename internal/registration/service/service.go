package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/zerocost/portal/internal/clock"
	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
	"github.com/zerocost/portal/internal/observability/logger"
	"github.com/zerocost/portal/internal/observability/metrics"
	routerdomain "github.com/zerocost/portal/internal/providers/router/domain"
	"github.com/zerocost/portal/internal/registration/domain"
	"github.com/zerocost/portal/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    entitlementdomain.Repository
	Router  routerdomain.Client
	Metrics *metrics.Metrics
}

type registrationService struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    entitlementdomain.Repository
	router  routerdomain.Client
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &registrationService{
		db:      p.DB,
		log:     p.Log.Named("registration.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		router:  p.Router,
		metrics: p.Metrics,
	}
}

func (s *registrationService) Register(ctx context.Context, email string) (*domain.Registration, error) {
	log := logger.WithContext(ctx, s.log)

	email = entitlementdomain.NormalizeEmail(email)
	if !entitlementdomain.ValidEmail(email) {
		s.metrics.RecordRegistration(ctx, "invalid")
		return nil, domain.ErrInvalidEmail
	}

	existing, err := s.repo.FindActiveByEmail(ctx, s.db, email)
	if err != nil {
		log.Error("entitlement lookup failed", zap.Error(err))
		s.metrics.RecordRegistration(ctx, "error")
		return nil, err
	}
	if existing != nil && existing.ZCKey != "" {
		s.metrics.RecordRegistration(ctx, "existing")
		return &domain.Registration{
			Email:   email,
			ZCKey:   existing.ZCKey,
			Plan:    existing.Plan,
			Created: false,
		}, nil
	}

	// The router is the only key authority. If it fails, no record is
	// written: the caller retries and nothing half-exists.
	key, err := s.router.IssueKey(ctx, email)
	if err != nil {
		log.Error("key issuance failed", zap.Error(err))
		s.metrics.RecordRouterRequest(ctx, "issue_key", "error")
		s.metrics.RecordRegistration(ctx, "issuer_error")
		return nil, err
	}
	s.metrics.RecordRouterRequest(ctx, "issue_key", "ok")

	now := s.clock.Now()
	record := &entitlementdomain.Record{
		ID:        s.genID.Generate(),
		Email:     email,
		ZCKey:     key,
		Plan:      entitlementdomain.PlanFree,
		Status:    entitlementdomain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		// The key is already valid at the router; withholding it over a
		// bookkeeping failure would strand the user. Log and hand it out.
		if db.IsDuplicateKeyErr(err) {
			log.Info("registration raced an existing row", zap.String("email", email))
		} else {
			log.Error("entitlement insert failed, key returned anyway",
				zap.String("email", email),
				zap.Error(err),
			)
		}
	}

	s.metrics.RecordRegistration(ctx, "created")
	return &domain.Registration{
		Email:   email,
		ZCKey:   key,
		Plan:    entitlementdomain.PlanFree,
		Created: true,
	}, nil
}
