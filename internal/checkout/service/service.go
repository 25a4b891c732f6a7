package service

import (
	"context"
	"strings"

	"github.com/zerocost/portal/internal/checkout/domain"
	"github.com/zerocost/portal/internal/config"
	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
	"github.com/zerocost/portal/internal/observability/logger"
	"github.com/zerocost/portal/internal/observability/metrics"
	stripedomain "github.com/zerocost/portal/internal/providers/stripe/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Plans   *config.PlanCatalogHolder
	Gateway stripedomain.Gateway
	Metrics *metrics.Metrics
}

type checkoutService struct {
	cfg     config.Config
	log     *zap.Logger
	plans   *config.PlanCatalogHolder
	gateway stripedomain.Gateway
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &checkoutService{
		cfg:     p.Config,
		log:     p.Log.Named("checkout.service"),
		plans:   p.Plans,
		gateway: p.Gateway,
		metrics: p.Metrics,
	}
}

// CreateSession resolves the Stripe customer, applies the duplicate-plan
// guard, and creates the hosted checkout session. Every failure leaves the
// entitlement store untouched.
func (s *checkoutService) CreateSession(ctx context.Context, req domain.Request) (*domain.Session, error) {
	log := logger.WithContext(ctx, s.log)

	email := entitlementdomain.NormalizeEmail(req.Email)
	if !entitlementdomain.ValidEmail(email) {
		s.metrics.RecordCheckout(ctx, req.Plan, "invalid")
		return nil, domain.ErrInvalidEmail
	}

	price, ok := s.plans.Current().Lookup(req.Plan)
	if !ok {
		s.metrics.RecordCheckout(ctx, req.Plan, "invalid")
		return nil, domain.ErrInvalidPlan
	}

	customerID, err := s.gateway.FindOrCreateCustomer(ctx, email)
	if err != nil {
		log.Error("customer resolve failed", zap.Error(err))
		s.metrics.RecordCheckout(ctx, price.Plan, "upstream_error")
		return nil, err
	}

	subscriptions, err := s.gateway.ListActiveSubscriptions(ctx, customerID)
	if err != nil {
		log.Error("subscription list failed",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		s.metrics.RecordCheckout(ctx, price.Plan, "upstream_error")
		return nil, err
	}
	for _, sub := range subscriptions {
		// Same price means the same plan is already active. A different
		// price is a plan change and goes through; the webhook applies it.
		if sub.UnitAmount == price.UnitAmount {
			log.Info("checkout rejected, plan already active",
				zap.String("customer_id", customerID),
				zap.String("plan", price.Plan),
			)
			s.metrics.RecordCheckout(ctx, price.Plan, "conflict")
			return nil, domain.ErrAlreadySubscribed
		}
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, stripedomain.CheckoutSession{
		CustomerID:  customerID,
		Email:       email,
		Plan:        price.Plan,
		UnitAmount:  price.UnitAmount,
		Currency:    price.Currency,
		Interval:    price.Interval,
		ProductName: price.Name,
		Locale:      normalizeLocale(req.Locale),
		SuccessURL:  s.cfg.Stripe.SuccessURL,
		CancelURL:   s.cfg.Stripe.CancelURL,
	})
	if err != nil {
		log.Error("checkout session creation failed",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		s.metrics.RecordCheckout(ctx, price.Plan, "upstream_error")
		return nil, err
	}

	s.metrics.RecordCheckout(ctx, price.Plan, "created")
	return &domain.Session{URL: url}, nil
}

func normalizeLocale(locale string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(locale)), "ja") {
		return "ja"
	}
	return "en"
}
