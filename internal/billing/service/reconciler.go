// Package service reconciles verified billing events against the
// entitlement store. Deliveries arrive at-least-once and unordered, so
// every mutation here must be safe to replay.
package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/zerocost/portal/internal/billing/domain"
	"github.com/zerocost/portal/internal/clock"
	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
	"github.com/zerocost/portal/internal/observability/logger"
	"github.com/zerocost/portal/internal/observability/metrics"
	routerdomain "github.com/zerocost/portal/internal/providers/router/domain"
	"github.com/zerocost/portal/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    entitlementdomain.Repository
	Source  domain.EventSource
	Router  routerdomain.Client
	Metrics *metrics.Metrics
}

type reconcilerService struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    entitlementdomain.Repository
	source  domain.EventSource
	router  routerdomain.Client
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &reconcilerService{
		db:      p.DB,
		log:     p.Log.Named("billing.reconciler"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		source:  p.Source,
		router:  p.Router,
		metrics: p.Metrics,
	}
}

// IngestWebhook authenticates the delivery and applies its effect. The
// returned error decides the acknowledgement: nil means the sender must not
// retry, ErrInvalidSignature rejects the delivery, and ErrRetryableStore
// asks for a redelivery because the store write failed transiently.
func (s *reconcilerService) IngestWebhook(ctx context.Context, payload []byte, signature string) error {
	log := logger.WithContext(ctx, s.log)

	event, err := s.source.VerifyAndParse(payload, signature)
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		log.Warn("webhook signature verification failed")
		s.metrics.RecordWebhookEvent(ctx, "unknown", "rejected")
		return err
	case errors.Is(err, domain.ErrEventIgnored):
		return nil
	case errors.Is(err, domain.ErrMalformedEvent):
		// Retrying cannot repair the payload, so acknowledge it and keep
		// an audit row for the operator.
		if event != nil {
			log.Error("webhook event missing required metadata",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
			)
			s.recordOutcome(ctx, event, domain.OutcomeMalformed, nil)
		} else {
			log.Error("webhook payload could not be decoded")
		}
		return nil
	case err != nil:
		log.Error("webhook event rejected", zap.Error(err))
		return nil
	}

	switch event.Type {
	case domain.EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, log, event)
	case domain.EventSubscriptionDeleted:
		return s.applySubscriptionDeleted(ctx, log, event)
	default:
		return nil
	}
}

func (s *reconcilerService) applyCheckoutCompleted(ctx context.Context, log *zap.Logger, event *domain.Event) error {
	existing, err := s.repo.FindActiveByEmail(ctx, s.db, event.Email)
	if err != nil {
		log.Error("entitlement lookup failed",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		s.recordOutcome(ctx, event, domain.OutcomeFailed, map[string]interface{}{"stage": "lookup"})
		return nil
	}

	now := s.clock.Now()

	if existing != nil && existing.ZCKey != "" {
		// Upgrade or plan change: the key already exists, only the
		// entitlement moves.
		purchase := entitlementdomain.Purchase{
			Plan:                 event.Plan,
			StripeCustomerID:     event.CustomerID,
			StripeSubscriptionID: event.SubscriptionID,
		}
		if err := s.repo.ApplyPurchase(ctx, s.db, event.Email, purchase, now); err != nil {
			log.Error("entitlement update failed",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			s.recordOutcome(ctx, event, domain.OutcomeFailed, map[string]interface{}{"stage": "update"})
			return nil
		}
		log.Info("subscription applied to existing key",
			zap.String("event_id", event.ID),
			zap.String("plan", string(event.Plan)),
		)
		s.recordOutcome(ctx, event, domain.OutcomeApplied, map[string]interface{}{"path": "upgrade"})
		return nil
	}

	// Paid signup without a prior registration: mint the key first, then
	// persist. Issuance failures are acknowledged; a redelivery would mint
	// a second key without making the first one reachable.
	key, err := s.router.IssueKey(ctx, event.Email)
	if err != nil {
		log.Error("key issuance failed for paid signup",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		s.metrics.RecordRouterRequest(ctx, "issue_key", "error")
		s.recordOutcome(ctx, event, domain.OutcomeFailed, map[string]interface{}{"stage": "issue_key"})
		return nil
	}
	s.metrics.RecordRouterRequest(ctx, "issue_key", "ok")

	record := &entitlementdomain.Record{
		ID:        s.genID.Generate(),
		Email:     event.Email,
		ZCKey:     key,
		Plan:      event.Plan,
		Status:    entitlementdomain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if event.CustomerID != "" {
		record.StripeCustomerID = &event.CustomerID
	}
	if event.SubscriptionID != "" {
		record.StripeSubscriptionID = &event.SubscriptionID
	}

	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Replay of an already-applied delivery. The row that won the
			// race carries the entitlement; this one is dropped.
			log.Info("duplicate webhook delivery skipped",
				zap.String("event_id", event.ID),
			)
			s.recordOutcome(ctx, event, domain.OutcomeDuplicate, nil)
			return nil
		}
		log.Error("entitlement insert failed",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		s.recordOutcome(ctx, event, domain.OutcomeFailed, map[string]interface{}{"stage": "insert"})
		return domain.ErrRetryableStore
	}

	log.Info("paid signup provisioned",
		zap.String("event_id", event.ID),
		zap.String("plan", string(event.Plan)),
	)
	s.recordOutcome(ctx, event, domain.OutcomeApplied, map[string]interface{}{"path": "signup"})
	return nil
}

func (s *reconcilerService) applySubscriptionDeleted(ctx context.Context, log *zap.Logger, event *domain.Event) error {
	rows, err := s.repo.CancelBySubscription(ctx, s.db, event.SubscriptionID, s.clock.Now())
	if err != nil {
		log.Error("cancellation failed",
			zap.String("event_id", event.ID),
			zap.String("subscription_id", event.SubscriptionID),
			zap.Error(err),
		)
		s.recordOutcome(ctx, event, domain.OutcomeFailed, map[string]interface{}{"stage": "cancel"})
		return nil
	}

	if rows == 0 {
		// Unknown subscription: either a replaced subscription from a plan
		// change or a delivery for a record we never held.
		log.Info("cancellation matched no record",
			zap.String("event_id", event.ID),
			zap.String("subscription_id", event.SubscriptionID),
		)
		s.recordOutcome(ctx, event, domain.OutcomeNoop, nil)
		return nil
	}

	log.Info("subscription canceled",
		zap.String("event_id", event.ID),
		zap.String("subscription_id", event.SubscriptionID),
	)
	s.recordOutcome(ctx, event, domain.OutcomeApplied, nil)
	return nil
}

// recordOutcome appends the audit row and emits the counter. The audit
// trail is best effort; losing a row never changes the acknowledgement.
func (s *reconcilerService) recordOutcome(ctx context.Context, event *domain.Event, outcome domain.Outcome, metadata map[string]interface{}) {
	s.metrics.RecordWebhookEvent(ctx, string(event.Type), string(outcome))

	row := &domain.WebhookEvent{
		ID:        s.genID.Generate(),
		EventID:   event.ID,
		EventType: string(event.Type),
		Outcome:   outcome,
		CreatedAt: s.clock.Now(),
	}
	if event.Email != "" {
		row.Email = &event.Email
	}
	if event.SubscriptionID != "" {
		row.SubscriptionID = &event.SubscriptionID
	}
	if metadata != nil {
		row.Metadata = datatypes.JSONMap(metadata)
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		logger.WithContext(ctx, s.log).Warn("webhook audit row not written",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}
