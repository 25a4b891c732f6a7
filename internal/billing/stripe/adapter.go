// Package stripe adapts raw Stripe webhook deliveries into billing events.
package stripe

import (
	"encoding/json"
	"strings"

	stripego "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
	"github.com/zerocost/portal/internal/billing/domain"
	"github.com/zerocost/portal/internal/config"
	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
)

type Adapter struct {
	webhookSecret string
}

func NewAdapter(cfg config.Config) domain.EventSource {
	return &Adapter{webhookSecret: cfg.Stripe.WebhookSecret}
}

// VerifyAndParse checks the HMAC signature first; event semantics are never
// inspected before the delivery is authenticated.
func (a *Adapter) VerifyAndParse(payload []byte, signature string) (*domain.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, domain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEvent(payload, signature, a.webhookSecret)
	if err != nil {
		return nil, domain.ErrInvalidSignature
	}

	switch event.Type {
	case string(domain.EventCheckoutCompleted):
		return parseCheckoutCompleted(event)
	case string(domain.EventSubscriptionDeleted):
		return parseSubscriptionDeleted(event)
	default:
		return nil, domain.ErrEventIgnored
	}
}

func parseCheckoutCompleted(event stripego.Event) (*domain.Event, error) {
	var session stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, domain.ErrMalformedEvent
	}

	email := entitlementdomain.NormalizeEmail(session.Metadata["email"])
	plan := strings.ToLower(strings.TrimSpace(session.Metadata["plan"]))
	if email == "" || !entitlementdomain.ValidPaidPlan(plan) {
		// Keep the event identity so the drop can be audited.
		return &domain.Event{ID: event.ID, Type: domain.EventCheckoutCompleted}, domain.ErrMalformedEvent
	}

	parsed := &domain.Event{
		ID:    event.ID,
		Type:  domain.EventCheckoutCompleted,
		Email: email,
		Plan:  entitlementdomain.Plan(plan),
	}
	if session.Customer != nil {
		parsed.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		parsed.SubscriptionID = session.Subscription.ID
	}
	return parsed, nil
}

func parseSubscriptionDeleted(event stripego.Event) (*domain.Event, error) {
	var subscription stripego.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return nil, domain.ErrMalformedEvent
	}
	if strings.TrimSpace(subscription.ID) == "" {
		return nil, domain.ErrMalformedEvent
	}

	return &domain.Event{
		ID:             event.ID,
		Type:           domain.EventSubscriptionDeleted,
		SubscriptionID: subscription.ID,
	}, nil
}
