package service

import (
	"context"
	"errors"
	"testing"

	"github.com/zerocost/portal/internal/checkout/domain"
	"github.com/zerocost/portal/internal/config"
	stripedomain "github.com/zerocost/portal/internal/providers/stripe/domain"
	"go.uber.org/zap"
)

type fakeGateway struct {
	customerID    string
	subscriptions []stripedomain.ActiveSubscription
	listErr       error
	createErr     error

	created *stripedomain.CheckoutSession
}

func (f *fakeGateway) FindOrCreateCustomer(ctx context.Context, email string) (string, error) {
	if f.customerID == "" {
		return "", stripedomain.ErrUnavailable
	}
	return f.customerID, nil
}
func (f *fakeGateway) ListActiveSubscriptions(ctx context.Context, customerID string) ([]stripedomain.ActiveSubscription, error) {
	return f.subscriptions, f.listErr
}
func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, session stripedomain.CheckoutSession) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = &session
	return "https://checkout.stripe.test/cs_1", nil
}

func newTestService(gateway *fakeGateway) domain.Service {
	cfg := config.Config{AppURL: "https://zerocost.example"}
	cfg.Stripe.SuccessURL = "https://zerocost.example/?checkout=success"
	cfg.Stripe.CancelURL = "https://zerocost.example/?checkout=cancel"

	return NewService(Params{
		Config:  cfg,
		Log:     zap.NewNop(),
		Plans:   config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog()),
		Gateway: gateway,
	})
}

func TestCreateSessionReturnsRedirectURL(t *testing.T) {
	gateway := &fakeGateway{customerID: "cus_1"}
	svc := newTestService(gateway)

	session, err := svc.CreateSession(context.Background(), domain.Request{
		Email:  "Dev@Example.com",
		Plan:   "basic",
		Locale: "ja-JP",
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.URL != "https://checkout.stripe.test/cs_1" {
		t.Fatalf("expected hosted URL, got %q", session.URL)
	}

	if gateway.created == nil {
		t.Fatal("expected a checkout session to be created")
	}
	if gateway.created.Email != "dev@example.com" || gateway.created.Plan != "basic" {
		t.Fatalf("metadata must carry normalized email and plan, got %+v", gateway.created)
	}
	if gateway.created.UnitAmount != 500 || gateway.created.Currency != "jpy" {
		t.Fatalf("expected 500 jpy for basic, got %d %s", gateway.created.UnitAmount, gateway.created.Currency)
	}
	if gateway.created.Locale != "ja" {
		t.Fatalf("expected ja locale, got %q", gateway.created.Locale)
	}
}

func TestCreateSessionValidatesInput(t *testing.T) {
	svc := newTestService(&fakeGateway{customerID: "cus_1"})

	if _, err := svc.CreateSession(context.Background(), domain.Request{Email: "nope", Plan: "basic"}); !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	for _, plan := range []string{"", "free", "enterprise"} {
		_, err := svc.CreateSession(context.Background(), domain.Request{Email: "dev@example.com", Plan: plan})
		if !errors.Is(err, domain.ErrInvalidPlan) {
			t.Fatalf("expected ErrInvalidPlan for %q, got %v", plan, err)
		}
	}
}

func TestCreateSessionRejectsSamePlan(t *testing.T) {
	gateway := &fakeGateway{
		customerID:    "cus_1",
		subscriptions: []stripedomain.ActiveSubscription{{ID: "sub_1", UnitAmount: 500}},
	}
	svc := newTestService(gateway)

	_, err := svc.CreateSession(context.Background(), domain.Request{Email: "dev@example.com", Plan: "basic"})
	if !errors.Is(err, domain.ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
	if gateway.created != nil {
		t.Fatal("conflicting request must not create a session")
	}
}

func TestCreateSessionAllowsPlanChange(t *testing.T) {
	// An active basic subscription does not block a pro checkout.
	gateway := &fakeGateway{
		customerID:    "cus_1",
		subscriptions: []stripedomain.ActiveSubscription{{ID: "sub_1", UnitAmount: 500}},
	}
	svc := newTestService(gateway)

	session, err := svc.CreateSession(context.Background(), domain.Request{Email: "dev@example.com", Plan: "pro"})
	if err != nil {
		t.Fatalf("plan change must pass the guard, got %v", err)
	}
	if session.URL == "" {
		t.Fatal("expected a redirect URL")
	}
	if gateway.created.UnitAmount != 1500 {
		t.Fatalf("expected 1500 jpy for pro, got %d", gateway.created.UnitAmount)
	}
}

func TestCreateSessionPropagatesProcessorFailure(t *testing.T) {
	gateway := &fakeGateway{customerID: "cus_1", listErr: stripedomain.ErrUnavailable}
	svc := newTestService(gateway)

	_, err := svc.CreateSession(context.Background(), domain.Request{Email: "dev@example.com", Plan: "basic"})
	if !errors.Is(err, stripedomain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestConflictMessageLocalization(t *testing.T) {
	if msg := domain.ConflictMessage("ja"); msg == "" || msg == domain.ConflictMessage("en") {
		t.Fatal("expected a distinct japanese conflict message")
	}
}
