// Package domain defines the outbound contract with the payment processor.
package domain

import (
	"context"
	"errors"
)

// ActiveSubscription is the slice of a Stripe subscription the
// duplicate-purchase guard needs: identity and monthly price.
type ActiveSubscription struct {
	ID         string
	UnitAmount int64
}

// CheckoutSession describes the hosted checkout page to create. Email and
// Plan ride along as session metadata; that metadata is the only channel
// carrying intent from checkout creation to webhook handling.
type CheckoutSession struct {
	CustomerID  string
	Email       string
	Plan        string
	UnitAmount  int64
	Currency    string
	Interval    string
	ProductName string
	Locale      string
	SuccessURL  string
	CancelURL   string
}

type Gateway interface {
	// FindOrCreateCustomer resolves the Stripe customer for an email,
	// creating one when absent. Lookup-then-create is not atomic; a
	// concurrent first checkout may create a second customer, which is
	// cosmetic since the subscription guard is scoped per customer.
	FindOrCreateCustomer(ctx context.Context, email string) (string, error)
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]ActiveSubscription, error)
	// CreateCheckoutSession returns the hosted redirect URL.
	CreateCheckoutSession(ctx context.Context, session CheckoutSession) (string, error)
}

// ErrUnavailable means the payment processor could not complete the call.
var ErrUnavailable = errors.New("payment_provider_unavailable")
