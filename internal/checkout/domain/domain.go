// Package domain defines the checkout initiation contract.
package domain

import (
	"context"
	"errors"
	"strings"
)

// Request is a user's intent to purchase a paid tier.
type Request struct {
	Email  string
	Plan   string
	Locale string
}

// Session is the created hosted checkout page.
type Session struct {
	URL string
}

type Service interface {
	// CreateSession returns the redirect URL for a hosted checkout page.
	// Nothing in the entitlement store changes until the webhook lands.
	CreateSession(ctx context.Context, req Request) (*Session, error)
}

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidPlan  = errors.New("invalid_plan")
	// ErrAlreadySubscribed means the customer already holds an active
	// subscription at exactly the requested plan's price. A different
	// price is an upgrade or downgrade and passes through.
	ErrAlreadySubscribed = errors.New("already_subscribed")
)

// ConflictMessage localizes the duplicate-subscription rejection for the
// response body.
func ConflictMessage(locale string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(locale)), "ja") {
		return "このメールアドレスはすでに同じプランに加入済みです。ダッシュボードからプランをご確認ください。"
	}
	return "This email already has the same plan active. Check your plan in the dashboard."
}
