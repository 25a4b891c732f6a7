// Package domain defines the self-registration contract: give an email,
// get a zc-key, as many times as you like.
package domain

import (
	"context"
	"errors"

	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
)

// Registration is the outcome of a register call. Created is false when
// the email already held an active key.
type Registration struct {
	Email   string
	ZCKey   string
	Plan    entitlementdomain.Plan
	Created bool
}

type Service interface {
	// Register returns the key for the email, minting one on first call.
	// Repeated calls never mint a second key.
	Register(ctx context.Context, email string) (*Registration, error)
}

var ErrInvalidEmail = errors.New("invalid_email")
