// Package domain defines the dashboard contract for an authenticated user.
package domain

import (
	"context"
	"errors"

	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
	routerdomain "github.com/zerocost/portal/internal/providers/router/domain"
)

// KeyInfo is the dashboard's view of the caller's entitlement.
type KeyInfo struct {
	Email  string
	ZCKey  string
	Plan   entitlementdomain.Plan
	Status entitlementdomain.Status
}

type Service interface {
	// KeyInfo returns the caller's key and plan. When the record has no
	// user id yet, the caller's id is attached on the way through.
	KeyInfo(ctx context.Context, email, userID string) (*KeyInfo, error)
	Usage(ctx context.Context, email string) (*routerdomain.Usage, error)
	Providers(ctx context.Context, email string) ([]routerdomain.ProviderKey, error)
	AddProvider(ctx context.Context, email, provider, apiKey string) error
	RemoveProvider(ctx context.Context, email, provider string) error
}

var (
	// ErrNotRegistered means the authenticated email holds no active key.
	ErrNotRegistered   = errors.New("not_registered")
	ErrInvalidProvider = errors.New("invalid_provider")
)
