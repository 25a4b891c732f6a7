// Package domain defines the contract with the external zerocost router,
// the service that issues zc-keys and meters their usage.
package domain

import (
	"context"
	"errors"
	"time"
)

// Usage is the router's per-key usage summary for the current period.
type Usage struct {
	RequestsThisMonth int64      `json:"requests_this_month"`
	Limit             *int64     `json:"limit"`
	ResetAt           *time.Time `json:"reset_at"`
}

// ProviderKey is a user-registered upstream LLM vendor credential. The
// router stores the real key; only a masked form ever comes back.
type ProviderKey struct {
	Provider     string    `json:"provider"`
	MaskedKey    string    `json:"masked_key"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Client interface {
	// IssueKey mints a new zc-key. The router is the sole authority for
	// key material; this application never generates keys itself.
	IssueKey(ctx context.Context, email string) (string, error)
	FetchUsage(ctx context.Context, zcKey string) (*Usage, error)
	ListProviderKeys(ctx context.Context, zcKey string) ([]ProviderKey, error)
	AddProviderKey(ctx context.Context, zcKey, provider, apiKey string) error
	DeleteProviderKey(ctx context.Context, zcKey, provider string) error
}

var (
	// ErrUnavailable means the router could not be reached.
	ErrUnavailable = errors.New("router_unavailable")
	// ErrRejected means the router answered with a non-success status.
	ErrRejected = errors.New("router_rejected")
)
