package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Purchase carries the fields a completed checkout writes onto a record.
type Purchase struct {
	Plan                 Plan
	StripeCustomerID     string
	StripeSubscriptionID string
}

type Repository interface {
	// FindActiveByEmail returns the active record for the normalized email,
	// or nil when none exists.
	FindActiveByEmail(ctx context.Context, db *gorm.DB, email string) (*Record, error)
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	// ApplyPurchase updates the active record for the email with the
	// purchased plan and Stripe identifiers. Safe to reapply.
	ApplyPurchase(ctx context.Context, db *gorm.DB, email string, purchase Purchase, now time.Time) error
	// CancelBySubscription downgrades the record holding the subscription id
	// to the free plan and marks it canceled. Returns the number of rows
	// touched; zero is not an error.
	CancelBySubscription(ctx context.Context, db *gorm.DB, subscriptionID string, now time.Time) (int64, error)
	// AttachUser backfills the auth system's user id on first login.
	AttachUser(ctx context.Context, db *gorm.DB, email, userID string, now time.Time) error
}
