// Package domain contains the persisted entitlement record: the single
// source of truth binding an email to its zc-key, plan, and Stripe linkage.
package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Plan is the subscription tier.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

// ValidPaidPlan reports whether the value names a purchasable tier.
func ValidPaidPlan(value string) bool {
	switch Plan(strings.ToLower(strings.TrimSpace(value))) {
	case PlanBasic, PlanPro:
		return true
	default:
		return false
	}
}

// Status is the subscription standing, independent of the plan value.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

// Record is one user's entitlement, keyed by email. Email and
// stripe_subscription_id are each unique; those constraints are the only
// concurrency control in the reconciliation core.
type Record struct {
	ID                   snowflake.ID `gorm:"primaryKey"`
	Email                string       `gorm:"type:text;not null;uniqueIndex:ux_zerocost_keys_email"`
	ZCKey                string       `gorm:"column:zc_key;type:text;not null"`
	Plan                 Plan         `gorm:"type:text;not null;default:'free'"`
	Status               Status       `gorm:"type:text;not null;default:'active'"`
	StripeCustomerID     *string      `gorm:"column:stripe_customer_id;type:text"`
	StripeSubscriptionID *string      `gorm:"column:stripe_subscription_id;type:text;uniqueIndex:ux_zerocost_keys_subscription"`
	UserID               *string      `gorm:"column:user_id;type:text"`
	CreatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "zerocost_keys" }

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail lower-cases and trims an email for use as the record key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail performs the syntactic check applied before any external call.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
