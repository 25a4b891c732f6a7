// Package domain contains the webhook reconciliation contract: the events
// the payment processor delivers and the outcomes of applying them.
package domain

import (
	"errors"

	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
)

type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
)

// Event is a verified, parsed billing event. Delivery is at-least-once and
// unordered; every consumer must tolerate replays.
type Event struct {
	ID             string
	Type           EventType
	Email          string
	Plan           entitlementdomain.Plan
	CustomerID     string
	SubscriptionID string
}

// EventSource authenticates a raw webhook delivery and produces the event.
type EventSource interface {
	VerifyAndParse(payload []byte, signature string) (*Event, error)
}

var (
	// ErrInvalidSignature rejects the delivery before any parsing of event
	// semantics; nothing downstream of it may touch the store.
	ErrInvalidSignature = errors.New("invalid_signature")
	// ErrEventIgnored marks event types this application does not handle.
	ErrEventIgnored = errors.New("event_ignored")
	// ErrMalformedEvent marks payloads missing required metadata. Retrying
	// cannot fix malformed data, so these are acknowledged and dropped.
	ErrMalformedEvent = errors.New("malformed_event")
	// ErrRetryableStore is the one failure the sender is asked to retry:
	// a paid signup whose insert failed for a reason other than a
	// duplicate delivery.
	ErrRetryableStore = errors.New("retryable_store_failure")
)
