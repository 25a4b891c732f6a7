package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/zerocost/portal/internal/billing/domain"
	"github.com/zerocost/portal/internal/clock"
	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
	"github.com/zerocost/portal/internal/entitlement/repository"
	routerdomain "github.com/zerocost/portal/internal/providers/router/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manual Mocks

type fakeSource struct {
	event *domain.Event
	err   error
}

func (f *fakeSource) VerifyAndParse(payload []byte, signature string) (*domain.Event, error) {
	return f.event, f.err
}

type fakeRouter struct {
	key       string
	issueErr  error
	issued    int
	lastEmail string
}

func (f *fakeRouter) IssueKey(ctx context.Context, email string) (string, error) {
	f.issued++
	f.lastEmail = email
	if f.issueErr != nil {
		return "", f.issueErr
	}
	return f.key, nil
}
func (f *fakeRouter) FetchUsage(ctx context.Context, zcKey string) (*routerdomain.Usage, error) {
	return nil, nil
}
func (f *fakeRouter) ListProviderKeys(ctx context.Context, zcKey string) ([]routerdomain.ProviderKey, error) {
	return nil, nil
}
func (f *fakeRouter) AddProviderKey(ctx context.Context, zcKey, provider, apiKey string) error {
	return nil
}
func (f *fakeRouter) DeleteProviderKey(ctx context.Context, zcKey, provider string) error {
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&entitlementdomain.Record{}, &domain.WebhookEvent{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, source *fakeSource, router *fakeRouter) (domain.Service, *clock.FakeClock) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fc,
		Repo:   repository.Provide(),
		Source: source,
		Router: router,
	})
	return svc, fc
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return n
}

func lastAuditOutcome(t *testing.T, db *gorm.DB) domain.Outcome {
	var row domain.WebhookEvent
	if err := db.Order("id DESC").First(&row).Error; err != nil {
		t.Fatalf("expected an audit row: %v", err)
	}
	return row.Outcome
}

func TestIngestWebhookRejectsInvalidSignature(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := newTestService(t, db, &fakeSource{err: domain.ErrInvalidSignature}, &fakeRouter{})

	err := svc.IngestWebhook(context.Background(), []byte(`{}`), "t=1,v1=forged")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if n := countRows(t, db, &entitlementdomain.Record{}); n != 0 {
		t.Fatalf("expected no entitlement rows, got %d", n)
	}
	if n := countRows(t, db, &domain.WebhookEvent{}); n != 0 {
		t.Fatalf("rejected delivery must not leave an audit row, got %d", n)
	}
}

func TestIngestWebhookIgnoredEventType(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := newTestService(t, db, &fakeSource{err: domain.ErrEventIgnored}, &fakeRouter{})

	if err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("ignored event types must be acknowledged, got %v", err)
	}
	if n := countRows(t, db, &domain.WebhookEvent{}); n != 0 {
		t.Fatalf("expected no audit rows, got %d", n)
	}
}

func TestIngestWebhookPaidSignupProvisionsKey(t *testing.T) {
	db := setupTestDB(t)
	source := &fakeSource{event: &domain.Event{
		ID:             "evt_1",
		Type:           domain.EventCheckoutCompleted,
		Email:          "dev@example.com",
		Plan:           entitlementdomain.PlanPro,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
	}}
	router := &fakeRouter{key: "zc-live-abc"}
	svc, fc := newTestService(t, db, source, router)

	if err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("IngestWebhook failed: %v", err)
	}

	if router.issued != 1 || router.lastEmail != "dev@example.com" {
		t.Fatalf("expected one key issuance for dev@example.com, got %d for %q", router.issued, router.lastEmail)
	}

	var rec entitlementdomain.Record
	if err := db.Where("email = ?", "dev@example.com").First(&rec).Error; err != nil {
		t.Fatalf("expected entitlement row: %v", err)
	}
	if rec.ZCKey != "zc-live-abc" {
		t.Fatalf("expected router key to be stored, got %q", rec.ZCKey)
	}
	if rec.Plan != entitlementdomain.PlanPro || rec.Status != entitlementdomain.StatusActive {
		t.Fatalf("expected active pro record, got plan=%s status=%s", rec.Plan, rec.Status)
	}
	if rec.StripeSubscriptionID == nil || *rec.StripeSubscriptionID != "sub_1" {
		t.Fatalf("expected subscription id sub_1, got %v", rec.StripeSubscriptionID)
	}
	if !rec.CreatedAt.Equal(fc.Now()) {
		t.Fatalf("expected created_at from clock, got %v", rec.CreatedAt)
	}
	if got := lastAuditOutcome(t, db); got != domain.OutcomeApplied {
		t.Fatalf("expected applied outcome, got %s", got)
	}
}

func TestIngestWebhookUpgradeKeepsExistingKey(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(2)
	seeded := &entitlementdomain.Record{
		ID:     node.Generate(),
		Email:  "dev@example.com",
		ZCKey:  "zc-live-original",
		Plan:   entitlementdomain.PlanFree,
		Status: entitlementdomain.StatusActive,
	}
	if err := db.Create(seeded).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	source := &fakeSource{event: &domain.Event{
		ID:             "evt_2",
		Type:           domain.EventCheckoutCompleted,
		Email:          "dev@example.com",
		Plan:           entitlementdomain.PlanBasic,
		CustomerID:     "cus_2",
		SubscriptionID: "sub_2",
	}}
	router := &fakeRouter{key: "zc-live-should-not-be-used"}
	svc, _ := newTestService(t, db, source, router)

	if err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("IngestWebhook failed: %v", err)
	}

	if router.issued != 0 {
		t.Fatalf("upgrade must not mint a new key, router called %d times", router.issued)
	}

	var rec entitlementdomain.Record
	if err := db.Where("email = ?", "dev@example.com").First(&rec).Error; err != nil {
		t.Fatalf("expected entitlement row: %v", err)
	}
	if rec.ZCKey != "zc-live-original" {
		t.Fatalf("existing key must survive upgrade, got %q", rec.ZCKey)
	}
	if rec.Plan != entitlementdomain.PlanBasic {
		t.Fatalf("expected plan basic after upgrade, got %s", rec.Plan)
	}
	if rec.StripeSubscriptionID == nil || *rec.StripeSubscriptionID != "sub_2" {
		t.Fatalf("expected subscription id sub_2, got %v", rec.StripeSubscriptionID)
	}
}

func TestIngestWebhookDuplicateDeliveryIsNoop(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(3)
	sub := "sub_dup"
	existing := &entitlementdomain.Record{
		ID:                   node.Generate(),
		Email:                "other@example.com",
		ZCKey:                "zc-live-winner",
		Plan:                 entitlementdomain.PlanPro,
		Status:               entitlementdomain.StatusActive,
		StripeSubscriptionID: &sub,
	}
	if err := db.Create(existing).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// Redelivery races a signup whose winning row holds the same
	// subscription id but a different email, so the insert path runs and
	// trips the unique index.
	source := &fakeSource{event: &domain.Event{
		ID:             "evt_3",
		Type:           domain.EventCheckoutCompleted,
		Email:          "racer@example.com",
		Plan:           entitlementdomain.PlanPro,
		SubscriptionID: "sub_dup",
	}}
	svc, _ := newTestService(t, db, source, &fakeRouter{key: "zc-live-loser"})

	if err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("duplicate delivery must be acknowledged, got %v", err)
	}
	if n := countRows(t, db, &entitlementdomain.Record{}); n != 1 {
		t.Fatalf("expected the winning row only, got %d", n)
	}
	if got := lastAuditOutcome(t, db); got != domain.OutcomeDuplicate {
		t.Fatalf("expected duplicate outcome, got %s", got)
	}
}

func TestIngestWebhookRedeliveryMintsOneKey(t *testing.T) {
	db := setupTestDB(t)
	source := &fakeSource{event: &domain.Event{
		ID:             "evt_replay",
		Type:           domain.EventCheckoutCompleted,
		Email:          "dev@example.com",
		Plan:           entitlementdomain.PlanPro,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_replay",
	}}
	router := &fakeRouter{key: "zc-live-once"}
	svc, _ := newTestService(t, db, source, router)

	for i := 0; i < 2; i++ {
		if err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"); err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
	}

	if router.issued != 1 {
		t.Fatalf("redelivery must not mint a second key, router called %d times", router.issued)
	}
	if n := countRows(t, db, &entitlementdomain.Record{}); n != 1 {
		t.Fatalf("expected exactly one record, got %d", n)
	}

	var rec entitlementdomain.Record
	if err := db.Where("email = ?", "dev@example.com").First(&rec).Error; err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if rec.ZCKey != "zc-live-once" || rec.Plan != entitlementdomain.PlanPro {
		t.Fatalf("unexpected record after replay: %+v", rec)
	}
}

func TestIngestWebhookIssuanceFailureIsAcknowledged(t *testing.T) {
	db := setupTestDB(t)
	source := &fakeSource{event: &domain.Event{
		ID:    "evt_4",
		Type:  domain.EventCheckoutCompleted,
		Email: "dev@example.com",
		Plan:  entitlementdomain.PlanBasic,
	}}
	svc, _ := newTestService(t, db, source, &fakeRouter{issueErr: errors.New("router_unavailable")})

	if err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("issuance failure must not request a retry, got %v", err)
	}
	if n := countRows(t, db, &entitlementdomain.Record{}); n != 0 {
		t.Fatalf("expected no entitlement rows, got %d", n)
	}
	if got := lastAuditOutcome(t, db); got != domain.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", got)
	}
}

func TestIngestWebhookMalformedMetadataIsAcknowledged(t *testing.T) {
	db := setupTestDB(t)
	source := &fakeSource{
		event: &domain.Event{ID: "evt_5", Type: domain.EventCheckoutCompleted},
		err:   domain.ErrMalformedEvent,
	}
	svc, _ := newTestService(t, db, source, &fakeRouter{})

	if err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("malformed event must be acknowledged, got %v", err)
	}
	if n := countRows(t, db, &entitlementdomain.Record{}); n != 0 {
		t.Fatalf("expected no entitlement rows, got %d", n)
	}
	if got := lastAuditOutcome(t, db); got != domain.OutcomeMalformed {
		t.Fatalf("expected malformed outcome, got %s", got)
	}
}

func TestIngestWebhookCancellationDowngrades(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(4)
	sub := "sub_cancel"
	seeded := &entitlementdomain.Record{
		ID:                   node.Generate(),
		Email:                "dev@example.com",
		ZCKey:                "zc-live-abc",
		Plan:                 entitlementdomain.PlanBasic,
		Status:               entitlementdomain.StatusActive,
		StripeSubscriptionID: &sub,
	}
	if err := db.Create(seeded).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	source := &fakeSource{event: &domain.Event{
		ID:             "evt_6",
		Type:           domain.EventSubscriptionDeleted,
		SubscriptionID: "sub_cancel",
	}}
	svc, _ := newTestService(t, db, source, &fakeRouter{})

	if err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("IngestWebhook failed: %v", err)
	}

	var rec entitlementdomain.Record
	if err := db.Where("email = ?", "dev@example.com").First(&rec).Error; err != nil {
		t.Fatalf("expected entitlement row: %v", err)
	}
	if rec.Plan != entitlementdomain.PlanFree || rec.Status != entitlementdomain.StatusCanceled {
		t.Fatalf("expected canceled free record, got plan=%s status=%s", rec.Plan, rec.Status)
	}
	if rec.ZCKey != "zc-live-abc" {
		t.Fatalf("cancellation must not revoke the key, got %q", rec.ZCKey)
	}
	if got := lastAuditOutcome(t, db); got != domain.OutcomeApplied {
		t.Fatalf("expected applied outcome, got %s", got)
	}
}

func TestIngestWebhookCancellationUnknownSubscription(t *testing.T) {
	db := setupTestDB(t)
	source := &fakeSource{event: &domain.Event{
		ID:             "evt_7",
		Type:           domain.EventSubscriptionDeleted,
		SubscriptionID: "sub_never_seen",
	}}
	svc, _ := newTestService(t, db, source, &fakeRouter{})

	if err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("unknown subscription must be acknowledged, got %v", err)
	}
	if got := lastAuditOutcome(t, db); got != domain.OutcomeNoop {
		t.Fatalf("expected noop outcome, got %s", got)
	}
}
