package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/zerocost/portal/internal/clock"
	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
	"github.com/zerocost/portal/internal/entitlement/repository"
	routerdomain "github.com/zerocost/portal/internal/providers/router/domain"
	"github.com/zerocost/portal/internal/registration/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRouter struct {
	keys     []string
	issueErr error
	issued   int
}

func (f *fakeRouter) IssueKey(ctx context.Context, email string) (string, error) {
	if f.issueErr != nil {
		return "", f.issueErr
	}
	key := f.keys[f.issued%len(f.keys)]
	f.issued++
	return key, nil
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
	if err := db.AutoMigrate(&entitlementdomain.Record{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, router *fakeRouter) domain.Service {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	return NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		Repo:   repository.Provide(),
		Router: router,
	})
}

func TestRegisterMintsKeyOnce(t *testing.T) {
	db := setupTestDB(t)
	router := &fakeRouter{keys: []string{"zc-live-first", "zc-live-second"}}
	svc := newTestService(t, db, router)

	first, err := svc.Register(context.Background(), "Dev@Example.com")
	if err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if !first.Created || first.ZCKey != "zc-live-first" {
		t.Fatalf("expected freshly minted key, got %+v", first)
	}
	if first.Email != "dev@example.com" {
		t.Fatalf("expected normalized email, got %q", first.Email)
	}
	if first.Plan != entitlementdomain.PlanFree {
		t.Fatalf("expected free plan, got %s", first.Plan)
	}

	second, err := svc.Register(context.Background(), "dev@example.com")
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
	if second.Created {
		t.Fatal("repeat registration must not report a new key")
	}
	if second.ZCKey != "zc-live-first" {
		t.Fatalf("repeat registration must return the original key, got %q", second.ZCKey)
	}
	if router.issued != 1 {
		t.Fatalf("expected a single issuance, router called %d times", router.issued)
	}

	var n int64
	if err := db.Model(&entitlementdomain.Record{}).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one record, got %d", n)
	}
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	db := setupTestDB(t)
	router := &fakeRouter{keys: []string{"zc-live-unused"}}
	svc := newTestService(t, db, router)

	for _, email := range []string{"", "not-an-email", "a b@example.com", "missing@tld"} {
		if _, err := svc.Register(context.Background(), email); !errors.Is(err, domain.ErrInvalidEmail) {
			t.Fatalf("expected ErrInvalidEmail for %q, got %v", email, err)
		}
	}
	if router.issued != 0 {
		t.Fatalf("invalid input must not reach the router, called %d times", router.issued)
	}
}

func TestRegisterIssuerFailureLeavesNoRecord(t *testing.T) {
	db := setupTestDB(t)
	router := &fakeRouter{issueErr: routerdomain.ErrUnavailable}
	svc := newTestService(t, db, router)

	_, err := svc.Register(context.Background(), "dev@example.com")
	if !errors.Is(err, routerdomain.ErrUnavailable) {
		t.Fatalf("expected router error to propagate, got %v", err)
	}

	var n int64
	if err := db.Model(&entitlementdomain.Record{}).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("issuer failure must not create records, got %d", n)
	}
}

func TestRegisterToleratesInsertConflict(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(2)

	// A canceled row is invisible to the active-record lookup, so the
	// insert path runs and hits the unique email index.
	seeded := &entitlementdomain.Record{
		ID:     node.Generate(),
		Email:  "dev@example.com",
		ZCKey:  "zc-live-old",
		Plan:   entitlementdomain.PlanFree,
		Status: entitlementdomain.StatusCanceled,
	}
	if err := db.Create(seeded).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	router := &fakeRouter{keys: []string{"zc-live-new"}}
	svc := newTestService(t, db, router)

	got, err := svc.Register(context.Background(), "dev@example.com")
	if err != nil {
		t.Fatalf("Register must tolerate an insert conflict, got %v", err)
	}
	if got.ZCKey != "zc-live-new" {
		t.Fatalf("expected the minted key despite the conflict, got %q", got.ZCKey)
	}
}
