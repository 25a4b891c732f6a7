package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zerocost/portal/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repository struct{}

// Provide returns the gorm-backed entitlement repository.
func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) FindActiveByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).
		Where("email = ? AND status = ?", email, domain.StatusActive).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repository) ApplyPurchase(ctx context.Context, db *gorm.DB, email string, purchase domain.Purchase, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("email = ? AND status = ?", email, domain.StatusActive).
		Updates(map[string]any{
			"plan":                   purchase.Plan,
			"stripe_customer_id":     purchase.StripeCustomerID,
			"stripe_subscription_id": purchase.StripeSubscriptionID,
			"status":                 domain.StatusActive,
			"updated_at":             now,
		}).Error
}

func (r *repository) CancelBySubscription(ctx context.Context, db *gorm.DB, subscriptionID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("stripe_subscription_id = ?", subscriptionID).
		Updates(map[string]any{
			"plan":       domain.PlanFree,
			"status":     domain.StatusCanceled,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) AttachUser(ctx context.Context, db *gorm.DB, email, userID string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("email = ? AND user_id IS NULL", email).
		Updates(map[string]any{
			"user_id":    userID,
			"updated_at": now,
		}).Error
}
