package stripe

import (
	"context"

	stripego "github.com/stripe/stripe-go/v72"
	stripeclient "github.com/stripe/stripe-go/v72/client"
	"github.com/zerocost/portal/internal/config"
	"github.com/zerocost/portal/internal/providers/stripe/domain"
	"go.uber.org/zap"
)

type gateway struct {
	api *stripeclient.API
	log *zap.Logger
}

// NewGateway builds the Stripe API gateway from the configured secret key.
func NewGateway(cfg config.Config, log *zap.Logger) domain.Gateway {
	api := &stripeclient.API{}
	api.Init(cfg.Stripe.SecretKey, nil)

	return &gateway{
		api: api,
		log: log.Named("providers.stripe"),
	}
}

func (g *gateway) FindOrCreateCustomer(ctx context.Context, email string) (string, error) {
	listParams := &stripego.CustomerListParams{Email: stripego.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripego.Int64(1)

	iter := g.api.Customers.List(listParams)
	for iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		g.log.Error("stripe customer lookup failed", zap.Error(err))
		return "", domain.ErrUnavailable
	}

	createParams := &stripego.CustomerParams{Email: stripego.String(email)}
	createParams.Context = ctx
	createParams.AddMetadata("source", "zerocost-lp")

	customer, err := g.api.Customers.New(createParams)
	if err != nil {
		g.log.Error("stripe customer create failed", zap.Error(err))
		return "", domain.ErrUnavailable
	}
	return customer.ID, nil
}

func (g *gateway) ListActiveSubscriptions(ctx context.Context, customerID string) ([]domain.ActiveSubscription, error) {
	params := &stripego.SubscriptionListParams{
		Customer: customerID,
		Status:   string(stripego.SubscriptionStatusActive),
	}
	params.Context = ctx
	params.AddExpand("data.items.data.price")

	var subscriptions []domain.ActiveSubscription
	iter := g.api.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		var amount int64
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			amount = sub.Items.Data[0].Price.UnitAmount
		}
		subscriptions = append(subscriptions, domain.ActiveSubscription{
			ID:         sub.ID,
			UnitAmount: amount,
		})
	}
	if err := iter.Err(); err != nil {
		g.log.Error("stripe subscription list failed", zap.Error(err))
		return nil, domain.ErrUnavailable
	}
	return subscriptions, nil
}

func (g *gateway) CreateCheckoutSession(ctx context.Context, session domain.CheckoutSession) (string, error) {
	params := &stripego.CheckoutSessionParams{
		Customer:           stripego.String(session.CustomerID),
		Mode:               stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		Locale:             stripego.String(session.Locale),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripego.String(session.Currency),
					UnitAmount: stripego.Int64(session.UnitAmount),
					Recurring: &stripego.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripego.String(session.Interval),
					},
					ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripego.String(session.ProductName),
					},
				},
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL: stripego.String(session.SuccessURL),
		CancelURL:  stripego.String(session.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("email", session.Email)
	params.AddMetadata("plan", session.Plan)

	created, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		g.log.Error("stripe checkout session create failed", zap.Error(err))
		return "", domain.ErrUnavailable
	}
	return created.URL, nil
}
