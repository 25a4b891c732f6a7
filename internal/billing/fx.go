package billing

import (
	"github.com/zerocost/portal/internal/billing/service"
	"github.com/zerocost/portal/internal/billing/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(
		stripe.NewAdapter,
		service.NewService,
	),
)
