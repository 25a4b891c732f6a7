package registration

import (
	"github.com/zerocost/portal/internal/registration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("registration",
	fx.Provide(service.NewService),
)
