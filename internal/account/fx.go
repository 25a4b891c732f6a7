package account

import (
	"github.com/zerocost/portal/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account",
	fx.Provide(service.NewService),
)
