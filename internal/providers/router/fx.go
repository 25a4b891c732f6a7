package router

import "go.uber.org/fx"

var Module = fx.Module("providers.router",
	fx.Provide(NewClient),
)
