package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/zerocost/portal/internal/account"
	"github.com/zerocost/portal/internal/auth"
	"github.com/zerocost/portal/internal/billing"
	"github.com/zerocost/portal/internal/cache"
	"github.com/zerocost/portal/internal/checkout"
	"github.com/zerocost/portal/internal/clock"
	"github.com/zerocost/portal/internal/config"
	"github.com/zerocost/portal/internal/entitlement"
	"github.com/zerocost/portal/internal/migration"
	"github.com/zerocost/portal/internal/observability"
	"github.com/zerocost/portal/internal/providers/router"
	"github.com/zerocost/portal/internal/providers/stripe"
	"github.com/zerocost/portal/internal/ratelimit"
	"github.com/zerocost/portal/internal/registration"
	"github.com/zerocost/portal/internal/server"
	"github.com/zerocost/portal/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,
		migration.Module,

		// Outbound providers
		router.Module,
		stripe.Module,

		// Functional domains
		auth.Module,
		entitlement.Module,
		registration.Module,
		checkout.Module,
		billing.Module,
		account.Module,

		// HTTP surface
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		panic(err)
	}
	return node
}
