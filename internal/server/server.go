package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/zerocost/portal/internal/account/domain"
	"github.com/zerocost/portal/internal/auth"
	billingdomain "github.com/zerocost/portal/internal/billing/domain"
	checkoutdomain "github.com/zerocost/portal/internal/checkout/domain"
	"github.com/zerocost/portal/internal/config"
	"github.com/zerocost/portal/internal/observability"
	obslogger "github.com/zerocost/portal/internal/observability/logger"
	obsmetrics "github.com/zerocost/portal/internal/observability/metrics"
	obstracing "github.com/zerocost/portal/internal/observability/tracing"
	"github.com/zerocost/portal/internal/ratelimit"
	registrationdomain "github.com/zerocost/portal/internal/registration/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	verifier        *auth.Verifier
	registrationSvc registrationdomain.Service
	checkoutSvc     checkoutdomain.Service
	billingSvc      billingdomain.Service
	accountSvc      accountdomain.Service
	registerLimiter *ratelimit.RegisterLimiter
	log             *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Verifier        *auth.Verifier
	RegistrationSvc registrationdomain.Service
	CheckoutSvc     checkoutdomain.Service
	BillingSvc      billingdomain.Service
	AccountSvc      accountdomain.Service
	RegisterLimiter *ratelimit.RegisterLimiter `optional:"true"`
	Log             *zap.Logger
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		verifier:        p.Verifier,
		registrationSvc: p.RegistrationSvc,
		checkoutSvc:     p.CheckoutSvc,
		billingSvc:      p.BillingSvc,
		accountSvc:      p.AccountSvc,
		registerLimiter: p.RegisterLimiter,
		log:             p.Log.Named("http.server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.POST("/register", s.RateLimitRegister(), s.Register)
		api.POST("/checkout", s.Checkout)
		api.POST("/stripe/webhook", s.StripeWebhook)

		dashboard := api.Group("/dashboard", s.AuthRequired())
		{
			dashboard.GET("/key-info", s.KeyInfo)
			dashboard.GET("/usage", s.Usage)
			dashboard.GET("/providers", s.ListProviders)
			dashboard.POST("/providers", s.AddProvider)
			dashboard.DELETE("/providers/:provider", s.RemoveProvider)
		}
	}
}
