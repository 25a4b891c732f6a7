package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanPrice describes one purchasable tier as presented to Stripe.
type PlanPrice struct {
	Plan       string `mapstructure:"plan" json:"plan"`
	UnitAmount int64  `mapstructure:"unitAmount" json:"unit_amount"`
	Currency   string `mapstructure:"currency" json:"currency"`
	Interval   string `mapstructure:"interval" json:"interval"`
	Name       string `mapstructure:"name" json:"name"`
}

// PlanCatalog is the set of paid tiers. The free tier never appears here;
// it is not purchasable.
type PlanCatalog struct {
	Plans []PlanPrice `mapstructure:"plans"`
}

// DefaultPlanCatalog mirrors the fixed monthly JPY pricing of the
// hosted offering.
func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []PlanPrice{
			{Plan: "basic", UnitAmount: 500, Currency: "jpy", Interval: "month", Name: "zerocost Basic"},
			{Plan: "pro", UnitAmount: 1500, Currency: "jpy", Interval: "month", Name: "zerocost Pro"},
		},
	}
}

// Lookup returns the price entry for a plan, or false when the plan is
// not purchasable.
func (c PlanCatalog) Lookup(plan string) (PlanPrice, bool) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	for _, p := range c.Plans {
		if p.Plan == plan {
			return p, true
		}
	}
	return PlanPrice{}, false
}

func (c PlanCatalog) validate() error {
	if len(c.Plans) == 0 {
		return errors.New("plan catalog is empty")
	}
	seen := map[string]struct{}{}
	for _, p := range c.Plans {
		plan := strings.ToLower(strings.TrimSpace(p.Plan))
		if plan == "" || plan == "free" {
			return errors.New("plan catalog contains an invalid plan name")
		}
		if _, dup := seen[plan]; dup {
			return errors.New("plan catalog contains a duplicate plan")
		}
		seen[plan] = struct{}{}
		if p.UnitAmount <= 0 {
			return errors.New("plan catalog contains a non-positive price")
		}
	}
	return nil
}

// PlanCatalogHolder serves the current catalog and hot-reloads it when the
// mounted config file changes.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/zerocost")
	v.AddConfigPath(".")

	holder := &PlanCatalogHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultPlanCatalog())
		return holder, nil
	}

	catalog, err := unmarshalCatalog(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	v.OnConfigChange(func(_ fsnotify.Event) {
		next, err := unmarshalCatalog(v)
		if err != nil {
			if log != nil {
				log.Warn("ignoring invalid plan catalog reload", zap.Error(err))
			}
			return
		}
		holder.current.Store(next)
		if log != nil {
			log.Info("plan catalog reloaded")
		}
	})
	v.WatchConfig()

	return holder, nil
}

// Current returns the catalog in effect.
func (h *PlanCatalogHolder) Current() PlanCatalog {
	if h == nil {
		return DefaultPlanCatalog()
	}
	if cat, ok := h.current.Load().(PlanCatalog); ok {
		return cat
	}
	return DefaultPlanCatalog()
}

// NewStaticPlanCatalogHolder wraps a fixed catalog, for tests.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func unmarshalCatalog(v *viper.Viper) (PlanCatalog, error) {
	var catalog PlanCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return PlanCatalog{}, err
	}
	if err := catalog.validate(); err != nil {
		return PlanCatalog{}, err
	}
	return catalog, nil
}
