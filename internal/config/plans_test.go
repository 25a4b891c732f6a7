package config

import "testing"

func TestDefaultPlanCatalog(t *testing.T) {
	catalog := DefaultPlanCatalog()

	basic, ok := catalog.Lookup("basic")
	if !ok || basic.UnitAmount != 500 || basic.Currency != "jpy" || basic.Interval != "month" {
		t.Fatalf("unexpected basic price: %+v", basic)
	}

	pro, ok := catalog.Lookup("PRO")
	if !ok || pro.UnitAmount != 1500 {
		t.Fatalf("lookup must be case insensitive, got %+v ok=%v", pro, ok)
	}

	for _, plan := range []string{"free", "", "enterprise"} {
		if _, ok := catalog.Lookup(plan); ok {
			t.Fatalf("plan %q must not be purchasable", plan)
		}
	}
}

func TestStaticPlanCatalogHolder(t *testing.T) {
	holder := NewStaticPlanCatalogHolder(PlanCatalog{
		Plans: []PlanPrice{{Plan: "basic", UnitAmount: 700, Currency: "jpy", Interval: "month", Name: "Basic"}},
	})

	price, ok := holder.Current().Lookup("basic")
	if !ok || price.UnitAmount != 700 {
		t.Fatalf("unexpected price: %+v", price)
	}
}
