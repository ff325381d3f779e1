package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"freshledger/pkg/domain"
)

func TestDefaultRulesEngineRegistersPolicySet(t *testing.T) {
	names := NewDefaultRulesEngine().Rules()
	want := []string{"product_validity", "location_transition", "discount_range"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	if len(NewRulesEngine().Rules()) != 0 {
		t.Fatalf("expected empty engine")
	}
}

func validProduct() domain.Product {
	in := validInput("p-1")
	return in.product("p-1")
}

func TestProductValidityRuleBlocksImmutableFieldChanges(t *testing.T) {
	before := validProduct()
	after := before
	after.Name = "Renamed"
	after.IsQualityProduct = !before.IsQualityProduct
	res, err := ProductValidityRule().Evaluate(context.Background(), nil, []domain.Change{
		{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: after},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || !errors.Is(res.Violations[0].Err, domain.ErrInvalidProduct) {
		t.Fatalf("expected one invalid product violation, got %+v", res.Violations)
	}
	if msg := res.Violations[0].Message; msg != "product p-1 cannot change immutable fields: name, is_quality_product" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestProductValidityRuleBlocksNegativeCounters(t *testing.T) {
	before := validProduct()
	after := before
	after.Quantity = -1
	after.Price = -1
	res, _ := ProductValidityRule().Evaluate(context.Background(), nil, []domain.Change{
		{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: after},
	})
	if len(res.Violations) != 2 {
		t.Fatalf("expected quantity and price violations, got %+v", res.Violations)
	}
	for _, v := range res.Violations {
		if !errors.Is(v.Err, domain.ErrInvalidArgument) || v.Severity != domain.SeverityBlock {
			t.Fatalf("unexpected violation %+v", v)
		}
	}
}

func TestProductValidityRuleListsEveryFailingField(t *testing.T) {
	p := validProduct()
	p.Name = ""
	p.Price = 0
	p.Location = domain.LocationRetailer
	res, _ := ProductValidityRule().Evaluate(context.Background(), nil, []domain.Change{
		{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: p},
	})
	if len(res.Violations) != 1 {
		t.Fatalf("expected a single violation, got %+v", res.Violations)
	}
	if msg := res.Violations[0].Message; msg != "product p-1 has invalid fields: name, price, location" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestRulesIgnoreUnrelatedChanges(t *testing.T) {
	changes := []domain.Change{
		{Entity: domain.EntityRoles, Action: domain.ActionUpdate, Before: domain.RoleTable{}, After: domain.RoleTable{Owner: "o"}},
		{Entity: domain.EntityProduct, Action: domain.ActionUpdate, After: "not a product"},
	}
	for _, rule := range []domain.Rule{ProductValidityRule(), LocationTransitionRule(), DiscountRangeRule()} {
		res, err := rule.Evaluate(context.Background(), nil, changes)
		if err != nil || len(res.Violations) != 0 {
			t.Fatalf("%s: expected no violations, got %+v, %v", rule.Name(), res.Violations, err)
		}
	}
}

func TestLocationTransitionRule(t *testing.T) {
	before := validProduct()
	before.Location = domain.LocationRetailer

	tests := []struct {
		name  string
		after domain.Location
		want  int
	}{
		{"backward", domain.LocationDistributor, 1},
		{"same", domain.LocationRetailer, 0},
		{"forward", domain.LocationCustomer, 0},
		{"unknown", domain.Location(8), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			after := before
			after.Location = tc.after
			res, _ := LocationTransitionRule().Evaluate(context.Background(), nil, []domain.Change{
				{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: after},
			})
			if len(res.Violations) != tc.want {
				t.Fatalf("expected %d violations, got %+v", tc.want, res.Violations)
			}
			if tc.want > 0 && !errors.Is(res.Violations[0].Err, domain.ErrInvalidTransition) {
				t.Fatalf("expected invalid transition kind, got %v", res.Violations[0].Err)
			}
		})
	}
}

func TestDiscountRangeRule(t *testing.T) {
	tests := []struct {
		state domain.DiscountState
		want  int
	}{
		{domain.DiscountState{Active: true, Percentage: 50}, 0},
		{domain.DiscountState{Active: true, Percentage: 0}, 1},
		{domain.DiscountState{Active: true, Percentage: 100}, 1},
		{domain.DiscountState{}, 0},
		{domain.DiscountState{Percentage: 10}, 1},
	}
	for _, tc := range tests {
		res, _ := DiscountRangeRule().Evaluate(context.Background(), nil, []domain.Change{
			{Entity: domain.EntityDiscount, Action: domain.ActionUpdate, After: tc.state},
		})
		if len(res.Violations) != tc.want {
			t.Fatalf("%+v: expected %d violations, got %+v", tc.state, tc.want, res.Violations)
		}
	}
}
