package core

import (
	"context"
	"fmt"
	"strings"

	"freshledger/pkg/domain"
)

const productValidityRuleName = "product_validity"

// ProductValidityRule blocks creations with missing or inconsistent fields
// and updates that touch immutable fields or drive counters negative.
func ProductValidityRule() domain.Rule {
	return productValidityRule{}
}

type productValidityRule struct{}

func (productValidityRule) Name() string { return productValidityRuleName }

func (productValidityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		before, after, hasBefore, ok := productChange(change)
		if !ok {
			continue
		}
		switch change.Action {
		case domain.ActionCreate:
			if fields := invalidCreationFields(after); len(fields) > 0 {
				res.Violations = append(res.Violations, block(productValidityRuleName, domain.EntityProduct, after.ID, domain.ErrInvalidProduct,
					fmt.Sprintf("product %s has invalid fields: %s", after.ID, strings.Join(fields, ", "))))
			}
		case domain.ActionUpdate:
			if !hasBefore {
				continue
			}
			if fields := changedImmutableFields(before, after); len(fields) > 0 {
				res.Violations = append(res.Violations, block(productValidityRuleName, domain.EntityProduct, after.ID, domain.ErrInvalidProduct,
					fmt.Sprintf("product %s cannot change immutable fields: %s", after.ID, strings.Join(fields, ", "))))
			}
			if after.Quantity < 0 {
				res.Violations = append(res.Violations, block(productValidityRuleName, domain.EntityProduct, after.ID, domain.ErrInvalidArgument,
					fmt.Sprintf("product %s quantity %d is negative", after.ID, after.Quantity)))
			}
			if after.Price < 0 {
				res.Violations = append(res.Violations, block(productValidityRuleName, domain.EntityProduct, after.ID, domain.ErrInvalidArgument,
					fmt.Sprintf("product %s price %d is negative", after.ID, after.Price)))
			}
		}
	}
	return res, nil
}

func invalidCreationFields(p domain.Product) []string {
	var fields []string
	if strings.TrimSpace(p.Name) == "" {
		fields = append(fields, "name")
	}
	if strings.TrimSpace(p.Manufacturer) == "" {
		fields = append(fields, "manufacturer")
	}
	if !p.ManufactureDate.Before(p.ExpiryDate) {
		fields = append(fields, "manufacture_date")
	}
	if !p.Category.Valid() {
		fields = append(fields, "category")
	}
	if p.Quantity <= 0 {
		fields = append(fields, "quantity")
	}
	if p.Price <= 0 {
		fields = append(fields, "price")
	}
	if p.Location != domain.LocationManufacturer {
		fields = append(fields, "location")
	}
	return fields
}

func changedImmutableFields(before, after domain.Product) []string {
	var fields []string
	if before.Name != after.Name {
		fields = append(fields, "name")
	}
	if before.Manufacturer != after.Manufacturer {
		fields = append(fields, "manufacturer")
	}
	if !before.ManufactureDate.Equal(after.ManufactureDate) {
		fields = append(fields, "manufacture_date")
	}
	if !before.ExpiryDate.Equal(after.ExpiryDate) {
		fields = append(fields, "expiry_date")
	}
	if before.Category != after.Category {
		fields = append(fields, "category")
	}
	if before.IsQualityProduct != after.IsQualityProduct {
		fields = append(fields, "is_quality_product")
	}
	return fields
}
