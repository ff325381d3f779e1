package core

import (
	"context"
	"fmt"

	"freshledger/internal/pricing"
	"freshledger/pkg/domain"
)

const discountRangeRuleName = "discount_range"

// DiscountRangeRule keeps an active discount strictly inside (0,100) and an
// inactive discount at zero.
func DiscountRangeRule() domain.Rule {
	return discountRangeRule{}
}

type discountRangeRule struct{}

func (discountRangeRule) Name() string { return discountRangeRuleName }

func (discountRangeRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityDiscount {
			continue
		}
		d, ok := change.After.(domain.DiscountState)
		if !ok {
			continue
		}
		switch {
		case d.Active && !pricing.ValidDiscountPercentage(d.Percentage):
			res.Violations = append(res.Violations, block(discountRangeRuleName, domain.EntityDiscount, "", domain.ErrInvalidArgument,
				fmt.Sprintf("discount percentage %d outside (0,100)", d.Percentage)))
		case !d.Active && d.Percentage != 0:
			res.Violations = append(res.Violations, block(discountRangeRuleName, domain.EntityDiscount, "", domain.ErrInvalidArgument,
				fmt.Sprintf("inactive discount carries percentage %d", d.Percentage)))
		}
	}
	return res, nil
}
