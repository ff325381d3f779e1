package core

import (
	"context"
	"fmt"

	"freshledger/pkg/domain"
)

const locationTransitionRuleName = "location_transition"

// LocationTransitionRule blocks backward supply-chain moves. Staying in place
// is allowed; Customer is terminal because nothing ranks above it.
func LocationTransitionRule() domain.Rule {
	return locationTransitionRule{}
}

type locationTransitionRule struct{}

func (locationTransitionRule) Name() string { return locationTransitionRuleName }

func (locationTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		before, after, hasBefore, ok := productChange(change)
		if !ok || !hasBefore {
			continue
		}
		if !after.Location.Valid() {
			res.Violations = append(res.Violations, block(locationTransitionRuleName, domain.EntityProduct, after.ID, domain.ErrInvalidTransition,
				fmt.Sprintf("product %s moved to unknown %s", after.ID, after.Location)))
			continue
		}
		if after.Location < before.Location {
			res.Violations = append(res.Violations, block(locationTransitionRuleName, domain.EntityProduct, after.ID, domain.ErrInvalidTransition,
				fmt.Sprintf("cannot move product %s from %s back to %s", after.ID, before.Location, after.Location)))
		}
	}
	return res, nil
}
