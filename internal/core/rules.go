package core

import "freshledger/pkg/domain"

type (
	// Rule aliases domain.Rule.
	Rule = domain.Rule
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Result aliases domain.Result.
	Result = domain.Result
	// Change aliases domain.Change.
	Change = domain.Change
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in registry
// policy set: product field validity, forward-only location moves and the
// discount range.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(ProductValidityRule())
	engine.Register(LocationTransitionRule())
	engine.Register(DiscountRangeRule())
	return engine
}

func productChange(change Change) (before, after domain.Product, hasBefore, ok bool) {
	if change.Entity != domain.EntityProduct {
		return domain.Product{}, domain.Product{}, false, false
	}
	after, ok = change.After.(domain.Product)
	if !ok {
		return domain.Product{}, domain.Product{}, false, false
	}
	before, hasBefore = change.Before.(domain.Product)
	return before, after, hasBefore, true
}

func block(rule string, entity domain.EntityType, id string, kind error, msg string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id,
		Err:      kind,
	}
}
