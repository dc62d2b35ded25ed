package discount

import (
	"github.com/shopspring/decimal"

	"github.com/cartloom/promo-engine/internal/domain/cart"
)

// ConditionType enumerates what a promotion condition inspects.
type ConditionType string

const (
	ConditionCartTotal        ConditionType = "cart_total"
	ConditionProductQuantity  ConditionType = "product_quantity"
	ConditionCategoryQuantity ConditionType = "category_quantity"
	ConditionProductInCart    ConditionType = "product_in_cart"
	ConditionCategoryInCart   ConditionType = "category_in_cart"
)

// Operator compares an observed cart value against the condition value.
type Operator string

const (
	OpEq  Operator = "eq"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
)

// Condition gates a promotion. Conditions belong to exactly one promotion
// and a promotion applies only when all of its conditions hold.
type Condition struct {
	ID       string
	Type     ConditionType
	Operator Operator
	Value    decimal.Decimal
	ScopeID  string
}

// Evaluate checks the condition against a cart snapshot. Membership types
// ignore Operator and Value. Unknown types and operators fail closed: a
// condition this engine does not recognize never lets a promotion through.
func (c Condition) Evaluate(snap cart.Snapshot) bool {
	switch c.Type {
	case ConditionCartTotal:
		return compare(snap.Total(), c.Operator, c.Value)
	case ConditionProductQuantity:
		var qty int64
		for _, it := range snap.Items {
			if it.ProductID == c.ScopeID {
				qty += int64(it.Quantity)
			}
		}
		return compare(decimal.NewFromInt(qty), c.Operator, c.Value)
	case ConditionCategoryQuantity:
		var qty int64
		for _, it := range snap.Items {
			if it.CategoryID == c.ScopeID {
				qty += int64(it.Quantity)
			}
		}
		return compare(decimal.NewFromInt(qty), c.Operator, c.Value)
	case ConditionProductInCart:
		for _, it := range snap.Items {
			if it.ProductID == c.ScopeID {
				return true
			}
		}
		return false
	case ConditionCategoryInCart:
		for _, it := range snap.Items {
			if it.CategoryID == c.ScopeID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ConditionsSatisfied reports whether every condition of the discount holds
// for the snapshot. Discounts without conditions always pass.
func (d *Discount) ConditionsSatisfied(snap cart.Snapshot) bool {
	for _, c := range d.Conditions {
		if !c.Evaluate(snap) {
			return false
		}
	}
	return true
}

func compare(got decimal.Decimal, op Operator, want decimal.Decimal) bool {
	cmp := got.Cmp(want)
	switch op {
	case OpEq:
		return cmp == 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	default:
		return false
	}
}
