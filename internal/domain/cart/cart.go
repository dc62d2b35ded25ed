// Package cart defines the read-only cart snapshot the engine evaluates
// discounts against. Snapshots arrive fully resolved from the cart service;
// the engine never loads catalog data itself.
package cart

import (
	"github.com/shopspring/decimal"
)

// Item is a single cart line with its catalog identifiers resolved.
type Item struct {
	ProductID  string
	CategoryID string
	BrandID    string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// LineTotal returns UnitPrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Snapshot is the cart state at evaluation time. UserID is empty for
// anonymous carts. ShippingCost is supplied by the caller and is only
// consumed by free-shipping discounts, never recomputed here.
type Snapshot struct {
	UserID       string
	Items        []Item
	ShippingCost decimal.Decimal
}

// Total returns the merchandise total: the sum of all line totals,
// excluding shipping.
func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}
