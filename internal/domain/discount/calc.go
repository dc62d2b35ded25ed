package discount

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cartloom/promo-engine/internal/domain/cart"
)

var hundred = decimal.NewFromInt(100)

// Amount converts one resolved discount into a monetary amount for the
// snapshot, rounded to cents and clamped to the discount's own
// MaxDiscountAmount. Scoped discounts reduce only matching items;
// free shipping refunds the caller-supplied shipping cost as-is.
func Amount(d *Discount, snap cart.Snapshot) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Type {
	case TypePercentage:
		amount = scopedBase(d, snap).Mul(d.Value).Div(hundred)
	case TypeFixedAmount:
		if cartWide(d) {
			amount = d.Value
		} else {
			amount = d.Value.Mul(decimal.NewFromInt(scopedQuantity(d, snap)))
		}
	case TypeFreeShipping:
		amount = snap.ShippingCost
	case TypeBuyXGetY:
		amount = buyXGetYAmount(d, snap)
	}
	amount = floorAtZero(amount.Round(2))
	if d.MaxDiscountAmount.IsPositive() && amount.GreaterThan(d.MaxDiscountAmount) {
		amount = d.MaxDiscountAmount
	}
	return amount
}

// buyXGetYAmount discounts the cheapest GetQuantity matching units out of
// every full group of BuyQuantity+GetQuantity matching units by Value
// percent. Partial groups earn nothing.
func buyXGetYAmount(d *Discount, snap cart.Snapshot) decimal.Decimal {
	if d.BuyQuantity <= 0 || d.GetQuantity <= 0 {
		return decimal.Zero
	}
	var units []decimal.Decimal
	for _, it := range snap.Items {
		if !cartWide(d) && !itemInScope(d, it) {
			continue
		}
		for q := 0; q < it.Quantity; q++ {
			units = append(units, it.UnitPrice)
		}
	}
	groups := len(units) / (d.BuyQuantity + d.GetQuantity)
	if groups == 0 {
		return decimal.Zero
	}
	sort.Slice(units, func(i, j int) bool { return units[i].LessThan(units[j]) })
	amount := decimal.Zero
	for _, price := range units[:groups*d.GetQuantity] {
		amount = amount.Add(price.Mul(d.Value).Div(hundred))
	}
	return amount
}

// ScopedItemsPresent reports whether the cart holds at least one item the
// discount can reduce. Cart-wide discounts trivially pass.
func (d *Discount) ScopedItemsPresent(snap cart.Snapshot) bool {
	if cartWide(d) {
		return true
	}
	for _, it := range snap.Items {
		if itemInScope(d, it) {
			return true
		}
	}
	return false
}

// cartWide reports whether the discount reduces the whole cart. Item
// scopes with no target ids degrade to cart-wide; user scope restricts
// redemption, not the amount.
func cartWide(d *Discount) bool {
	switch d.Scope {
	case ScopeProduct, ScopeCategory, ScopeBrand:
		return len(d.ScopeIDs) == 0
	default:
		return true
	}
}

func itemInScope(d *Discount, it cart.Item) bool {
	var id string
	switch d.Scope {
	case ScopeProduct:
		id = it.ProductID
	case ScopeCategory:
		id = it.CategoryID
	case ScopeBrand:
		id = it.BrandID
	default:
		return true
	}
	for _, sid := range d.ScopeIDs {
		if sid == id {
			return true
		}
	}
	return false
}

func scopedBase(d *Discount, snap cart.Snapshot) decimal.Decimal {
	if cartWide(d) {
		return snap.Total()
	}
	base := decimal.Zero
	for _, it := range snap.Items {
		if itemInScope(d, it) {
			base = base.Add(it.LineTotal())
		}
	}
	return base
}

func scopedQuantity(d *Discount, snap cart.Snapshot) int64 {
	var qty int64
	for _, it := range snap.Items {
		if itemInScope(d, it) {
			qty += int64(it.Quantity)
		}
	}
	return qty
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
