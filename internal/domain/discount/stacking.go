package discount

import "sort"

// StackingPolicy is the injected global stacking configuration. The zero
// MaxStackedDiscounts means no ceiling.
type StackingPolicy struct {
	AllowPercentageStacking bool
	AllowFixedStacking      bool
	MaxStackedDiscounts     int
}

// Resolve selects the subset of individually valid candidates that may
// combine on one order. Percentage and fixed-amount buckets collapse to
// their single best candidate unless the policy allows stacking, in which
// case every candidate flagged stackable survives. At most one free
// shipping discount is kept. Buy-x-get-y discounts form their own bucket
// and combine with everything. The result is a canonical set, sorted by
// id, independent of input order. Unknown discount types are dropped.
func Resolve(policy StackingPolicy, candidates []*Discount) []*Discount {
	var percentage, fixed, shipping, bxgy []*Discount
	for _, d := range candidates {
		switch d.Type {
		case TypePercentage:
			percentage = append(percentage, d)
		case TypeFixedAmount:
			fixed = append(fixed, d)
		case TypeFreeShipping:
			shipping = append(shipping, d)
		case TypeBuyXGetY:
			bxgy = append(bxgy, d)
		}
	}

	resolved := make([]*Discount, 0, len(candidates))
	resolved = append(resolved, resolveBucket(percentage, policy.AllowPercentageStacking)...)
	resolved = append(resolved, resolveBucket(fixed, policy.AllowFixedStacking)...)
	if best := bestOf(shipping); best != nil {
		resolved = append(resolved, best)
	}
	resolved = append(resolved, bxgy...)

	if policy.MaxStackedDiscounts > 0 && len(resolved) > policy.MaxStackedDiscounts {
		sort.Slice(resolved, func(i, j int) bool { return keepBefore(resolved[i], resolved[j]) })
		resolved = resolved[:policy.MaxStackedDiscounts]
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].ID < resolved[j].ID })
	return resolved
}

func resolveBucket(bucket []*Discount, allowStacking bool) []*Discount {
	if len(bucket) == 0 {
		return nil
	}
	if !allowStacking {
		return []*Discount{bestOf(bucket)}
	}
	var stackable []*Discount
	for _, d := range bucket {
		if d.Stackable {
			stackable = append(stackable, d)
		}
	}
	if len(stackable) > 0 {
		return stackable
	}
	return []*Discount{bestOf(bucket)}
}

// bestOf picks the bucket winner: highest priority, then highest value,
// ties broken by earliest id. Coupons carry priority zero, so among
// coupons the value decides.
func bestOf(bucket []*Discount) *Discount {
	var best *Discount
	for _, d := range bucket {
		if best == nil || betterThan(d, best) {
			best = d
		}
	}
	return best
}

func betterThan(a, b *Discount) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if cmp := a.Value.Cmp(b.Value); cmp != 0 {
		return cmp > 0
	}
	return a.ID < b.ID
}

// keepBefore orders candidates by who survives the stacking ceiling:
// lowest value drops first, then lowest priority, then latest id.
func keepBefore(a, b *Discount) bool {
	if cmp := a.Value.Cmp(b.Value); cmp != 0 {
		return cmp > 0
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}
