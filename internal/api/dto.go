package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cartloom/promo-engine/internal/domain/cart"
	"github.com/cartloom/promo-engine/internal/domain/discount"
	"github.com/cartloom/promo-engine/internal/domain/promo"
)

type cartItemDTO struct {
	ProductID  string          `json:"productId"`
	CategoryID string          `json:"categoryId,omitempty"`
	BrandID    string          `json:"brandId,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
}

type cartDTO struct {
	UserID       string          `json:"userId,omitempty"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Items        []cartItemDTO   `json:"items"`
}

func (c *cartDTO) snapshot() cart.Snapshot {
	items := make([]cart.Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = cart.Item{
			ProductID:  it.ProductID,
			CategoryID: it.CategoryID,
			BrandID:    it.BrandID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		}
	}
	return cart.Snapshot{
		UserID:       c.UserID,
		Items:        items,
		ShippingCost: c.ShippingCost,
	}
}

// discountDTO is the public projection of a discount. Usage counters and
// eligibility internals stay server-side.
type discountDTO struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Code        string          `json:"code,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        string          `json:"type"`
	Value       decimal.Decimal `json:"value"`
	Scope       string          `json:"scope"`
	ScopeIDs    []string        `json:"scopeIds,omitempty"`
	Stackable   bool            `json:"stackable"`
	Priority    int             `json:"priority,omitempty"`
}

func toDiscountDTO(d *discount.Discount) discountDTO {
	return discountDTO{
		ID:          d.ID,
		Kind:        string(d.Kind),
		Code:        d.Code,
		Name:        d.Name,
		Description: d.Description,
		Type:        string(d.Type),
		Value:       d.Value,
		Scope:       string(d.Scope),
		ScopeIDs:    d.ScopeIDs,
		Stackable:   d.Stackable,
		Priority:    d.Priority,
	}
}

type validateRequest struct {
	Code string  `json:"code"`
	Cart cartDTO `json:"cart"`
}

// validateResponse is always served with status 200: an unusable discount is
// an answer, not a transport failure. Kind and Message are set when Valid is
// false.
type validateResponse struct {
	Valid    bool         `json:"valid"`
	Discount *discountDTO `json:"discount,omitempty"`
	Kind     string       `json:"kind,omitempty"`
	Message  string       `json:"message,omitempty"`
}

type applicableRequest struct {
	Cart  cartDTO  `json:"cart"`
	Codes []string `json:"codes,omitempty"`
}

type applicableResponse struct {
	Discounts []discountDTO `json:"discounts"`
}

type calculateRequest struct {
	Cart  cartDTO  `json:"cart"`
	Codes []string `json:"codes,omitempty"`
}

type quoteLineDTO struct {
	DiscountID string          `json:"discountId"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
}

type calculateResponse struct {
	Lines         []quoteLineDTO  `json:"lines"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	FinalTotal    decimal.Decimal `json:"finalTotal"`
}

func toCalculateResponse(q *promo.Quote) calculateResponse {
	lines := make([]quoteLineDTO, len(q.Lines))
	for i, l := range q.Lines {
		lines[i] = quoteLineDTO{
			DiscountID: l.DiscountID,
			Name:       l.Name,
			Kind:       string(l.Kind),
			Type:       string(l.Type),
			Amount:     l.Amount,
		}
	}
	return calculateResponse{
		Lines:         lines,
		TotalDiscount: q.TotalDiscount,
		FinalTotal:    q.FinalTotal,
	}
}

type applyRequest struct {
	DiscountID string `json:"discountId"`
	UserID     string `json:"userId,omitempty"`
	OrderID    string `json:"orderId"`
}

type applyResponse struct {
	Applied        bool `json:"applied"`
	AlreadyApplied bool `json:"alreadyApplied"`
}

type variantDTO struct {
	ID                string `json:"id,omitempty"`
	Name              string `json:"name"`
	DiscountID        string `json:"discountId,omitempty"`
	TrafficPercentage int    `json:"trafficPercentage"`
}

type createTestRequest struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Variants    []variantDTO `json:"variants"`
}

type testResponse struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Variants    []variantDTO `json:"variants"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type assignRequest struct {
	UserID string `json:"userId"`
}

type assignmentResponse struct {
	TestID      string    `json:"testId"`
	UserID      string    `json:"userId"`
	VariantID   string    `json:"variantId"`
	VariantName string    `json:"variantName,omitempty"`
	DiscountID  string    `json:"discountId,omitempty"`
	AssignedAt  time.Time `json:"assignedAt"`
}
