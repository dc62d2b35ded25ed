package api

import (
	"net/http"

	"github.com/cartloom/promo-engine/internal/domain/discount"
	"github.com/cartloom/promo-engine/internal/metrics"
)

// ValidateDiscount handles POST /api/discounts/validate. Business rejections
// come back as 200 with valid=false; only malformed requests and
// infrastructure failures produce error statuses.
func (h *Handler) ValidateDiscount(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	d, err := h.promos.ValidateDiscount(r.Context(), req.Code, req.Cart.snapshot())
	if err != nil {
		if kind, ok := discount.KindOf(err); ok {
			metrics.CountFailure(string(kind))
			writeJSON(w, http.StatusOK, validateResponse{
				Valid:   false,
				Kind:    string(kind),
				Message: err.Error(),
			})
			return
		}
		writeError(w, r, err)
		return
	}

	dto := toDiscountDTO(d)
	writeJSON(w, http.StatusOK, validateResponse{Valid: true, Discount: &dto})
}

// GetApplicableDiscounts handles POST /api/discounts/applicable. It returns
// every live promotion and supplied coupon code that fully qualifies for the
// cart; unusable candidates are silently dropped.
func (h *Handler) GetApplicableDiscounts(w http.ResponseWriter, r *http.Request) {
	var req applicableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	applicable, err := h.promos.GetApplicableDiscounts(r.Context(), req.Cart.snapshot(), req.Codes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]discountDTO, len(applicable))
	for i, d := range applicable {
		dtos[i] = toDiscountDTO(d)
	}
	writeJSON(w, http.StatusOK, applicableResponse{Discounts: dtos})
}

// CalculateDiscounts handles POST /api/discounts/calculate: stacking
// resolution plus exact amounts for everything that survives.
func (h *Handler) CalculateDiscounts(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	quote, err := h.promos.CalculateDiscounts(r.Context(), req.Cart.snapshot(), req.Codes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeQuote(w, toCalculateResponse(quote))
}

// ApplyDiscount handles POST /api/discounts/apply. It re-validates the
// discount and atomically consumes one use for the order; replaying an
// already recorded order reports alreadyApplied instead of failing.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	res, err := h.promos.ApplyDiscount(r.Context(), req.DiscountID, req.UserID, req.OrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	outcome := "reserved"
	if res.AlreadyApplied {
		outcome = "replayed"
	}
	metrics.Reservations.WithLabelValues(outcome).Inc()

	writeJSON(w, http.StatusOK, applyResponse{
		Applied:        res.Applied,
		AlreadyApplied: res.AlreadyApplied,
	})
}
