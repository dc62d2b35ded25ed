package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cartloom/promo-engine/internal/domain/abtest"
	"github.com/cartloom/promo-engine/internal/metrics"
)

// CreateABTest handles POST /api/abtests. The traffic split is validated
// here, at creation time; assignment never re-checks it.
func (h *Handler) CreateABTest(w http.ResponseWriter, r *http.Request) {
	var req createTestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "test name required")
		return
	}
	if len(req.Variants) == 0 {
		writeBadRequest(w, "at least one variant required")
		return
	}

	t := &abtest.Test{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   h.now(),
	}
	if t.ID == "" {
		t.ID = h.newID()
	}
	t.Variants = make([]abtest.Variant, len(req.Variants))
	for i, v := range req.Variants {
		id := v.ID
		if id == "" {
			id = h.newID()
		}
		t.Variants[i] = abtest.Variant{
			ID:                id,
			TestID:            t.ID,
			Name:              v.Name,
			DiscountID:        v.DiscountID,
			TrafficPercentage: v.TrafficPercentage,
			Position:          i,
		}
	}

	if err := t.ValidateTraffic(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.abtests.CreateTest(r.Context(), t); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTestResponse(t))
}

// AssignVariant handles POST /api/abtests/{testID}/assignments. Repeated
// calls for the same user return the persisted variant.
func (h *Handler) AssignVariant(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")

	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	a, err := h.assigner.Assign(r.Context(), testID, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := assignmentResponse{
		TestID:     a.TestID,
		UserID:     a.UserID,
		VariantID:  a.VariantID,
		AssignedAt: a.AssignedAt,
	}
	t, err := h.abtests.GetTest(r.Context(), testID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, v := range t.Variants {
		if v.ID == a.VariantID {
			resp.VariantName = v.Name
			resp.DiscountID = v.DiscountID
			break
		}
	}

	metrics.Assignments.WithLabelValues(a.TestID).Inc()
	writeJSON(w, http.StatusOK, resp)
}

func toTestResponse(t *abtest.Test) testResponse {
	variants := make([]variantDTO, len(t.Variants))
	for i, v := range t.Variants {
		variants[i] = variantDTO{
			ID:                v.ID,
			Name:              v.Name,
			DiscountID:        v.DiscountID,
			TrafficPercentage: v.TrafficPercentage,
		}
	}
	return testResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Variants:    variants,
		CreatedAt:   t.CreatedAt,
	}
}
