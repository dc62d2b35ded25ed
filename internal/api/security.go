package api

import (
	"net/http"
)

// RequireAPIKey guards mutating endpoints. The raw key arrives in the
// X-API-Key header and is checked against its stored peppered hash.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Code:    http.StatusUnauthorized,
				Message: "missing API key",
			})
			return
		}

		if _, err := h.verifier.Verify(r.Context(), key); err != nil {
			writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}
