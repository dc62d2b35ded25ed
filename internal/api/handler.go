// Package api exposes the discount engine over HTTP. Handlers decode JSON
// requests, delegate to the domain services, and map domain errors onto the
// wire envelope; no business rules live here.
package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartloom/promo-engine/internal/domain/abtest"
	"github.com/cartloom/promo-engine/internal/domain/auth"
	"github.com/cartloom/promo-engine/internal/domain/promo"
)

// Handler carries the domain dependencies shared by all endpoints.
type Handler struct {
	promos   *promo.Service
	assigner *abtest.Assigner
	abtests  abtest.Repository
	verifier *auth.Verifier

	now   func() time.Time
	newID func() string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	promos *promo.Service,
	assigner *abtest.Assigner,
	abtests abtest.Repository,
	verifier *auth.Verifier,
) *Handler {
	return &Handler{
		promos:   promos,
		assigner: assigner,
		abtests:  abtests,
		verifier: verifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}
