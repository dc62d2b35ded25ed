package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cartloom/promo-engine/pkg/health"
	"github.com/cartloom/promo-engine/pkg/httpmiddleware"
)

// RouterConfig carries the transport-level settings for the HTTP surface.
type RouterConfig struct {
	CORS      httpmiddleware.CORSConfig
	RateLimit httpmiddleware.RateLimitConfig
}

// NewRouter assembles the API router: middleware chain, discount and
// experiment endpoints, health probes and the Prometheus scrape endpoint.
// The context bounds the rate limiter's cleanup goroutine and supplies the
// base logger injected into every request.
func NewRouter(ctx context.Context, cfg RouterConfig, h *Handler, healthSvc *health.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.InjectLogger(zctx.From(ctx)))
	r.Use(httpmiddleware.Recovery())
	r.Use(httpmiddleware.Logging())
	r.Use(httpmiddleware.CORS(cfg.CORS))
	r.Use(httpmiddleware.RateLimitWithCleanup(ctx, cfg.RateLimit))

	r.Route("/api", func(r chi.Router) {
		r.Route("/discounts", func(r chi.Router) {
			r.Post("/validate", instrument("validate", h.ValidateDiscount))
			r.Post("/applicable", instrument("applicable", h.GetApplicableDiscounts))
			r.Post("/calculate", instrument("calculate", h.CalculateDiscounts))
			r.With(h.RequireAPIKey).Post("/apply", instrument("apply", h.ApplyDiscount))
		})
		r.Route("/abtests", func(r chi.Router) {
			r.With(h.RequireAPIKey).Post("/", h.CreateABTest)
			r.Post("/{testID}/assignments", instrument("assign", h.AssignVariant))
		})
	})

	r.Get("/livez", healthSvc.HandleLive)
	r.Get("/readyz", healthSvc.HandleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
