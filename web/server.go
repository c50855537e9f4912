// Package web provides the HTTP API surface. All endpoints speak JSON;
// the router is chi with standard middleware.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/plutusfin/ledger/app"
	"github.com/plutusfin/ledger/ports"
)

// Handler provides the ledger HTTP API.
type Handler struct {
	gate     *app.QuotaGate
	credits  *app.CreditService
	tokens   *app.TokenService
	webhooks ports.PurchaseEventHandler
	metrics  MetricsConfig
	logger   zerolog.Logger
}

// MetricsConfig controls the /metrics endpoint exposure.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Deps contains dependencies for the HTTP handler.
type Deps struct {
	Gate     *app.QuotaGate
	Credits  *app.CreditService
	Tokens   *app.TokenService
	Webhooks ports.PurchaseEventHandler
	Metrics  MetricsConfig
	Logger   zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		gate:     deps.Gate,
		credits:  deps.Credits,
		tokens:   deps.Tokens,
		webhooks: deps.Webhooks,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Router builds the chi router with all API routes mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.Health)
	if h.metrics.Enabled {
		path := h.metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/owners/{owner}", func(r chi.Router) {
			r.Get("/usage", h.GetUsage)
			r.Get("/usage/{resource}", h.CheckQuota)
			r.Post("/usage/{resource}/charge", h.Charge)

			r.Get("/credits", h.GetCredits)
			r.Post("/credits/consume", h.ConsumeCredits)
			r.Get("/credits/history", h.GetCreditHistory)
		})

		r.Post("/tokens", h.IssueToken)
		r.Post("/tokens/claim", h.ClaimToken)
		r.Get("/share/{token}", h.CheckShare)
	})

	r.Post("/webhooks/payment", h.PaymentWebhook)

	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Router().ServeHTTP(w, r)
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
