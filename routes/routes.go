package routes

import (
	"net/http"
	"time"

	"github.com/amebo/notes-backend/app"
	authmw "github.com/amebo/notes-backend/middleware"
	"github.com/amebo/notes-backend/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	h := deps.Handlers

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", h.Health.HandleHealth)
	r.Get("/readyz", h.Health.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		// Vendor-facing routes carry their own verification
		r.Post("/webhooks/{provider}", h.Payments.HandleWebhook)
		r.Get("/payments/paystack/callback", h.Payments.HandlePaystackCallback)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.Route("/ai", func(r chi.Router) {
				r.Post("/summarize", h.AI.HandleSummarize)
				r.Post("/organize", h.AI.HandleOrganize)
				r.Post("/transcribe", h.AI.HandleTranscribe)
				r.Post("/chat", h.AI.HandleChat)
				r.Post("/embeddings", h.AI.HandleEmbed)
			})

			r.Get("/search", h.Search.HandleSearch)
			r.Get("/usage", h.AI.HandleUsage)

			r.Route("/payments", func(r chi.Router) {
				r.Post("/checkout", h.Payments.HandleCheckout)
				r.Post("/portal", h.Payments.HandlePortal)
				r.Get("/subscriptions/{id}", h.Payments.HandleGetSubscription)
				r.Post("/subscriptions/{id}/cancel", h.Payments.HandleCancelSubscription)
			})

			// Provider switching (require admin role)
			r.Route("/admin/providers", func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole(authmw.RoleAdmin))
				r.Get("/", h.Admin.HandleListProviders)
				r.Put("/ai", h.Admin.HandleSetAIProvider)
				r.Put("/payments", h.Admin.HandleSetPaymentProvider)
				r.Post("/payments/{name}/enable", h.Admin.HandleEnablePaymentProvider)
				r.Post("/payments/{name}/disable", h.Admin.HandleDisablePaymentProvider)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
