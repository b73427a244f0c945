/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/statements/*           Monthly P&L statements
  /api/items, /api/recipes    Inventory catalog
  /api/count-sessions/*       Physical counts and analysis
  /api/variance-reports/*     Analysis results
  /api/waste-detections/*     Waste/theft event lifecycle
  /api/par-recommendations/*  Stocking recommendations

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Statement routes
		r.Route("/statements", func(r chi.Router) {
			r.Get("/{restaurant}", h.ListStatements)
			r.Route("/{restaurant}/{year}/{month}", func(r chi.Router) {
				r.Put("/", h.SaveStatement)
				r.Get("/", h.GetStatement)
				r.Post("/lock", h.LockStatement)
				r.Get("/report", h.DownloadStatementReport)
			})
		})

		// Catalog routes
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
		})
		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", h.ListRecipes)
			r.Post("/", h.CreateRecipe)
		})

		// Count session routes
		r.Route("/count-sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.OpenSession)
			r.Get("/{id}", h.GetSession)
			r.Post("/{id}/lines", h.AppendLine)
			r.Post("/{id}/close", h.CloseSession)
			r.Post("/{id}/cancel", h.CancelSession)
			r.Post("/{id}/analyze", h.AnalyzeSession)
		})

		// Variance report routes
		r.Route("/variance-reports", func(r chi.Router) {
			r.Get("/", h.ListReports)
			r.Get("/{id}", h.GetReport)
		})

		// Waste detection routes
		r.Route("/waste-detections", func(r chi.Router) {
			r.Get("/", h.ListDetections)
			r.Get("/{id}", h.GetDetection)
			r.Post("/{id}/status", h.UpdateDetectionStatus)
		})

		// Par recommendation routes
		r.Route("/par-recommendations", func(r chi.Router) {
			r.Post("/{item}", h.RecommendPar)
			r.Get("/{item}", h.ListRecommendations)
			r.Get("/{item}/active", h.GetActiveRecommendation)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
