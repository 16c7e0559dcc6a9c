package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/structura/aip-gateway/handlers"
)

// Dependencies holds the handlers and collaborators the router wires up
type Dependencies struct {
	Gateway   *handlers.GatewayHandler
	Analytics *handlers.AnalyticsHandler
	DB        handlers.Pinger
}

// Setup configures all application routes and middleware
func Setup(deps *Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", handlers.HealthCheck())
	r.Get("/readyz", handlers.ReadinessCheck(deps.DB))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/requests", deps.Gateway.ProcessRequest)
		r.Get("/analytics", deps.Analytics.GetUsage)
	})

	return r
}
