package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
	"github.com/kyodo-analytics/finmap/pkg/observability"
)

// SetupRouter configures all routes and returns the HTTP handler
func SetupRouter(deps *Dependencies) http.Handler {
	router := mux.NewRouter()

	routeName := func(r *http.Request) string {
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				return tmpl
			}
		}
		return r.URL.Path
	}

	tracer := otel.GetTracerProvider().Tracer("finmap/api")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(
		observability.MetricsMiddleware(routeName),
		observability.TracingMiddleware(tracer, routeName),
	)

	deps.InstitutionHandler.RegisterRoutes(apiRouter)
	deps.UploadHandler.RegisterRoutes(apiRouter)
	deps.MappingHandler.RegisterRoutes(apiRouter)
	deps.AggregationHandler.RegisterRoutes(apiRouter)
	deps.ChartHandler.RegisterRoutes(apiRouter)
	deps.Logger.Info("API routes configured", "prefix", "/api/v1")

	registerUtilityRoutes(router, deps)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           7200,
	})

	return corsHandler.Handler(router)
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(router *mux.Router, deps *Dependencies) {
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := deps.DB.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, writeErr := w.Write([]byte("database unhealthy")); writeErr != nil {
				deps.Logger.Error("failed to write health response", slog.Any("error", writeErr))
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			deps.Logger.Error("failed to write health response", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered health check", "path", "/health")

	// Extended health with details on dependencies/env
	router.HandleFunc("/health/details", func(w http.ResponseWriter, _ *http.Request) {
		type status struct {
			Status string `json:"status"`
			Detail string `json:"detail,omitempty"`
		}
		result := map[string]status{
			"db":      {Status: "ok"},
			"catalog": {Status: "ok"},
			"env":     {Status: "ok"},
			"ready":   {Status: "ok"},
		}

		if err := deps.DB.Health(); err != nil {
			result["db"] = status{Status: "fail", Detail: err.Error()}
			result["ready"] = status{Status: "fail", Detail: "db unavailable"}
		}

		empty := true
		for _, st := range chart.AllStatementTypes {
			if deps.Catalog.Size(st) > 0 {
				empty = false
				break
			}
		}
		if empty {
			result["catalog"] = status{Status: "warn", Detail: "standard account catalog not seeded"}
		}

		if os.Getenv("GEMINI_API_KEY") == "" {
			result["env"] = status{Status: "warn", Detail: "GEMINI_API_KEY missing; AI mapping disabled"}
		}

		for _, v := range result {
			if v.Status == "fail" {
				w.WriteHeader(http.StatusServiceUnavailable)
				if err := json.NewEncoder(w).Encode(result); err != nil {
					deps.Logger.Error("failed to encode health details", slog.Any("error", err))
				}
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			deps.Logger.Error("failed to encode health details", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered health details", "path", "/health/details")

	router.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			deps.Logger.Error("failed to write readiness response", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered readiness check", "path", "/ready")

	router.Handle("/metrics", promhttp.Handler())
	deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
}
