package api

import (
	"quota-api/internal/api/controllers"
	"quota-api/internal/api/handlers"
	"quota-api/internal/middleware"
	"quota-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func SetupRoutes(db *gorm.DB, cache *services.RedisCacheService, usageHandler *handlers.UsageHandler, authSecret string) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestLogger)

	router.HandleFunc("/health", controllers.HealthCheckHandler(db, cache)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	if authSecret != "" {
		apiRouter.Use(middleware.ServiceAuthMiddleware(authSecret))
	}

	apiRouter.HandleFunc("/usage", usageHandler.PeekUsage).Methods("GET")
	apiRouter.HandleFunc("/usage/charge", usageHandler.ChargeUsage).Methods("POST")
	apiRouter.HandleFunc("/usage/keys/{id}", usageHandler.GetKeyUsage).Methods("GET")

	return router
}
