package controllers

import (
	"encoding/json"
	"net/http"

	"quota-api/internal/services"

	"gorm.io/gorm"
)

type HealthCheckResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// HealthCheckHandler checks API health, database connection, and the
// optional snapshot cache.
func HealthCheckHandler(db *gorm.DB, cache *services.RedisCacheService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthCheckResponse{
			Status: "API is running",
			Cache:  "Cache not configured",
		}

		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(r.Context()) != nil {
			response.Database = "Database connection failed"
			respondWithJSON(w, http.StatusInternalServerError, response)
			return
		}
		response.Database = "Database connection is healthy"

		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				response.Cache = "Cache connection failed"
			} else {
				response.Cache = "Cache connection is healthy"
			}
		}

		respondWithJSON(w, http.StatusOK, response)
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
