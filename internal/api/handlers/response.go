package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"quota-api/internal/pkg/errors"
)

type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondWithData(w http.ResponseWriter, code int, data interface{}) {
	respondWithJSON(w, code, successResponse{Success: true, Data: data})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

// respondWithServiceError maps the ledger's error taxonomy onto HTTP codes.
// A failed write always surfaces as an error status so the caller knows the
// charge did not land.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "principal or API key not found")
	case stderrors.Is(err, errors.ErrInvalidArgument):
		respondWithError(w, http.StatusBadRequest, "invalid argument")
	case stderrors.Is(err, errors.ErrTransactionConflict):
		respondWithError(w, http.StatusServiceUnavailable, "transaction conflict, retry the request")
	case stderrors.Is(err, errors.ErrStoreUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
