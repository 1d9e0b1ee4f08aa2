package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"quota-api/internal/logger"
	"quota-api/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type UsageHandler struct {
	ledgerService services.UsageLedgerService
	apiKeyService services.APIKeyService
}

func NewUsageHandler(ledgerService services.UsageLedgerService, apiKeyService services.APIKeyService) *UsageHandler {
	return &UsageHandler{
		ledgerService: ledgerService,
		apiKeyService: apiKeyService,
	}
}

type chargeRequest struct {
	PrincipalID string `json:"principalId"`
	APIKeyID    string `json:"apiKeyId,omitempty"`
	Cost        *int64 `json:"cost,omitempty"`
}

// ChargeUsage records one billable request against the principal and,
// when apiKeyId is given, against that key in the same operation.
func (h *UsageHandler) ChargeUsage(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principalID, err := uuid.Parse(req.PrincipalID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid principalId")
		return
	}

	var apiKeyID *uuid.UUID
	if req.APIKeyID != "" {
		id, err := uuid.Parse(req.APIKeyID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid apiKeyId")
			return
		}
		apiKeyID = &id
	}

	cost := int64(1)
	if req.Cost != nil {
		cost = *req.Cost
	}

	snapshot, err := h.ledgerService.Charge(r.Context(), principalID, apiKeyID, cost)
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"error":     err,
			"principal": principalID,
		}).Error("Failed to charge usage")
		respondWithServiceError(w, err)
		return
	}

	respondWithData(w, http.StatusOK, snapshot)
}

// PeekUsage returns today's snapshot without charging. Crossing a day
// boundary it persists the rollover, which wasReset reports.
func (h *UsageHandler) PeekUsage(w http.ResponseWriter, r *http.Request) {
	principalID, err := uuid.Parse(r.URL.Query().Get("principalId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid principalId")
		return
	}

	snapshot, err := h.ledgerService.Peek(r.Context(), principalID)
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"error":     err,
			"principal": principalID,
		}).Error("Failed to peek usage")
		respondWithServiceError(w, err)
		return
	}

	respondWithData(w, http.StatusOK, snapshot)
}

type keyUsageResponse struct {
	ID       string  `json:"id"`
	OwnerID  string  `json:"ownerId"`
	Usage    int64   `json:"usage"`
	LastUsed *string `json:"lastUsed,omitempty"`
	IsActive bool    `json:"isActive"`
}

// GetKeyUsage serves the dashboard's per-key usage bars.
func (h *UsageHandler) GetKeyUsage(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	apiKey, err := h.apiKeyService.GetAPIKeyByID(r.Context(), keyID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	resp := keyUsageResponse{
		ID:       apiKey.ID.String(),
		OwnerID:  apiKey.UserID.String(),
		Usage:    apiKey.Usage,
		IsActive: apiKey.IsActive,
	}
	if apiKey.LastUsed != nil {
		formatted := apiKey.LastUsed.UTC().Format(time.RFC3339)
		resp.LastUsed = &formatted
	}

	respondWithData(w, http.StatusOK, resp)
}
