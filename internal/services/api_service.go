package services

import (
	"context"

	"quota-api/internal/models"
	"quota-api/internal/repository"

	"github.com/google/uuid"
)

// APIKeyService reads issued credentials. Key issuance and revocation are
// administrative actions that live outside this service.
type APIKeyService interface {
	GetAPIKeyByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	GetAPIKeyByKey(ctx context.Context, key string) (*models.APIKey, error)
}

type apiKeyService struct {
	apiKeyRepo repository.APIKeyRepository
}

func NewAPIKeyService(apiKeyRepo repository.APIKeyRepository) APIKeyService {
	return &apiKeyService{
		apiKeyRepo: apiKeyRepo,
	}
}

func (s *apiKeyService) GetAPIKeyByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	return s.apiKeyRepo.GetByID(ctx, id)
}

func (s *apiKeyService) GetAPIKeyByKey(ctx context.Context, key string) (*models.APIKey, error) {
	return s.apiKeyRepo.GetByKey(ctx, key)
}
