package repository

import (
	"context"
	stderrors "errors"

	"quota-api/internal/models"
	"quota-api/internal/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type APIKeyRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	GetByKey(ctx context.Context, key string) (*models.APIKey, error)
}

type apiKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	var apiKey models.APIKey
	result := r.db.WithContext(ctx).First(&apiKey, "id = ?", id)

	if result.Error != nil {
		if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, storeError(result.Error, "failed to get API key by ID")
	}

	return &apiKey, nil
}

func (r *apiKeyRepository) GetByKey(ctx context.Context, key string) (*models.APIKey, error) {
	var apiKey models.APIKey
	result := r.db.WithContext(ctx).First(&apiKey, "key = ?", key)

	if result.Error != nil {
		if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, storeError(result.Error, "failed to get API key by key")
	}

	return &apiKey, nil
}
