package repository

import (
	"context"
	stderrors "errors"

	"quota-api/internal/models"
	"quota-api/internal/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PrincipalRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	Create(ctx context.Context, principal *models.Principal) error
}

type principalRepository struct {
	db *gorm.DB
}

func NewPrincipalRepository(db *gorm.DB) PrincipalRepository {
	return &principalRepository{db: db}
}

func (r *principalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	var principal models.Principal
	result := r.db.WithContext(ctx).First(&principal, "id = ?", id)

	if result.Error != nil {
		if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, storeError(result.Error, "failed to get principal by ID")
	}

	return &principal, nil
}

// Create exists for account bootstrap tooling; the ledger itself never
// creates principals implicitly.
func (r *principalRepository) Create(ctx context.Context, principal *models.Principal) error {
	result := r.db.WithContext(ctx).Create(principal)
	if result.Error != nil {
		return storeError(result.Error, "failed to create principal")
	}
	return nil
}
