package domain

import (
	"context"

	"github.com/careplix/opdwallet/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *CoverageMatrixEntry) error
	FindByPolicyVersion(ctx context.Context, db *gorm.DB, policyID string, planVersion int) (*CoverageMatrixEntry, error)
	ListByPolicy(ctx context.Context, db *gorm.DB, policyID string, page pagination.Pagination) ([]*CoverageMatrixEntry, error)
}
