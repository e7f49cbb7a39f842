package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, policyID string) (*Policy, error)
}
