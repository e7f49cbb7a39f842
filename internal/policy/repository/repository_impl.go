package repository

import (
	"context"

	"github.com/careplix/opdwallet/internal/policy/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, policyID string) (*domain.Policy, error) {
	var policy domain.Policy
	err := db.WithContext(ctx).Raw(
		`SELECT policy_id, default_plan_version, effective_from, effective_to, created_at, updated_at
		 FROM policies WHERE policy_id = ?`,
		policyID,
	).Scan(&policy).Error
	if err != nil {
		return nil, err
	}
	if policy.PolicyID == "" {
		return nil, nil
	}
	return &policy, nil
}
