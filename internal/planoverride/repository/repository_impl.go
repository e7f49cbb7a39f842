package repository

import (
	"context"

	"github.com/careplix/opdwallet/internal/planoverride/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, override *domain.PlanVersionOverride) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "policy_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan_version", "updated_at"}),
	}).Create(override).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, policyID string) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM plan_version_overrides WHERE policy_id = ?`,
		policyID,
	).Error
}

func (r *repo) FindByPolicy(ctx context.Context, db *gorm.DB, policyID string) (*domain.PlanVersionOverride, error) {
	var override domain.PlanVersionOverride
	err := db.WithContext(ctx).Raw(
		`SELECT policy_id, plan_version, updated_at
		 FROM plan_version_overrides WHERE policy_id = ?`,
		policyID,
	).Scan(&override).Error
	if err != nil {
		return nil, err
	}
	if override.PolicyID == "" {
		return nil, nil
	}
	return &override, nil
}
