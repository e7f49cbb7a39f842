package repository

import (
	"context"
	"strconv"

	"github.com/careplix/opdwallet/internal/coverage/domain"
	"github.com/careplix/opdwallet/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.CoverageMatrixEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO benefit_coverage_matrix (id, policy_id, plan_version, entries, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ID,
		entry.PolicyID,
		entry.PlanVersion,
		entry.Entries,
		entry.CreatedAt,
	).Error
}

func (r *repo) FindByPolicyVersion(ctx context.Context, db *gorm.DB, policyID string, planVersion int) (*domain.CoverageMatrixEntry, error) {
	var entry domain.CoverageMatrixEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, policy_id, plan_version, entries, created_at
		 FROM benefit_coverage_matrix
		 WHERE policy_id = ? AND plan_version = ?`,
		policyID,
		planVersion,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) ListByPolicy(ctx context.Context, db *gorm.DB, policyID string, page pagination.Pagination) ([]*domain.CoverageMatrixEntry, error) {
	limit := page.PageSize
	if limit <= 0 {
		limit = 50
	}

	stmt := db.WithContext(ctx).
		Model(&domain.CoverageMatrixEntry{}).
		Where("policy_id = ?", policyID)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		if cursor.ID != "" {
			version, err := strconv.Atoi(cursor.ID)
			if err != nil {
				return nil, err
			}
			stmt = stmt.Where("plan_version < ?", version)
		}
	}

	var entries []*domain.CoverageMatrixEntry
	err := stmt.
		Order("plan_version desc").
		Limit(limit + 1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
