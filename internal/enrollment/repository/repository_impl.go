package repository

import (
	"context"

	"github.com/careplix/opdwallet/internal/enrollment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB, memberID string) (*domain.Enrollment, error) {
	var enrollment domain.Enrollment
	err := db.WithContext(ctx).Raw(
		`SELECT id, member_id, policy_id, plan_year, status, created_at, updated_at
		 FROM member_enrollments
		 WHERE member_id = ? AND status = ?
		 ORDER BY plan_year DESC
		 LIMIT 1`,
		memberID,
		domain.EnrollmentStatusActive,
	).Scan(&enrollment).Error
	if err != nil {
		return nil, err
	}
	if enrollment.ID == 0 {
		return nil, nil
	}
	return &enrollment, nil
}
