package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/careplix/opdwallet/internal/enrollment/domain"
	"github.com/careplix/opdwallet/internal/enrollment/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupEnrollmentService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Enrollment{}))

	svc := New(Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: repository.Provide(),
	})
	return svc, db
}

func TestCurrentPicksLatestActiveYear(t *testing.T) {
	svc, db := setupEnrollmentService(t)
	ctx := context.Background()

	rows := []domain.Enrollment{
		{MemberID: "MEM-1", PolicyID: "POL-OLD", PlanYear: 2024, Status: domain.EnrollmentStatusActive},
		{MemberID: "MEM-1", PolicyID: "POL-NEW", PlanYear: 2025, Status: domain.EnrollmentStatusActive},
		{MemberID: "MEM-2", PolicyID: "POL-X", PlanYear: 2025, Status: domain.EnrollmentStatusTerminated},
	}
	require.NoError(t, db.Create(&rows).Error)

	enrollment, err := svc.Current(ctx, "MEM-1")
	require.NoError(t, err)
	assert.Equal(t, "POL-NEW", enrollment.PolicyID)
	assert.Equal(t, 2025, enrollment.PlanYear)
}

func TestCurrentNotEnrolled(t *testing.T) {
	svc, db := setupEnrollmentService(t)
	ctx := context.Background()

	_, err := svc.Current(ctx, "MEM-404")
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)

	// A terminated enrollment does not count.
	row := domain.Enrollment{MemberID: "MEM-3", PolicyID: "POL-X", PlanYear: 2025, Status: domain.EnrollmentStatusTerminated}
	require.NoError(t, db.Create(&row).Error)

	_, err = svc.Current(ctx, "MEM-3")
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)

	_, err = svc.Current(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidMember)
}
