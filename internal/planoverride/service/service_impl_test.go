package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/careplix/opdwallet/internal/clock"
	"github.com/careplix/opdwallet/internal/planoverride/domain"
	"github.com/careplix/opdwallet/internal/planoverride/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOverrideService(t *testing.T) domain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.PlanVersionOverride{}))

	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestSetAndGetOverride(t *testing.T) {
	svc := setupOverrideService(t)
	ctx := context.Background()

	version, err := svc.Get(ctx, "POL-1")
	require.NoError(t, err)
	assert.Nil(t, version)

	pinned := 3
	require.NoError(t, svc.Set(ctx, domain.SetOverrideRequest{PolicyID: "POL-1", PlanVersion: &pinned}))

	version, err = svc.Get(ctx, "POL-1")
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, 3, *version)

	// Re-pinning replaces the previous value; there is no history.
	pinned = 5
	require.NoError(t, svc.Set(ctx, domain.SetOverrideRequest{PolicyID: "POL-1", PlanVersion: &pinned}))

	version, err = svc.Get(ctx, "POL-1")
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, 5, *version)
}

func TestClearOverride(t *testing.T) {
	svc := setupOverrideService(t)
	ctx := context.Background()

	pinned := 2
	require.NoError(t, svc.Set(ctx, domain.SetOverrideRequest{PolicyID: "POL-1", PlanVersion: &pinned}))
	require.NoError(t, svc.Set(ctx, domain.SetOverrideRequest{PolicyID: "POL-1"}))

	version, err := svc.Get(ctx, "POL-1")
	require.NoError(t, err)
	assert.Nil(t, version)

	// Clearing an absent override is a no-op.
	require.NoError(t, svc.Set(ctx, domain.SetOverrideRequest{PolicyID: "POL-2"}))
}

func TestOverrideValidation(t *testing.T) {
	svc := setupOverrideService(t)
	ctx := context.Background()

	err := svc.Set(ctx, domain.SetOverrideRequest{PolicyID: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)

	bad := 0
	err = svc.Set(ctx, domain.SetOverrideRequest{PolicyID: "POL-1", PlanVersion: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidPlanVersion)

	_, err = svc.Get(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)
}
