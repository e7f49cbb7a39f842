package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	categorydomain "github.com/careplix/opdwallet/internal/category/domain"
	categoryregistry "github.com/careplix/opdwallet/internal/category/registry"
	"github.com/careplix/opdwallet/internal/clock"
	"github.com/careplix/opdwallet/internal/coverage/domain"
	"github.com/careplix/opdwallet/internal/coverage/repository"
	overridedomain "github.com/careplix/opdwallet/internal/planoverride/domain"
	overriderepository "github.com/careplix/opdwallet/internal/planoverride/repository"
	overrideservice "github.com/careplix/opdwallet/internal/planoverride/service"
	policydomain "github.com/careplix/opdwallet/internal/policy/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testPolicyID = "POL-ACME-2025"

type policyStub struct {
	policies map[string]policydomain.Policy
}

func (s *policyStub) Get(ctx context.Context, policyID string) (policydomain.Policy, error) {
	policy, ok := s.policies[policyID]
	if !ok {
		return policydomain.Policy{}, policydomain.ErrNotFound
	}
	return policy, nil
}

func limitPtr(v int64) *int64 { return &v }

func setupCoverageService(t *testing.T) (domain.Service, overridedomain.Service, *policyStub) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(
		&categorydomain.Category{},
		&domain.CoverageMatrixEntry{},
		&overridedomain.PlanVersionOverride{},
	))

	categories := categorydomain.Seed()
	require.NoError(t, db.Create(&categories).Error)

	log := zap.NewNop()
	registry, err := categoryregistry.New(categoryregistry.Params{DB: db, Log: log})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	overrideSvc := overrideservice.New(overrideservice.Params{
		DB:    db,
		Log:   log,
		Clock: fakeClock,
		Repo:  overriderepository.Provide(),
	})

	policies := &policyStub{
		policies: map[string]policydomain.Policy{
			testPolicyID: {
				PolicyID:           testPolicyID,
				DefaultPlanVersion: 1,
				EffectiveFrom:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				EffectiveTo:        time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
			},
		},
	}

	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fakeClock,
		Repo:        repository.Provide(),
		Registry:    registry,
		PolicySvc:   policies,
		OverrideSvc: overrideSvc,
	})

	return svc, overrideSvc, policies
}

func putVersion(t *testing.T, svc domain.Service, planVersion int, entries map[string]domain.CoverageDescriptor) {
	t.Helper()
	_, err := svc.PutVersion(context.Background(), domain.PutVersionRequest{
		PolicyID:    testPolicyID,
		PlanVersion: planVersion,
		Entries:     entries,
	})
	require.NoError(t, err)
}

func TestPutVersionNormalizesAliases(t *testing.T) {
	svc, _, _ := setupCoverageService(t)
	ctx := context.Background()

	entry, err := svc.PutVersion(ctx, domain.PutVersionRequest{
		PolicyID:    testPolicyID,
		PlanVersion: 1,
		Entries: map[string]domain.CoverageDescriptor{
			"LABS": {Covered: true, AnnualLimit: limitPtr(5000)},
		},
	})
	require.NoError(t, err)

	decoded, err := entry.DecodeEntries()
	require.NoError(t, err)
	_, hasAlias := decoded["LABS"]
	assert.False(t, hasAlias)
	descriptor, hasCanonical := decoded["CAT004"]
	require.True(t, hasCanonical)
	assert.True(t, descriptor.Covered)
}

func TestPutVersionValidation(t *testing.T) {
	svc, _, _ := setupCoverageService(t)
	ctx := context.Background()

	_, err := svc.PutVersion(ctx, domain.PutVersionRequest{
		PolicyID:    testPolicyID,
		PlanVersion: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEntries)

	_, err = svc.PutVersion(ctx, domain.PutVersionRequest{
		PolicyID:    testPolicyID,
		PlanVersion: 1,
		Entries: map[string]domain.CoverageDescriptor{
			"CAT999": {Covered: true},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)

	_, err = svc.PutVersion(ctx, domain.PutVersionRequest{
		PolicyID:    testPolicyID,
		PlanVersion: 1,
		Entries: map[string]domain.CoverageDescriptor{
			"CAT004": {Covered: true, AnnualLimit: limitPtr(0)},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)

	_, err = svc.PutVersion(ctx, domain.PutVersionRequest{
		PolicyID:    testPolicyID,
		PlanVersion: 0,
		Entries: map[string]domain.CoverageDescriptor{
			"CAT004": {Covered: true},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPlanVersion)
}

func TestPutVersionDuplicateRejected(t *testing.T) {
	svc, _, _ := setupCoverageService(t)
	ctx := context.Background()

	entries := map[string]domain.CoverageDescriptor{
		"CAT004": {Covered: true, AnnualLimit: limitPtr(5000)},
	}
	putVersion(t, svc, 1, entries)

	_, err := svc.PutVersion(ctx, domain.PutVersionRequest{
		PolicyID:    testPolicyID,
		PlanVersion: 1,
		Entries:     entries,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateVersion)
}

func TestResolveDefaultVersion(t *testing.T) {
	svc, _, _ := setupCoverageService(t)
	ctx := context.Background()

	putVersion(t, svc, 1, map[string]domain.CoverageDescriptor{
		"CAT004": {Covered: true, AnnualLimit: limitPtr(5000), PerVisitLimit: limitPtr(2000)},
	})

	coverage, err := svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   testPolicyID,
		CategoryID: "CAT004",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, coverage.PlanVersion)
	assert.False(t, coverage.Overridden)
	require.NotNil(t, coverage.Descriptor.AnnualLimit)
	assert.Equal(t, int64(5000), *coverage.Descriptor.AnnualLimit)
}

func TestResolveOverrideAlwaysWins(t *testing.T) {
	svc, overrideSvc, _ := setupCoverageService(t)
	ctx := context.Background()

	putVersion(t, svc, 1, map[string]domain.CoverageDescriptor{
		"CAT004": {Covered: true, AnnualLimit: limitPtr(5000)},
	})
	putVersion(t, svc, 2, map[string]domain.CoverageDescriptor{
		"CAT004": {Covered: true, AnnualLimit: limitPtr(8000)},
	})

	pinned := 2
	require.NoError(t, overrideSvc.Set(ctx, overridedomain.SetOverrideRequest{
		PolicyID:    testPolicyID,
		PlanVersion: &pinned,
	}))

	coverage, err := svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   testPolicyID,
		CategoryID: "CAT004",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, coverage.PlanVersion)
	assert.True(t, coverage.Overridden)
	assert.Equal(t, int64(8000), *coverage.Descriptor.AnnualLimit)

	// Clearing the override restores the policy default.
	require.NoError(t, overrideSvc.Set(ctx, overridedomain.SetOverrideRequest{
		PolicyID: testPolicyID,
	}))

	coverage, err = svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   testPolicyID,
		CategoryID: "CAT004",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, coverage.PlanVersion)
	assert.False(t, coverage.Overridden)
}

func TestResolveFailsClosedOnMissingVersion(t *testing.T) {
	svc, overrideSvc, _ := setupCoverageService(t)
	ctx := context.Background()

	putVersion(t, svc, 1, map[string]domain.CoverageDescriptor{
		"CAT004": {Covered: true, AnnualLimit: limitPtr(5000)},
	})

	// Override points at a version that was never written; resolution must
	// not fall back to the default.
	pinned := 9
	require.NoError(t, overrideSvc.Set(ctx, overridedomain.SetOverrideRequest{
		PolicyID:    testPolicyID,
		PlanVersion: &pinned,
	}))

	_, err := svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   testPolicyID,
		CategoryID: "CAT004",
	})
	assert.ErrorIs(t, err, domain.ErrNoCoverage)
}

func TestResolvePolicyStates(t *testing.T) {
	svc, _, _ := setupCoverageService(t)
	ctx := context.Background()

	putVersion(t, svc, 1, map[string]domain.CoverageDescriptor{
		"CAT004": {Covered: true, AnnualLimit: limitPtr(5000)},
	})

	_, err := svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   "POL-UNKNOWN",
		CategoryID: "CAT004",
	})
	assert.ErrorIs(t, err, domain.ErrNoCoverage)

	_, err = svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   testPolicyID,
		CategoryID: "CAT004",
		AsOf:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, domain.ErrNoCoverage)
}

func TestResolveCategoryOutcomes(t *testing.T) {
	svc, _, _ := setupCoverageService(t)
	ctx := context.Background()

	putVersion(t, svc, 1, map[string]domain.CoverageDescriptor{
		"CAT004": {Covered: true, AnnualLimit: limitPtr(5000)},
		"CAT002": {Covered: false},
	})

	// Unknown category is a client error, not a coverage miss.
	_, err := svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   testPolicyID,
		CategoryID: "CAT999",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)

	// Explicitly not covered.
	_, err = svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   testPolicyID,
		CategoryID: "CAT002",
	})
	assert.ErrorIs(t, err, domain.ErrNoCoverage)

	// Absent from the matrix entirely.
	_, err = svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   testPolicyID,
		CategoryID: "CAT006",
	})
	assert.ErrorIs(t, err, domain.ErrNoCoverage)

	// Legacy alias resolves to the canonical category.
	coverage, err := svc.Resolve(ctx, domain.ResolveRequest{
		PolicyID:   testPolicyID,
		CategoryID: "LABS",
	})
	require.NoError(t, err)
	assert.Equal(t, "CAT004", coverage.CategoryID)
}

func TestListVersionsNewestFirst(t *testing.T) {
	svc, _, _ := setupCoverageService(t)
	ctx := context.Background()

	for v := 1; v <= 3; v++ {
		putVersion(t, svc, v, map[string]domain.CoverageDescriptor{
			"CAT004": {Covered: true, AnnualLimit: limitPtr(int64(1000 * v))},
		})
	}

	resp, err := svc.ListVersions(ctx, domain.ListVersionsRequest{
		PolicyID: testPolicyID,
		PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, resp.Versions, 2)
	assert.Equal(t, 3, resp.Versions[0].PlanVersion)
	assert.Equal(t, 2, resp.Versions[1].PlanVersion)
	assert.True(t, resp.HasMore)

	resp, err = svc.ListVersions(ctx, domain.ListVersionsRequest{
		PolicyID:  testPolicyID,
		PageSize:  2,
		PageToken: resp.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, resp.Versions, 1)
	assert.Equal(t, 1, resp.Versions[0].PlanVersion)
	assert.False(t, resp.HasMore)
}
