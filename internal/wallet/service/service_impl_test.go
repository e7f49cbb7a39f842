package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/careplix/opdwallet/internal/clock"
	"github.com/careplix/opdwallet/internal/config"
	coveragedomain "github.com/careplix/opdwallet/internal/coverage/domain"
	enrollmentdomain "github.com/careplix/opdwallet/internal/enrollment/domain"
	"github.com/careplix/opdwallet/internal/wallet/domain"
	"github.com/careplix/opdwallet/internal/wallet/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testPolicyID   = "POL-ACME-2025"
	testMemberID   = "MEM-1001"
	testCategoryID = "CAT004"
	testPlanYear   = 2025
)

type coverageStub struct {
	planVersion int
	entries     map[string]coveragedomain.CoverageDescriptor
}

func (s *coverageStub) Resolve(ctx context.Context, req coveragedomain.ResolveRequest) (coveragedomain.EffectiveCoverage, error) {
	descriptor, ok := s.entries[req.CategoryID]
	if !ok || !descriptor.Covered {
		return coveragedomain.EffectiveCoverage{}, coveragedomain.ErrNoCoverage
	}
	return coveragedomain.EffectiveCoverage{
		PolicyID:    req.PolicyID,
		CategoryID:  req.CategoryID,
		PlanVersion: s.planVersion,
		Descriptor:  descriptor,
	}, nil
}

func (s *coverageStub) PutVersion(context.Context, coveragedomain.PutVersionRequest) (coveragedomain.CoverageMatrixEntry, error) {
	return coveragedomain.CoverageMatrixEntry{}, nil
}

func (s *coverageStub) GetVersion(context.Context, coveragedomain.GetVersionRequest) (coveragedomain.CoverageMatrixEntry, error) {
	return coveragedomain.CoverageMatrixEntry{}, nil
}

func (s *coverageStub) ListVersions(context.Context, coveragedomain.ListVersionsRequest) (coveragedomain.ListVersionsResponse, error) {
	return coveragedomain.ListVersionsResponse{}, nil
}

type enrollmentStub struct{}

func (enrollmentStub) Current(ctx context.Context, memberID string) (enrollmentdomain.Enrollment, error) {
	return enrollmentdomain.Enrollment{
		MemberID: memberID,
		PolicyID: testPolicyID,
		PlanYear: testPlanYear,
		Status:   enrollmentdomain.EnrollmentStatusActive,
	}, nil
}

func limitPtr(v int64) *int64 { return &v }

func defaultCoverage() *coverageStub {
	return &coverageStub{
		planVersion: 1,
		entries: map[string]coveragedomain.CoverageDescriptor{
			testCategoryID: {
				Covered:       true,
				AnnualLimit:   limitPtr(5000),
				PerVisitLimit: limitPtr(2000),
			},
		},
	}
}

func setupWalletService(t *testing.T, topUpMode string, coverage *coverageStub) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	require.NoError(t, db.AutoMigrate(&domain.WalletTransaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Cfg: config.Config{
			WalletTopUpMode:  topUpMode,
			WalletMaxRetries: 5,
			WalletLockTTL:    3 * time.Second,
		},
		Clock:         clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		Repo:          repository.Provide(),
		CoverageSvc:   coverage,
		EnrollmentSvc: enrollmentStub{},
	})

	return svc, db
}

func debitReq(amount int64, idempotencyKey string) domain.DebitRequest {
	return domain.DebitRequest{
		MemberID:       testMemberID,
		CategoryID:     testCategoryID,
		Amount:         amount,
		ReferenceID:    "CLAIM-" + idempotencyKey,
		IdempotencyKey: idempotencyKey,
	}
}

func TestDebitWithinLimits(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	tx, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeDebit, tx.Type)
	assert.Equal(t, int64(1), tx.SequenceNumber)
	assert.Equal(t, int64(1500), tx.ResultingConsumed)
	assert.Equal(t, int64(5000), tx.ResultingLimit)
	assert.Equal(t, 1, tx.PlanVersion)

	balance, err := svc.GetBalance(ctx, domain.BalanceRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3500), balance.Remaining)
	assert.Equal(t, int64(1500), balance.Consumed)
	assert.False(t, balance.Unlimited)
}

func TestDebitExceedsPerVisitLimit(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	_, err := svc.Debit(ctx, debitReq(4000, "visit-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExceedsPerVisitLimit)

	var limitErr *domain.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, int64(4000), limitErr.Requested)
	assert.Equal(t, int64(2000), limitErr.Limit)
	assert.Equal(t, int64(5000), limitErr.Remaining)

	// A rejection writes nothing; the full limit stays available.
	balance, err := svc.GetBalance(ctx, domain.BalanceRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Consumed)
}

func TestDebitInsufficientCoverage(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	_, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)
	_, err = svc.Debit(ctx, debitReq(1800, "visit-2"))
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, domain.BalanceRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1700), balance.Remaining)

	_, err = svc.Debit(ctx, debitReq(2000, "visit-3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientCoverage)

	var limitErr *domain.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, int64(1700), limitErr.Remaining)

	// Exactly the remaining amount still fits.
	tx, err := svc.Debit(ctx, debitReq(1700, "visit-4"))
	require.NoError(t, err)
	assert.Equal(t, int64(5000), tx.ResultingConsumed)
}

func TestDebitIdempotentReplay(t *testing.T) {
	svc, db := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	first, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)

	second, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.SequenceNumber, second.SequenceNumber)

	var count int64
	require.NoError(t, db.Model(&domain.WalletTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDebitIdempotencyConflict(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	_, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)

	_, err = svc.Debit(ctx, debitReq(900, "visit-1"))
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
}

func TestDebitNotCovered(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	req := debitReq(500, "visit-1")
	req.CategoryID = "CAT002"
	_, err := svc.Debit(ctx, req)
	assert.ErrorIs(t, err, domain.ErrNotCovered)
}

func TestDebitPreAuthRequired(t *testing.T) {
	coverage := defaultCoverage()
	coverage.entries[testCategoryID] = coveragedomain.CoverageDescriptor{
		Covered:         true,
		AnnualLimit:     limitPtr(5000),
		RequiresPreAuth: true,
	}
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, coverage)
	ctx := context.Background()

	_, err := svc.Debit(ctx, debitReq(500, "visit-1"))
	assert.ErrorIs(t, err, domain.ErrPreAuthRequired)

	req := debitReq(500, "visit-2")
	req.PreAuthRef = "PA-778"
	_, err = svc.Debit(ctx, req)
	assert.NoError(t, err)
}

func TestDebitValidation(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	_, err := svc.Debit(ctx, debitReq(0, "visit-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Debit(ctx, debitReq(-100, "visit-2"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	req := debitReq(100, "visit-3")
	req.IdempotencyKey = ""
	_, err = svc.Debit(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidIdempotencyKey)

	req = debitReq(100, "visit-4")
	req.ReferenceID = ""
	_, err = svc.Debit(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestUnlimitedCategory(t *testing.T) {
	coverage := defaultCoverage()
	coverage.entries[testCategoryID] = coveragedomain.CoverageDescriptor{
		Covered: true,
	}
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, coverage)
	ctx := context.Background()

	tx, err := svc.Debit(ctx, debitReq(250000, "visit-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.UnlimitedLimit, tx.ResultingLimit)

	balance, err := svc.GetBalance(ctx, domain.BalanceRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
	})
	require.NoError(t, err)
	assert.True(t, balance.Unlimited)
	assert.Equal(t, int64(250000), balance.Consumed)
}

func TestCreditRaisesLimit(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	_, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)

	tx, err := svc.Credit(ctx, domain.CreditRequest{
		MemberID:       testMemberID,
		CategoryID:     testCategoryID,
		Amount:         1000,
		ReferenceID:    "TOPUP-1",
		IdempotencyKey: "topup-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6000), tx.ResultingLimit)
	assert.Equal(t, int64(1500), tx.ResultingConsumed)

	balance, err := svc.GetBalance(ctx, domain.BalanceRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4500), balance.Remaining)
}

func TestCreditReducesConsumed(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeReduceConsumed, defaultCoverage())
	ctx := context.Background()

	_, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)

	tx, err := svc.Credit(ctx, domain.CreditRequest{
		MemberID:       testMemberID,
		CategoryID:     testCategoryID,
		Amount:         1000,
		ReferenceID:    "TOPUP-1",
		IdempotencyKey: "topup-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), tx.ResultingLimit)
	assert.Equal(t, int64(500), tx.ResultingConsumed)

	// Consumed never goes below zero.
	tx, err = svc.Credit(ctx, domain.CreditRequest{
		MemberID:       testMemberID,
		CategoryID:     testCategoryID,
		Amount:         2000,
		ReferenceID:    "TOPUP-2",
		IdempotencyKey: "topup-2",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), tx.ResultingConsumed)
}

func TestCreditUnlimitedNotApplicable(t *testing.T) {
	coverage := defaultCoverage()
	coverage.entries[testCategoryID] = coveragedomain.CoverageDescriptor{
		Covered: true,
	}
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, coverage)
	ctx := context.Background()

	_, err := svc.Credit(ctx, domain.CreditRequest{
		MemberID:       testMemberID,
		CategoryID:     testCategoryID,
		Amount:         1000,
		ReferenceID:    "TOPUP-1",
		IdempotencyKey: "topup-1",
	})
	assert.ErrorIs(t, err, domain.ErrCreditNotApplicable)
}

func TestReverseDebit(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	original, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, domain.ReverseRequest{TransactionID: original.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeReversal, reversal.Type)
	assert.Equal(t, int64(1500), reversal.Amount)
	assert.Equal(t, int64(0), reversal.ResultingConsumed)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, original.ID, *reversal.ReversalOf)
	assert.Equal(t, original.PlanVersion, reversal.PlanVersion)

	balance, err := svc.GetBalance(ctx, domain.BalanceRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance.Remaining)
}

func TestReverseTwiceRejected(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	original, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, domain.ReverseRequest{TransactionID: original.ID.String()})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, domain.ReverseRequest{TransactionID: original.ID.String()})
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)
}

func TestReverseNonDebitRejected(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	credit, err := svc.Credit(ctx, domain.CreditRequest{
		MemberID:       testMemberID,
		CategoryID:     testCategoryID,
		Amount:         1000,
		ReferenceID:    "TOPUP-1",
		IdempotencyKey: "topup-1",
	})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, domain.ReverseRequest{TransactionID: credit.ID.String()})
	assert.ErrorIs(t, err, domain.ErrNotReversible)
}

func TestReverseUnknownTransaction(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, domain.ReverseRequest{TransactionID: node.Generate().String()})
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = svc.Reverse(ctx, domain.ReverseRequest{TransactionID: "not-an-id"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)
}

func TestReverseFreesHeadroom(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	first, err := svc.Debit(ctx, debitReq(2000, "visit-1"))
	require.NoError(t, err)
	_, err = svc.Debit(ctx, debitReq(2000, "visit-2"))
	require.NoError(t, err)

	// Only 1000 left; the reversal frees the first visit's amount.
	_, err = svc.Debit(ctx, debitReq(1500, "visit-3"))
	assert.ErrorIs(t, err, domain.ErrInsufficientCoverage)

	_, err = svc.Reverse(ctx, domain.ReverseRequest{TransactionID: first.ID.String()})
	require.NoError(t, err)

	tx, err := svc.Debit(ctx, debitReq(1500, "visit-3"))
	require.NoError(t, err)
	assert.Equal(t, int64(3500), tx.ResultingConsumed)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc, db := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Debit(ctx, debitReq(1000, fmt.Sprintf("visit-%d", n)))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientCoverage),
			errors.Is(err, domain.ErrBusy):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Greater(t, succeeded, 0)
	require.LessOrEqual(t, succeeded, 5)

	balance, err := svc.GetBalance(ctx, domain.BalanceRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000*succeeded), balance.Consumed)
	assert.LessOrEqual(t, balance.Consumed, int64(5000))

	var count int64
	require.NoError(t, db.Model(&domain.WalletTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(succeeded), count)
}

func TestListTransactionsPagination(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Debit(ctx, debitReq(500, fmt.Sprintf("visit-%d", i)))
		require.NoError(t, err)
	}

	page1, err := svc.ListTransactions(ctx, domain.ListTransactionsRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
		PageSize:   2,
	})
	require.NoError(t, err)
	require.Len(t, page1.Transactions, 2)
	assert.True(t, page1.HasMore)
	assert.Equal(t, int64(5), page1.Transactions[0].SequenceNumber)
	assert.Equal(t, int64(4), page1.Transactions[1].SequenceNumber)

	page2, err := svc.ListTransactions(ctx, domain.ListTransactionsRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
		PageSize:   2,
		PageToken:  page1.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, page2.Transactions, 2)
	assert.Equal(t, int64(3), page2.Transactions[0].SequenceNumber)
	assert.Equal(t, int64(2), page2.Transactions[1].SequenceNumber)

	page3, err := svc.ListTransactions(ctx, domain.ListTransactionsRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
		PageSize:   2,
		PageToken:  page2.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, page3.Transactions, 1)
	assert.False(t, page3.HasMore)
}

func TestRebuildBalanceMatchesSnapshot(t *testing.T) {
	svc, _ := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	first, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)
	_, err = svc.Debit(ctx, debitReq(1000, "visit-2"))
	require.NoError(t, err)
	_, err = svc.Credit(ctx, domain.CreditRequest{
		MemberID:       testMemberID,
		CategoryID:     testCategoryID,
		Amount:         500,
		ReferenceID:    "TOPUP-1",
		IdempotencyKey: "topup-1",
	})
	require.NoError(t, err)
	_, err = svc.Reverse(ctx, domain.ReverseRequest{TransactionID: first.ID.String()})
	require.NoError(t, err)

	result, err := svc.RebuildBalance(ctx, domain.BalanceRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
	})
	require.NoError(t, err)
	assert.False(t, result.Divergent)
	assert.Equal(t, 4, result.Transactions)
	assert.Equal(t, int64(1000), result.Balance.Consumed)
	assert.Equal(t, int64(5500), result.Balance.Limit)
}

func TestRebuildBalanceDetectsTampering(t *testing.T) {
	svc, db := setupWalletService(t, config.TopUpModeRaiseLimit, defaultCoverage())
	ctx := context.Background()

	_, err := svc.Debit(ctx, debitReq(1500, "visit-1"))
	require.NoError(t, err)
	last, err := svc.Debit(ctx, debitReq(1000, "visit-2"))
	require.NoError(t, err)

	require.NoError(t, db.Exec(
		"UPDATE wallet_transactions SET resulting_consumed = 100 WHERE id = ?",
		last.ID,
	).Error)

	result, err := svc.RebuildBalance(ctx, domain.BalanceRequest{
		MemberID:   testMemberID,
		CategoryID: testCategoryID,
	})
	require.NoError(t, err)
	assert.True(t, result.Divergent)
	assert.Equal(t, int64(2500), result.Balance.Consumed)
	assert.Equal(t, int64(100), result.SnapshotConsumed)
}
