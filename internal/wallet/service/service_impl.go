package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/careplix/opdwallet/internal/clock"
	"github.com/careplix/opdwallet/internal/config"
	coveragedomain "github.com/careplix/opdwallet/internal/coverage/domain"
	enrollmentdomain "github.com/careplix/opdwallet/internal/enrollment/domain"
	"github.com/careplix/opdwallet/internal/lock"
	obsmetrics "github.com/careplix/opdwallet/internal/observability/metrics"
	"github.com/careplix/opdwallet/internal/wallet/domain"
	"github.com/careplix/opdwallet/pkg/db"
	"github.com/careplix/opdwallet/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockRetryDelay = 25 * time.Millisecond

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Cfg           config.Config
	Clock         clock.Clock
	Repo          domain.Repository
	CoverageSvc   coveragedomain.Service
	EnrollmentSvc enrollmentdomain.Service
	Locker        *lock.Locker        `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	coverageSvc   coveragedomain.Service
	enrollmentSvc enrollmentdomain.Service
	locker        *lock.Locker
	obsMetrics    *obsmetrics.Metrics

	topUpMode  string
	lockTTL    time.Duration
	maxRetries int
}

func New(p Params) domain.Service {
	maxRetries := p.Cfg.WalletMaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	lockTTL := p.Cfg.WalletLockTTL
	if lockTTL <= 0 {
		lockTTL = 3 * time.Second
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("wallet.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		coverageSvc:   p.CoverageSvc,
		enrollmentSvc: p.EnrollmentSvc,
		locker:        p.Locker,
		obsMetrics:    p.ObsMetrics,
		topUpMode:     p.Cfg.WalletTopUpMode,
		lockTTL:       lockTTL,
		maxRetries:    maxRetries,
	}
}

// accountKey identifies one serialization unit of the ledger.
type accountKey struct {
	memberID   string
	categoryID string
	planYear   int
}

func (k accountKey) lockKey() string {
	return fmt.Sprintf("wallet:lock:%s:%s:%d", k.memberID, k.categoryID, k.planYear)
}

func (s *Service) Debit(ctx context.Context, req domain.DebitRequest) (domain.WalletTransaction, error) {
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if req.MemberID == "" {
		return domain.WalletTransaction{}, domain.ErrInvalidMember
	}
	if req.CategoryID == "" {
		return domain.WalletTransaction{}, domain.ErrInvalidCategory
	}
	if req.Amount <= 0 {
		return domain.WalletTransaction{}, domain.ErrInvalidAmount
	}
	if req.ReferenceID == "" {
		return domain.WalletTransaction{}, domain.ErrInvalidReference
	}
	if req.IdempotencyKey == "" {
		return domain.WalletTransaction{}, domain.ErrInvalidIdempotencyKey
	}

	enrollment, err := s.enrollmentSvc.Current(ctx, req.MemberID)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	key := accountKey{req.MemberID, req.CategoryID, enrollment.PlanYear}

	return s.withKeyLock(ctx, key, func() (domain.WalletTransaction, error) {
		return s.appendWithRetry(ctx, key, func() (domain.WalletTransaction, error) {
			return s.appendDebit(ctx, key, enrollment.PolicyID, req)
		})
	})
}

func (s *Service) appendDebit(ctx context.Context, key accountKey, policyID string, req domain.DebitRequest) (domain.WalletTransaction, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, key.memberID, key.categoryID, key.planYear, req.IdempotencyKey)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if existing != nil {
		return s.replay(existing, domain.TransactionTypeDebit, req.Amount)
	}

	coverage, err := s.coverageSvc.Resolve(ctx, coveragedomain.ResolveRequest{
		PolicyID:   policyID,
		CategoryID: key.categoryID,
		AsOf:       s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, coveragedomain.ErrNoCoverage) {
			s.reject(ctx, "not_covered")
			return domain.WalletTransaction{}, domain.ErrNotCovered
		}
		if errors.Is(err, coveragedomain.ErrInvalidCategory) {
			return domain.WalletTransaction{}, domain.ErrInvalidCategory
		}
		return domain.WalletTransaction{}, err
	}

	if coverage.Descriptor.RequiresPreAuth && strings.TrimSpace(req.PreAuthRef) == "" {
		s.reject(ctx, "pre_auth_required")
		return domain.WalletTransaction{}, domain.ErrPreAuthRequired
	}

	last, err := s.repo.FindLast(ctx, s.db, key.memberID, key.categoryID, key.planYear)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	consumed, limit, lastSeq := fold(last, coverage)

	if perVisit := coverage.Descriptor.PerVisitLimit; perVisit != nil && req.Amount > *perVisit {
		s.reject(ctx, "exceeds_per_visit_limit")
		return domain.WalletTransaction{}, &domain.LimitError{
			Reason:      domain.ErrExceedsPerVisitLimit,
			Requested:   req.Amount,
			Limit:       *perVisit,
			Remaining:   remaining(limit, consumed),
			PlanVersion: coverage.PlanVersion,
		}
	}

	if limit != domain.UnlimitedLimit && consumed+req.Amount > limit {
		s.reject(ctx, "insufficient_coverage")
		return domain.WalletTransaction{}, &domain.LimitError{
			Reason:      domain.ErrInsufficientCoverage,
			Requested:   req.Amount,
			Limit:       limit,
			Remaining:   remaining(limit, consumed),
			PlanVersion: coverage.PlanVersion,
		}
	}

	tx := domain.WalletTransaction{
		ID:                s.genID.Generate(),
		MemberID:          key.memberID,
		CategoryID:        key.categoryID,
		PlanYear:          key.planYear,
		Type:              domain.TransactionTypeDebit,
		Amount:            req.Amount,
		SequenceNumber:    lastSeq + 1,
		ResultingConsumed: consumed + req.Amount,
		ResultingLimit:    limit,
		PlanVersion:       coverage.PlanVersion,
		ReferenceID:       req.ReferenceID,
		IdempotencyKey:    req.IdempotencyKey,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &tx); err != nil {
		return domain.WalletTransaction{}, err
	}

	s.committed(ctx, &tx)
	return tx, nil
}

func (s *Service) Credit(ctx context.Context, req domain.CreditRequest) (domain.WalletTransaction, error) {
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if req.MemberID == "" {
		return domain.WalletTransaction{}, domain.ErrInvalidMember
	}
	if req.CategoryID == "" {
		return domain.WalletTransaction{}, domain.ErrInvalidCategory
	}
	if req.Amount <= 0 {
		return domain.WalletTransaction{}, domain.ErrInvalidAmount
	}
	if req.ReferenceID == "" {
		return domain.WalletTransaction{}, domain.ErrInvalidReference
	}
	if req.IdempotencyKey == "" {
		return domain.WalletTransaction{}, domain.ErrInvalidIdempotencyKey
	}

	enrollment, err := s.enrollmentSvc.Current(ctx, req.MemberID)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	key := accountKey{req.MemberID, req.CategoryID, enrollment.PlanYear}

	return s.withKeyLock(ctx, key, func() (domain.WalletTransaction, error) {
		return s.appendWithRetry(ctx, key, func() (domain.WalletTransaction, error) {
			return s.appendCredit(ctx, key, enrollment.PolicyID, req)
		})
	})
}

func (s *Service) appendCredit(ctx context.Context, key accountKey, policyID string, req domain.CreditRequest) (domain.WalletTransaction, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, key.memberID, key.categoryID, key.planYear, req.IdempotencyKey)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if existing != nil {
		return s.replay(existing, domain.TransactionTypeCredit, req.Amount)
	}

	coverage, err := s.coverageSvc.Resolve(ctx, coveragedomain.ResolveRequest{
		PolicyID:   policyID,
		CategoryID: key.categoryID,
		AsOf:       s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, coveragedomain.ErrNoCoverage) {
			s.reject(ctx, "not_covered")
			return domain.WalletTransaction{}, domain.ErrNotCovered
		}
		if errors.Is(err, coveragedomain.ErrInvalidCategory) {
			return domain.WalletTransaction{}, domain.ErrInvalidCategory
		}
		return domain.WalletTransaction{}, err
	}

	last, err := s.repo.FindLast(ctx, s.db, key.memberID, key.categoryID, key.planYear)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	consumed, limit, lastSeq := fold(last, coverage)

	newConsumed := consumed
	newLimit := limit
	switch s.topUpMode {
	case config.TopUpModeReduceConsumed:
		newConsumed = consumed - req.Amount
		if newConsumed < 0 {
			newConsumed = 0
		}
	default:
		// Top-ups raise the cap so the consumption history stays intact
		// for reporting. An uncapped account has nothing to raise.
		if limit == domain.UnlimitedLimit {
			s.reject(ctx, "credit_not_applicable")
			return domain.WalletTransaction{}, domain.ErrCreditNotApplicable
		}
		newLimit = limit + req.Amount
	}

	tx := domain.WalletTransaction{
		ID:                s.genID.Generate(),
		MemberID:          key.memberID,
		CategoryID:        key.categoryID,
		PlanYear:          key.planYear,
		Type:              domain.TransactionTypeCredit,
		Amount:            req.Amount,
		SequenceNumber:    lastSeq + 1,
		ResultingConsumed: newConsumed,
		ResultingLimit:    newLimit,
		PlanVersion:       coverage.PlanVersion,
		ReferenceID:       req.ReferenceID,
		IdempotencyKey:    req.IdempotencyKey,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &tx); err != nil {
		return domain.WalletTransaction{}, err
	}

	s.committed(ctx, &tx)
	return tx, nil
}

func (s *Service) Reverse(ctx context.Context, req domain.ReverseRequest) (domain.WalletTransaction, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.TransactionID))
	if err != nil || id == 0 {
		return domain.WalletTransaction{}, domain.ErrInvalidTransaction
	}

	original, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if original == nil {
		return domain.WalletTransaction{}, domain.ErrTransactionNotFound
	}
	if original.Type != domain.TransactionTypeDebit {
		return domain.WalletTransaction{}, domain.ErrNotReversible
	}

	key := accountKey{original.MemberID, original.CategoryID, original.PlanYear}

	return s.withKeyLock(ctx, key, func() (domain.WalletTransaction, error) {
		return s.appendWithRetry(ctx, key, func() (domain.WalletTransaction, error) {
			return s.appendReversal(ctx, key, original)
		})
	})
}

func (s *Service) appendReversal(ctx context.Context, key accountKey, original *domain.WalletTransaction) (domain.WalletTransaction, error) {
	reversal, err := s.repo.FindReversalOf(ctx, s.db, original.ID)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if reversal != nil {
		s.reject(ctx, "already_reversed")
		return domain.WalletTransaction{}, domain.ErrAlreadyReversed
	}

	last, err := s.repo.FindLast(ctx, s.db, key.memberID, key.categoryID, key.planYear)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if last == nil {
		return domain.WalletTransaction{}, domain.ErrTransactionNotFound
	}

	newConsumed := last.ResultingConsumed - original.Amount
	if newConsumed < 0 {
		s.log.Warn("reversal would underflow consumed balance, clamping to zero",
			zap.String("member_id", key.memberID),
			zap.String("category_id", key.categoryID),
			zap.Int("plan_year", key.planYear),
			zap.String("transaction_id", original.ID.String()),
		)
		newConsumed = 0
	}

	originalID := original.ID
	tx := domain.WalletTransaction{
		ID:                s.genID.Generate(),
		MemberID:          key.memberID,
		CategoryID:        key.categoryID,
		PlanYear:          key.planYear,
		Type:              domain.TransactionTypeReversal,
		Amount:            original.Amount,
		SequenceNumber:    last.SequenceNumber + 1,
		ResultingConsumed: newConsumed,
		ResultingLimit:    last.ResultingLimit,
		PlanVersion:       original.PlanVersion,
		ReferenceID:       original.ReferenceID,
		IdempotencyKey:    "rev:" + originalID.String(),
		ReversalOf:        &originalID,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &tx); err != nil {
		return domain.WalletTransaction{}, err
	}

	s.committed(ctx, &tx)
	return tx, nil
}

func (s *Service) GetBalance(ctx context.Context, req domain.BalanceRequest) (domain.Balance, error) {
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if req.MemberID == "" {
		return domain.Balance{}, domain.ErrInvalidMember
	}
	if req.CategoryID == "" {
		return domain.Balance{}, domain.ErrInvalidCategory
	}

	enrollment, err := s.enrollmentSvc.Current(ctx, req.MemberID)
	if err != nil {
		return domain.Balance{}, err
	}
	planYear := req.PlanYear
	if planYear == 0 {
		planYear = enrollment.PlanYear
	}

	last, err := s.repo.FindLast(ctx, s.db, req.MemberID, req.CategoryID, planYear)
	if err != nil {
		return domain.Balance{}, err
	}
	if last != nil {
		return domain.BalanceFromSnapshot(last), nil
	}

	// No transactions yet: the balance is the resolved coverage itself.
	coverage, err := s.coverageSvc.Resolve(ctx, coveragedomain.ResolveRequest{
		PolicyID:   enrollment.PolicyID,
		CategoryID: req.CategoryID,
		AsOf:       s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, coveragedomain.ErrNoCoverage) {
			return domain.Balance{}, domain.ErrNotCovered
		}
		if errors.Is(err, coveragedomain.ErrInvalidCategory) {
			return domain.Balance{}, domain.ErrInvalidCategory
		}
		return domain.Balance{}, err
	}

	balance := domain.Balance{
		MemberID:    req.MemberID,
		CategoryID:  coverage.CategoryID,
		PlanYear:    planYear,
		PlanVersion: coverage.PlanVersion,
	}
	if coverage.Descriptor.AnnualLimit == nil {
		balance.Limit = domain.UnlimitedLimit
		balance.Unlimited = true
	} else {
		balance.Limit = *coverage.Descriptor.AnnualLimit
		balance.Remaining = *coverage.Descriptor.AnnualLimit
	}
	return balance, nil
}

func (s *Service) ListTransactions(ctx context.Context, req domain.ListTransactionsRequest) (domain.ListTransactionsResponse, error) {
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if req.MemberID == "" {
		return domain.ListTransactionsResponse{}, domain.ErrInvalidMember
	}
	if req.CategoryID == "" {
		return domain.ListTransactionsResponse{}, domain.ErrInvalidCategory
	}

	planYear := req.PlanYear
	if planYear == 0 {
		enrollment, err := s.enrollmentSvc.Current(ctx, req.MemberID)
		if err != nil {
			return domain.ListTransactionsResponse{}, err
		}
		planYear = enrollment.PlanYear
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.ListByKey(ctx, s.db, req.MemberID, req.CategoryID, planYear, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListTransactionsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(tx *domain.WalletTransaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: strconv.FormatInt(tx.SequenceNumber, 10),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	transactions := make([]domain.WalletTransaction, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		transactions = append(transactions, *item)
	}

	resp := domain.ListTransactionsResponse{Transactions: transactions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) RebuildBalance(ctx context.Context, req domain.BalanceRequest) (domain.RebuildResult, error) {
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if req.MemberID == "" {
		return domain.RebuildResult{}, domain.ErrInvalidMember
	}
	if req.CategoryID == "" {
		return domain.RebuildResult{}, domain.ErrInvalidCategory
	}

	planYear := req.PlanYear
	if planYear == 0 {
		enrollment, err := s.enrollmentSvc.Current(ctx, req.MemberID)
		if err != nil {
			return domain.RebuildResult{}, err
		}
		planYear = enrollment.PlanYear
	}

	txs, err := s.repo.ListAllByKey(ctx, s.db, req.MemberID, req.CategoryID, planYear)
	if err != nil {
		return domain.RebuildResult{}, err
	}
	if len(txs) == 0 {
		balance, err := s.GetBalance(ctx, req)
		if err != nil {
			return domain.RebuildResult{}, err
		}
		return domain.RebuildResult{Balance: balance}, nil
	}

	// The opening limit is recovered from the first transaction's snapshot;
	// all later snapshots must match the replay exactly.
	initialLimit := txs[0].ResultingLimit
	if txs[0].Type == domain.TransactionTypeCredit && s.topUpMode == config.TopUpModeRaiseLimit && initialLimit != domain.UnlimitedLimit {
		initialLimit -= txs[0].Amount
	}

	consumed := int64(0)
	limit := initialLimit
	for _, tx := range txs {
		switch tx.Type {
		case domain.TransactionTypeDebit:
			consumed += tx.Amount
		case domain.TransactionTypeCredit:
			if s.topUpMode == config.TopUpModeReduceConsumed {
				consumed -= tx.Amount
				if consumed < 0 {
					consumed = 0
				}
			} else if limit != domain.UnlimitedLimit {
				limit += tx.Amount
			}
		case domain.TransactionTypeReversal:
			consumed -= tx.Amount
			if consumed < 0 {
				consumed = 0
			}
		}
	}

	last := txs[len(txs)-1]
	divergent := consumed != last.ResultingConsumed || limit != last.ResultingLimit
	if divergent {
		s.log.Error("wallet balance snapshot diverged from transaction log",
			zap.String("member_id", req.MemberID),
			zap.String("category_id", req.CategoryID),
			zap.Int("plan_year", planYear),
			zap.Int64("folded_consumed", consumed),
			zap.Int64("snapshot_consumed", last.ResultingConsumed),
		)
	}

	balance := domain.Balance{
		MemberID:     req.MemberID,
		CategoryID:   req.CategoryID,
		PlanYear:     planYear,
		Consumed:     consumed,
		Limit:        limit,
		LastSequence: last.SequenceNumber,
		PlanVersion:  last.PlanVersion,
	}
	if limit == domain.UnlimitedLimit {
		balance.Unlimited = true
	} else {
		balance.Remaining = remaining(limit, consumed)
	}

	return domain.RebuildResult{
		Balance:          balance,
		SnapshotConsumed: last.ResultingConsumed,
		SnapshotLimit:    last.ResultingLimit,
		Divergent:        divergent,
		Transactions:     len(txs),
	}, nil
}

// withKeyLock serializes the callback on the account key via the distributed
// locker when one is configured. Without a locker the sequence-number CAS in
// appendWithRetry is the sole serialization mechanism.
func (s *Service) withKeyLock(ctx context.Context, key accountKey, fn func() (domain.WalletTransaction, error)) (domain.WalletTransaction, error) {
	if s.locker == nil {
		return fn()
	}

	lockKey := key.lockKey()
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		token, ok, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
		if err != nil {
			return domain.WalletTransaction{}, err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return domain.WalletTransaction{}, ctx.Err()
			case <-time.After(lockRetryDelay):
			}
			continue
		}
		defer func() {
			if err := s.locker.Release(ctx, lockKey, token); err != nil {
				s.log.Warn("failed to release wallet lock", zap.String("key", lockKey), zap.Error(err))
			}
		}()
		return fn()
	}

	s.reject(ctx, "busy")
	return domain.WalletTransaction{}, domain.ErrBusy
}

// appendWithRetry runs one optimistic append attempt and retries on
// sequence-number collisions. Exhausting the retries surfaces ErrBusy so the
// caller can back off and retry safely under its idempotency key.
func (s *Service) appendWithRetry(ctx context.Context, key accountKey, attempt func() (domain.WalletTransaction, error)) (domain.WalletTransaction, error) {
	for i := 0; i < s.maxRetries; i++ {
		tx, err := attempt()
		if err == nil {
			return tx, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.WalletTransaction{}, err
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordWalletRetry(ctx)
		}
		select {
		case <-ctx.Done():
			return domain.WalletTransaction{}, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	s.reject(ctx, "busy")
	s.log.Warn("wallet append exhausted retries",
		zap.String("member_id", key.memberID),
		zap.String("category_id", key.categoryID),
		zap.Int("plan_year", key.planYear),
	)
	return domain.WalletTransaction{}, domain.ErrBusy
}

// replay enforces strict idempotency: same key with same payload returns the
// recorded transaction, same key with a different payload is a client error.
func (s *Service) replay(existing *domain.WalletTransaction, txType domain.TransactionType, amount int64) (domain.WalletTransaction, error) {
	if existing.Type != txType || existing.Amount != amount {
		s.log.Warn("idempotency key reused with different payload",
			zap.String("idempotency_key", existing.IdempotencyKey),
			zap.String("recorded_type", string(existing.Type)),
			zap.Int64("recorded_amount", existing.Amount),
			zap.Int64("requested_amount", amount),
		)
		return domain.WalletTransaction{}, domain.ErrIdempotencyConflict
	}
	return *existing, nil
}

func (s *Service) committed(ctx context.Context, tx *domain.WalletTransaction) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWalletTransaction(ctx, string(tx.Type), tx.CategoryID)
	}
	s.log.Info("wallet transaction committed",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("member_id", tx.MemberID),
		zap.String("category_id", tx.CategoryID),
		zap.Int("plan_year", tx.PlanYear),
		zap.String("type", string(tx.Type)),
		zap.Int64("amount", tx.Amount),
		zap.Int64("sequence", tx.SequenceNumber),
		zap.Int64("resulting_consumed", tx.ResultingConsumed),
		zap.Int("plan_version", tx.PlanVersion),
	)
}

func (s *Service) reject(ctx context.Context, reason string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWalletRejection(ctx, reason)
	}
}

// fold returns the running balance for a key. With no prior transactions the
// opening limit comes from the resolved coverage.
func fold(last *domain.WalletTransaction, coverage coveragedomain.EffectiveCoverage) (consumed, limit, lastSeq int64) {
	if last != nil {
		return last.ResultingConsumed, last.ResultingLimit, last.SequenceNumber
	}
	if coverage.Descriptor.AnnualLimit == nil {
		return 0, domain.UnlimitedLimit, 0
	}
	return 0, *coverage.Descriptor.AnnualLimit, 0
}

func remaining(limit, consumed int64) int64 {
	if limit == domain.UnlimitedLimit {
		return domain.UnlimitedLimit
	}
	r := limit - consumed
	if r < 0 {
		return 0
	}
	return r
}
