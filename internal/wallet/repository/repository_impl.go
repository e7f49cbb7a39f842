package repository

import (
	"context"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/careplix/opdwallet/internal/wallet/domain"
	"github.com/careplix/opdwallet/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.WalletTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallet_transactions (
			id, member_id, category_id, plan_year, type, amount,
			sequence_number, resulting_consumed, resulting_limit,
			plan_version, reference_id, idempotency_key, reversal_of, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.MemberID,
		tx.CategoryID,
		tx.PlanYear,
		string(tx.Type),
		tx.Amount,
		tx.SequenceNumber,
		tx.ResultingConsumed,
		tx.ResultingLimit,
		tx.PlanVersion,
		tx.ReferenceID,
		tx.IdempotencyKey,
		tx.ReversalOf,
		tx.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WalletTransaction, error) {
	var tx domain.WalletTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM wallet_transactions WHERE id = ?`,
		id,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

func (r *repo) FindLast(ctx context.Context, db *gorm.DB, memberID, categoryID string, planYear int) (*domain.WalletTransaction, error) {
	var tx domain.WalletTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM wallet_transactions
		 WHERE member_id = ? AND category_id = ? AND plan_year = ?
		 ORDER BY sequence_number DESC
		 LIMIT 1`,
		memberID,
		categoryID,
		planYear,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, memberID, categoryID string, planYear int, key string) (*domain.WalletTransaction, error) {
	var tx domain.WalletTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM wallet_transactions
		 WHERE member_id = ? AND category_id = ? AND plan_year = ? AND idempotency_key = ?`,
		memberID,
		categoryID,
		planYear,
		key,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

func (r *repo) FindReversalOf(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WalletTransaction, error) {
	var tx domain.WalletTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM wallet_transactions WHERE reversal_of = ?`,
		id,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

func (r *repo) ListByKey(ctx context.Context, db *gorm.DB, memberID, categoryID string, planYear int, page pagination.Pagination) ([]*domain.WalletTransaction, error) {
	limit := page.PageSize
	if limit <= 0 {
		limit = 50
	}

	stmt := db.WithContext(ctx).
		Model(&domain.WalletTransaction{}).
		Where("member_id = ? AND category_id = ? AND plan_year = ?", memberID, categoryID, planYear)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		if cursor.ID != "" {
			seq, err := strconv.ParseInt(cursor.ID, 10, 64)
			if err != nil {
				return nil, err
			}
			stmt = stmt.Where("sequence_number < ?", seq)
		}
	}

	var txs []*domain.WalletTransaction
	err := stmt.
		Order("sequence_number desc").
		Limit(limit + 1).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *repo) ListAllByKey(ctx context.Context, db *gorm.DB, memberID, categoryID string, planYear int) ([]*domain.WalletTransaction, error) {
	var txs []*domain.WalletTransaction
	err := db.WithContext(ctx).
		Model(&domain.WalletTransaction{}).
		Where("member_id = ? AND category_id = ? AND plan_year = ?", memberID, categoryID, planYear).
		Order("sequence_number asc").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
