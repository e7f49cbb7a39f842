package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/careplix/opdwallet/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *WalletTransaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WalletTransaction, error)
	// FindLast returns the highest-sequence transaction for a key, nil when
	// the key has no transactions yet.
	FindLast(ctx context.Context, db *gorm.DB, memberID, categoryID string, planYear int) (*WalletTransaction, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, memberID, categoryID string, planYear int, key string) (*WalletTransaction, error)
	FindReversalOf(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WalletTransaction, error)
	// ListByKey returns transactions newest-first for statement views.
	ListByKey(ctx context.Context, db *gorm.DB, memberID, categoryID string, planYear int, page pagination.Pagination) ([]*WalletTransaction, error)
	// ListAllByKey returns the full log in sequence order for refolds.
	ListAllByKey(ctx context.Context, db *gorm.DB, memberID, categoryID string, planYear int) ([]*WalletTransaction, error)
}
