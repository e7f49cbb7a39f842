package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType classifies ledger postings.
type TransactionType string

const (
	TransactionTypeDebit    TransactionType = "DEBIT"
	TransactionTypeCredit   TransactionType = "CREDIT"
	TransactionTypeReversal TransactionType = "REVERSAL"
)

// UnlimitedLimit marks a wallet account without an annual cap.
const UnlimitedLimit int64 = -1

// WalletTransaction is an immutable, append-only ledger row. The sequence
// number is strictly monotonic per (member, category, plan year); the unique
// index on it is the optimistic concurrency control for the whole ledger.
// Resulting balances are snapshots of the fold after this transaction,
// giving O(1) balance reads and a recomputation target for tamper checks.
type WalletTransaction struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	MemberID          string          `gorm:"type:text;not null;uniqueIndex:ux_wallet_tx_seq,priority:1;uniqueIndex:ux_wallet_tx_idem,priority:1" json:"member_id"`
	CategoryID        string          `gorm:"type:text;not null;uniqueIndex:ux_wallet_tx_seq,priority:2;uniqueIndex:ux_wallet_tx_idem,priority:2" json:"category_id"`
	PlanYear          int             `gorm:"not null;uniqueIndex:ux_wallet_tx_seq,priority:3;uniqueIndex:ux_wallet_tx_idem,priority:3" json:"plan_year"`
	Type              TransactionType `gorm:"type:text;not null" json:"type"`
	Amount            int64           `gorm:"not null" json:"amount"`
	SequenceNumber    int64           `gorm:"not null;uniqueIndex:ux_wallet_tx_seq,priority:4" json:"sequence_number"`
	ResultingConsumed int64           `gorm:"not null" json:"resulting_consumed"`
	ResultingLimit    int64           `gorm:"not null" json:"resulting_limit"`
	PlanVersion       int             `gorm:"not null" json:"plan_version"`
	ReferenceID       string          `gorm:"type:text;not null" json:"reference_id"`
	IdempotencyKey    string          `gorm:"type:text;not null;uniqueIndex:ux_wallet_tx_idem,priority:4" json:"idempotency_key"`
	ReversalOf        *snowflake.ID   `gorm:"uniqueIndex:ux_wallet_tx_reversal" json:"reversal_of,omitempty"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

// Unlimited reports whether the account had no annual cap at this point.
func (t *WalletTransaction) Unlimited() bool {
	return t.ResultingLimit == UnlimitedLimit
}

// Balance is the derived view over the transaction log for one
// (member, category, plan year) key.
type Balance struct {
	MemberID     string `json:"member_id"`
	CategoryID   string `json:"category_id"`
	PlanYear     int    `json:"plan_year"`
	Consumed     int64  `json:"consumed"`
	Limit        int64  `json:"limit"`
	Remaining    int64  `json:"remaining"`
	Unlimited    bool   `json:"unlimited"`
	LastSequence int64  `json:"last_sequence"`
	PlanVersion  int    `json:"plan_version"`
}

// BalanceFromSnapshot derives the balance view from the latest transaction.
func BalanceFromSnapshot(tx *WalletTransaction) Balance {
	b := Balance{
		MemberID:     tx.MemberID,
		CategoryID:   tx.CategoryID,
		PlanYear:     tx.PlanYear,
		Consumed:     tx.ResultingConsumed,
		Limit:        tx.ResultingLimit,
		LastSequence: tx.SequenceNumber,
		PlanVersion:  tx.PlanVersion,
	}
	if tx.Unlimited() {
		b.Unlimited = true
		return b
	}
	b.Remaining = tx.ResultingLimit - tx.ResultingConsumed
	if b.Remaining < 0 {
		b.Remaining = 0
	}
	return b
}

// RebuildResult reports a balance recomputed from the full log alongside the
// stored snapshot, for divergence detection.
type RebuildResult struct {
	Balance          Balance `json:"balance"`
	SnapshotConsumed int64   `json:"snapshot_consumed"`
	SnapshotLimit    int64   `json:"snapshot_limit"`
	Divergent        bool    `json:"divergent"`
	Transactions     int     `json:"transactions"`
}
