package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/careplix/opdwallet/pkg/db/pagination"
)

type DebitRequest struct {
	MemberID       string `json:"member_id"`
	CategoryID     string `json:"category_id"`
	Amount         int64  `json:"amount"`
	ReferenceID    string `json:"reference_id"`
	IdempotencyKey string `json:"idempotency_key"`
	PreAuthRef     string `json:"pre_auth_ref"`
}

type CreditRequest struct {
	MemberID       string `json:"member_id"`
	CategoryID     string `json:"category_id"`
	Amount         int64  `json:"amount"`
	ReferenceID    string `json:"reference_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type ReverseRequest struct {
	TransactionID string `json:"transaction_id"`
}

type BalanceRequest struct {
	MemberID   string
	CategoryID string
	// PlanYear zero means the member's current plan year.
	PlanYear int
}

type ListTransactionsRequest struct {
	MemberID   string
	CategoryID string
	PlanYear   int
	PageToken  string
	PageSize   int
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []WalletTransaction `json:"transactions"`
}

// Service is the only writer of wallet transactions. Every mutation is
// atomically serialized per (member, category, plan year) key; operations on
// different keys proceed in parallel.
type Service interface {
	Debit(ctx context.Context, req DebitRequest) (WalletTransaction, error)
	Credit(ctx context.Context, req CreditRequest) (WalletTransaction, error)
	Reverse(ctx context.Context, req ReverseRequest) (WalletTransaction, error)
	GetBalance(ctx context.Context, req BalanceRequest) (Balance, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
	// RebuildBalance refolds the full log for a key and reports whether the
	// stored snapshot diverged from it.
	RebuildBalance(ctx context.Context, req BalanceRequest) (RebuildResult, error)
}

var (
	ErrInvalidMember         = errors.New("invalid_member")
	ErrInvalidCategory       = errors.New("invalid_category")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidReference      = errors.New("invalid_reference")
	ErrInvalidIdempotencyKey = errors.New("invalid_idempotency_key")
	ErrInvalidTransaction    = errors.New("invalid_transaction")
	ErrNotCovered            = errors.New("not_covered")
	ErrPreAuthRequired       = errors.New("pre_auth_required")
	ErrExceedsPerVisitLimit  = errors.New("exceeds_per_visit_limit")
	ErrInsufficientCoverage  = errors.New("insufficient_coverage")
	ErrCreditNotApplicable   = errors.New("credit_not_applicable")
	ErrIdempotencyConflict   = errors.New("idempotency_conflict")
	ErrTransactionNotFound   = errors.New("transaction_not_found")
	ErrAlreadyReversed       = errors.New("already_reversed")
	ErrNotReversible         = errors.New("not_reversible")
	ErrBusy                  = errors.New("busy")
)

// LimitError is a limit rejection carrying enough detail for the calling
// layer to present a precise message. It unwraps to the limit sentinel.
type LimitError struct {
	Reason      error
	Requested   int64
	Limit       int64
	Remaining   int64
	PlanVersion int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: requested %d, limit %d, remaining %d (plan version %d)",
		e.Reason.Error(), e.Requested, e.Limit, e.Remaining, e.PlanVersion)
}

func (e *LimitError) Unwrap() error { return e.Reason }
