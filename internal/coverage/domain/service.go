package domain

import (
	"context"
	"errors"
	"time"

	"github.com/careplix/opdwallet/pkg/db/pagination"
)

type PutVersionRequest struct {
	PolicyID    string
	PlanVersion int
	Entries     map[string]CoverageDescriptor `json:"entries"`
}

type GetVersionRequest struct {
	PolicyID    string
	PlanVersion int
}

type ListVersionsRequest struct {
	PolicyID  string
	PageToken string
	PageSize  int
}

type ListVersionsResponse struct {
	pagination.PageInfo
	Versions []CoverageMatrixEntry `json:"versions"`
}

type ResolveRequest struct {
	PolicyID   string
	CategoryID string
	AsOf       time.Time
}

type Service interface {
	// PutVersion writes a new immutable rule set for (policy, plan version).
	PutVersion(ctx context.Context, req PutVersionRequest) (CoverageMatrixEntry, error)
	GetVersion(ctx context.Context, req GetVersionRequest) (CoverageMatrixEntry, error)
	ListVersions(ctx context.Context, req ListVersionsRequest) (ListVersionsResponse, error)
	// Resolve returns the effective rule for (policy, category) as of a date.
	// A plan version override always wins over the policy default. Missing
	// configuration resolves to ErrNoCoverage, never to another version.
	Resolve(ctx context.Context, req ResolveRequest) (EffectiveCoverage, error)
}

var (
	ErrInvalidPolicy      = errors.New("invalid_policy")
	ErrInvalidPlanVersion = errors.New("invalid_plan_version")
	ErrInvalidEntries     = errors.New("invalid_entries")
	ErrInvalidCategory    = errors.New("invalid_category")
	ErrInvalidLimit       = errors.New("invalid_limit")
	ErrDuplicateVersion   = errors.New("duplicate_plan_version")
	ErrVersionNotFound    = errors.New("plan_version_not_found")
	ErrNoCoverage         = errors.New("no_coverage")
)
