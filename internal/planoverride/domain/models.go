package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PlanVersionOverride pins a policy to a plan version, superseding the
// policy's default for all coverage resolution. At most one row per policy;
// clearing removes the row. No history is kept.
type PlanVersionOverride struct {
	PolicyID    string    `gorm:"primaryKey;type:text" json:"policy_id"`
	PlanVersion int       `gorm:"not null" json:"plan_version"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PlanVersionOverride) TableName() string { return "plan_version_overrides" }

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, override *PlanVersionOverride) error
	Delete(ctx context.Context, db *gorm.DB, policyID string) error
	FindByPolicy(ctx context.Context, db *gorm.DB, policyID string) (*PlanVersionOverride, error)
}

type SetOverrideRequest struct {
	PolicyID    string
	PlanVersion *int `json:"plan_version"`
}

type Service interface {
	// Set upserts the override; a nil plan version clears it.
	// Concurrent sets on the same policy are last-writer-wins.
	Set(ctx context.Context, req SetOverrideRequest) error
	// Get returns the pinned version, nil when no override is active.
	Get(ctx context.Context, policyID string) (*int, error)
}

var (
	ErrInvalidPolicy      = errors.New("invalid_policy")
	ErrInvalidPlanVersion = errors.New("invalid_plan_version")
)
